// Command qorvexctl is a one-shot scripting/debugging client over a
// running qorvexd's IPC socket — flag-driven request/response, not a TUI.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func main() {
	var sessionFlag string

	root := &cobra.Command{
		Use:   "qorvexctl",
		Short: "qorvex IPC client",
	}
	root.PersistentFlags().StringVar(&sessionFlag, "session", "default", "session name; selects which qorvexd socket to dial")

	root.AddCommand(
		statusCmd(&sessionFlag),
		logCmd(&sessionFlag),
		executeCmd(&sessionFlag),
		subscribeCmd(&sessionFlag),
		devicesCmd(&sessionFlag),
		startAgentCmd(&sessionFlag),
		stopAgentCmd(&sessionFlag),
		shutdownCmd(&sessionFlag),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func statusCmd(sessionFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Session and agent status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(*sessionFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.request(map[string]any{"type": "get_session_info"})
			if err != nil {
				return err
			}
			fmt.Printf("session:  %v\n", resp["session_name"])
			fmt.Printf("active:   %v\n", resp["active"])
			fmt.Printf("actions:  %v\n", resp["action_count"])
			if d, ok := resp["device_id"]; ok && d != nil {
				fmt.Printf("device:   %v\n", d)
			}
			if rc, ok := resp["recovery_count"]; ok {
				fmt.Printf("recovered: %v\n", rc)
			}
			return nil
		},
	}
}

func logCmd(sessionFlag *string) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent action log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(*sessionFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.request(map[string]any{"type": "get_log"})
			if err != nil {
				return err
			}
			entries, _ := resp["entries"].([]any)
			if last > 0 && last < len(entries) {
				entries = entries[len(entries)-last:]
			}
			if len(entries) == 0 {
				fmt.Println("no actions logged")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tSUCCESS\tDURATION\tMESSAGE")
			for _, raw := range entries {
				e, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				ts, _ := e["timestamp"].(string)
				when, err := time.Parse(time.RFC3339Nano, ts)
				stamp := ts
				if err == nil {
					stamp = humanize.Time(when)
				}
				dur := time.Duration(asInt64(e["duration_ms"])) * time.Millisecond
				fmt.Fprintf(w, "%s\t%v\t%v\t%s\t%v\n", stamp, e["action_tag"], e["success"], dur, e["message"])
			}
			w.Flush()
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 0, "show only the last N entries")
	return cmd
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

func executeCmd(sessionFlag *string) *cobra.Command {
	var actionJSON string
	var tag string
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute one action, given as a JSON object with a \"type\" field",
		Long:  "Example: qorvexctl execute --action '{\"type\":\"tap_location\",\"x\":100,\"y\":200}'",
		RunE: func(cmd *cobra.Command, args []string) error {
			var action map[string]any
			if err := json.Unmarshal([]byte(actionJSON), &action); err != nil {
				return fmt.Errorf("decode --action: %w", err)
			}
			c, err := dial(*sessionFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			req := map[string]any{"type": "execute", "action": action}
			if tag != "" {
				req["tag"] = tag
			}
			resp, err := c.request(req)
			if err != nil {
				return err
			}
			fmt.Printf("success: %v\n", resp["success"])
			if msg, ok := resp["message"]; ok {
				fmt.Printf("message: %v\n", msg)
			}
			if data, ok := resp["data"]; ok && data != nil {
				fmt.Printf("data:    %v\n", data)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actionJSON, "action", "", "action JSON, e.g. {\"type\":\"tap_location\",\"x\":100,\"y\":200}")
	cmd.Flags().StringVar(&tag, "tag", "", "free-text tag recorded with the action log entry")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func subscribeCmd(sessionFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "Stream session events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(*sessionFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.send(map[string]any{"type": "subscribe"}); err != nil {
				return err
			}
			for {
				resp, err := c.readLine(0)
				if err != nil {
					return err
				}
				ev, _ := resp["event"].(map[string]any)
				data, _ := json.Marshal(ev)
				fmt.Println(string(data))
			}
		},
	}
}

func devicesCmd(sessionFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List known devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(*sessionFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.request(map[string]any{"type": "list_devices"})
			if err != nil {
				return err
			}
			devices, _ := resp["devices"].([]any)
			if len(devices) == 0 {
				fmt.Println("no devices")
				return nil
			}
			for _, d := range devices {
				fmt.Println(d)
			}
			return nil
		},
	}
}

func startAgentCmd(sessionFlag *string) *cobra.Command {
	var projectDir string
	cmd := &cobra.Command{
		Use:   "start-agent",
		Short: "Build and spawn the on-device agent, then connect to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(*sessionFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			req := map[string]any{"type": "start_agent"}
			if projectDir != "" {
				req["project_dir"] = projectDir
			}
			resp, err := c.request(req)
			if err != nil {
				return err
			}
			fmt.Println(resp["message"])
			return nil
		},
	}
	cmd.Flags().StringVar(&projectDir, "project-dir", "", "override the configured agent source directory")
	return cmd
}

func stopAgentCmd(sessionFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-agent",
		Short: "Terminate the on-device agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(*sessionFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.request(map[string]any{"type": "stop_agent"})
			if err != nil {
				return err
			}
			fmt.Println(resp["message"])
			return nil
		},
	}
}

func shutdownCmd(sessionFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Ask the daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(*sessionFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.send(map[string]any{"type": "shutdown"}); err != nil {
				return err
			}
			_, err = c.readLine(3 * time.Second)
			return err
		},
	}
}
