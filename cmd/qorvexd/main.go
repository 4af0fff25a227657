// Command qorvexd is the automation core daemon: it loads ~/.qorvex's
// config, starts a session, and serves the IPC socket until a Shutdown
// request or a termination signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qorvexhq/qorvex/internal/config"
	"github.com/qorvexhq/qorvex/internal/ipc"
	"github.com/qorvexhq/qorvex/internal/logger"
	"github.com/qorvexhq/qorvex/internal/manage"
	"github.com/qorvexhq/qorvex/internal/session"
)

func main() {
	var sessionName string
	var logLevel string
	var logFile string

	root := &cobra.Command{
		Use:   "qorvexd",
		Short: "qorvex automation core daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(sessionName, logLevel, logFile)
		},
	}
	root.Flags().StringVar(&sessionName, "session", "default", "session name; determines the socket and log file names")
	root.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	root.Flags().StringVar(&logFile, "log-file", "", "append logs to this file in addition to stdout")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(sessionName, logLevel, logFile string) error {
	if err := logger.Init(logLevel, logFile); err != nil {
		return fmt.Errorf("qorvexd: init logger: %w", err)
	}

	stateDir, err := config.StateDir()
	if err != nil {
		return fmt.Errorf("qorvexd: resolve state dir: %w", err)
	}
	cfg, err := config.Load(stateDir)
	if err != nil {
		return fmt.Errorf("qorvexd: load config: %w", err)
	}

	sess, err := session.New(stateDir, sessionName, nil)
	if err != nil {
		return fmt.Errorf("qorvexd: start session: %w", err)
	}

	driverSlot := &ipc.DriverSlot{}
	sessions := manage.NewSessionSlot(sess)
	handler := manage.New(stateDir, cfg, driverSlot, sessions)

	srv := ipc.NewServer(config.SocketPath(stateDir, sessionName), sess, nil)
	srv.Handler = handler
	srv.OnShutdown = func() {
		handler.Close()
		if err := sessions.Get().End(); err != nil {
			logger.Warn("qorvexd: end session", "err", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("qorvexd: listening", "socket", srv.SocketPath)
		errCh <- srv.ListenAndServe(ctx)
	}()

	logger.Info("qorvexd: started", "session", sessionName, "state_dir", stateDir)

	select {
	case sig := <-sigCh:
		logger.Info("qorvexd: received signal, shutting down", "signal", sig.String())
		cancel()
		time.Sleep(time.Second)
	case err := <-errCh:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("qorvexd: server error: %w", err)
		}
	}

	return nil
}
