package lifecycle

import (
	"bytes"
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/qorvexhq/qorvex/internal/wire"
)

func TestArtifactBuiltTracksFilesystem(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "agent.bundle")

	h, err := New(Config{ArtifactPath: artifact})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	if h.ArtifactBuilt() {
		t.Fatalf("expected artifact not built yet")
	}

	if err := os.WriteFile(artifact, []byte("x"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !h.ArtifactBuilt() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !h.ArtifactBuilt() {
		t.Fatalf("expected watcher to observe artifact creation")
	}

	if err := os.Remove(artifact); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for h.ArtifactBuilt() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.ArtifactBuilt() {
		t.Fatalf("expected watcher to observe artifact removal")
	}
}

func TestBuildStreamsOutput(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "agent.bundle")

	h, err := New(Config{
		ArtifactPath: artifact,
		BuildCommand: func(ctx context.Context, projectDir string) *exec.Cmd {
			return exec.Command("sh", "-c", "echo building; echo done")
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	var out bytes.Buffer
	if err := h.Build(context.Background(), &out); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.Len() == 0 {
		t.Fatalf("expected build output to be captured")
	}
}

func TestReadyWaitSucceedsOnHeartbeat(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if _, err := wire.ReadFrame(conn); err != nil {
					return
				}
				conn.Write(wire.EncodeResponse(wire.Response{Kind: wire.RespOk}))
			}()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	dir := t.TempDir()
	h, err := New(Config{
		ArtifactPath:   filepath.Join(dir, "agent.bundle"),
		Port:           port,
		StartupTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	if err := h.ReadyWait(context.Background()); err != nil {
		t.Fatalf("ReadyWait: %v", err)
	}
}

func TestReadyWaitTimesOut(t *testing.T) {
	dir := t.TempDir()
	h, err := New(Config{
		ArtifactPath:   filepath.Join(dir, "agent.bundle"),
		Port:           1, // nothing listens here
		StartupTimeout: 300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	err = h.ReadyWait(context.Background())
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}
