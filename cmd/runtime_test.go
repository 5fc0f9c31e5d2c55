package cmd

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestRuntimeFilesRoundTrip(t *testing.T) {
	files := runtimeFiles{pidPath: filepath.Join(t.TempDir(), "run", "timetrayd.pid")}

	want := daemonRuntimeState{
		PID:       os.Getpid(),
		Addr:      "127.0.0.1:8788",
		StartedAt: time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC),
		DataFile:  "/data/times.txt",
	}
	if err := files.write(want); err != nil {
		t.Fatalf("write: %v", err)
	}

	pid, err := files.pid()
	if err != nil || pid != want.PID {
		t.Fatalf("pid() = %d, %v; want %d", pid, err, want.PID)
	}
	got, err := files.state()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !got.StartedAt.Equal(want.StartedAt) || got.Addr != want.Addr || got.DataFile != want.DataFile {
		t.Errorf("state() = %+v, want %+v", got, want)
	}

	// Our own PID is alive.
	if err := files.ensureNotRunning(); err == nil {
		t.Error("ensureNotRunning should fail while the PID is alive")
	}

	files.remove()
	if _, err := files.pid(); !os.IsNotExist(err) {
		t.Errorf("pid file should be gone, got %v", err)
	}
	if err := files.ensureNotRunning(); err != nil {
		t.Errorf("ensureNotRunning without files: %v", err)
	}
}

func TestRuntimeFilesInvalidPID(t *testing.T) {
	files := runtimeFiles{pidPath: filepath.Join(t.TempDir(), "timetrayd.pid")}
	if err := os.WriteFile(files.pidPath, []byte("garbage\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := files.pid(); err == nil {
		t.Error("expected an error for a malformed pid file")
	}
}

func TestChildArgs(t *testing.T) {
	got := childArgs([]string{"daemon", "--detach", "--addr", "127.0.0.1:9000", "--detach=true"})
	want := []string{"daemon", "--addr", "127.0.0.1:9000", "--child"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("childArgs = %v, want %v", got, want)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("loud", os.Stderr, true); err == nil {
		t.Error("expected an error for an unknown level")
	}
	if _, err := newLogger("debug", os.Stderr, false); err != nil {
		t.Errorf("debug level: %v", err)
	}
}
