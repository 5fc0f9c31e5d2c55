package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// runtimeFiles are the daemon's PID file and the JSON state file next to it.
type runtimeFiles struct {
	pidPath string
}

func (f runtimeFiles) statePath() string {
	return f.pidPath + ".json"
}

// write records a starting daemon. The state file is informational, so only
// a PID write failure is an error.
func (f runtimeFiles) write(st daemonRuntimeState) error {
	if err := os.MkdirAll(filepath.Dir(f.pidPath), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	if err := os.WriteFile(f.pidPath, []byte(strconv.Itoa(st.PID)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err == nil {
		_ = os.WriteFile(f.statePath(), append(data, '\n'), 0o600)
	}
	return nil
}

func (f runtimeFiles) remove() {
	_ = os.Remove(f.pidPath)
	_ = os.Remove(f.statePath())
}

func (f runtimeFiles) pid() (int, error) {
	data, err := os.ReadFile(f.pidPath) //nolint:gosec // daemon pid path is configured by the local user
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", f.pidPath)
	}
	return pid, nil
}

func (f runtimeFiles) state() (daemonRuntimeState, error) {
	var st daemonRuntimeState
	data, err := os.ReadFile(f.statePath()) //nolint:gosec // daemon state path is configured by the local user
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}

// ensureNotRunning fails if the PID file names a live process and clears
// the files of a daemon that died without cleaning up.
func (f runtimeFiles) ensureNotRunning() error {
	pid, err := f.pid()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	case processAlive(pid):
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	f.remove()
	return nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// childArgs turns the current invocation into the detached child's: same
// flags without --detach, marked with --child.
func childArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return append(out, "--child")
}
