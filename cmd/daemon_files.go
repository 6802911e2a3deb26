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
	"time"
)

type daemonRuntimeState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	DataDir   string    `json:"data_dir"`
}

// daemonFiles is the pid file plus its JSON state sidecar.
type daemonFiles struct {
	pidPath string
}

func (f daemonFiles) statePath() string {
	return f.pidPath + ".json"
}

// write records st; the sidecar is best effort since status falls back to flags.
func (f daemonFiles) write(st daemonRuntimeState) error {
	if err := os.MkdirAll(filepath.Dir(f.pidPath), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	if err := os.WriteFile(f.pidPath, []byte(strconv.Itoa(st.PID)+"\n"), 0o600); err != nil {
		return err
	}
	if data, err := json.MarshalIndent(st, "", "  "); err == nil {
		_ = os.WriteFile(f.statePath(), append(data, '\n'), 0o600)
	}
	return nil
}

// read returns the recorded state. Only the pid file is required.
func (f daemonFiles) read() (daemonRuntimeState, error) {
	var st daemonRuntimeState

	//nolint:gosec // daemon pid path is configured by the local user
	data, err := os.ReadFile(f.pidPath)
	if err != nil {
		return st, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return st, fmt.Errorf("invalid pid in %s", f.pidPath)
	}

	//nolint:gosec // daemon state path is configured by the local user
	if raw, err := os.ReadFile(f.statePath()); err == nil {
		_ = json.Unmarshal(raw, &st)
	}
	st.PID = pid
	return st, nil
}

func (f daemonFiles) remove() {
	_ = os.Remove(f.pidPath)
	_ = os.Remove(f.statePath())
}

// ensureNotRunning fails when a live daemon owns the pid file and clears a
// stale one.
func (f daemonFiles) ensureNotRunning() error {
	st, err := f.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if processAlive(st.PID) {
		return fmt.Errorf("daemon already running (pid %d)", st.PID)
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

// filterDetachArg drops --detach so the child runs in the foreground.
func filterDetachArg(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}
