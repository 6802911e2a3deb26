package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/ccquota/internal/config"
)

func TestSinceTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := config.DefaultConfig()

	tests := []struct {
		flag    string
		window  time.Duration
		want    time.Time
		wantErr bool
	}{
		{flag: "", want: time.Time{}},
		{flag: "", window: 24 * time.Hour, want: now.Add(-24 * time.Hour)},
		{flag: "all", window: 24 * time.Hour, want: time.Time{}},
		{flag: "5h", want: now.Add(-5 * time.Hour)},
		{flag: "90m", want: now.Add(-90 * time.Minute)},
		{flag: "7d", want: now.Add(-7 * 24 * time.Hour)},
		{flag: "1d 12h", want: now.Add(-36 * time.Hour)},
		{flag: "1d12h", want: now.Add(-36 * time.Hour)},
		{flag: "2d3h", want: now.Add(-51 * time.Hour)},
		{flag: "soon", wantErr: true},
	}

	defer func() { flagSince = "" }()
	for _, tt := range tests {
		flagSince = tt.flag
		cfg.Logs.DefaultWindow = config.Duration{Duration: tt.window}
		got, err := sinceTime(cfg, now)
		if tt.wantErr {
			if err == nil {
				t.Errorf("sinceTime(%q) = %v, want error", tt.flag, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("sinceTime(%q): %v", tt.flag, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("sinceTime(%q, window %s) = %v, want %v", tt.flag, tt.window, got, tt.want)
		}
	}
}

func TestFilterDetachArg(t *testing.T) {
	got := filterDetachArg([]string{"daemon", "--detach", "--addr", "127.0.0.1:9000", "--detach=true"})
	want := []string{"daemon", "--addr", "127.0.0.1:9000"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDaemonFiles(t *testing.T) {
	files := daemonFiles{pidPath: filepath.Join(t.TempDir(), "run", "ccquotad.pid")}

	if err := files.ensureNotRunning(); err != nil {
		t.Fatalf("missing pid file: %v", err)
	}

	want := daemonRuntimeState{PID: os.Getpid(), Addr: "127.0.0.1:9999", DataDir: "/tmp/claude"}
	if err := files.write(want); err != nil {
		t.Fatal(err)
	}
	got, err := files.read()
	if err != nil {
		t.Fatal(err)
	}
	if got.PID != want.PID || got.Addr != want.Addr || got.DataDir != want.DataDir {
		t.Errorf("read = %+v, want %+v", got, want)
	}
	if err := files.ensureNotRunning(); err == nil {
		t.Error("ensureNotRunning with our own live pid = nil, want error")
	}

	files.remove()
	if _, err := os.Stat(files.pidPath); !os.IsNotExist(err) {
		t.Errorf("pid file still present: %v", err)
	}
	if _, err := os.Stat(files.statePath()); !os.IsNotExist(err) {
		t.Errorf("state file still present: %v", err)
	}
}

func TestDaemonFiles_PIDWithoutState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccquotad.pid")
	if err := os.WriteFile(path, []byte("4242\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := daemonFiles{pidPath: path}.read()
	if err != nil {
		t.Fatal(err)
	}
	if st.PID != 4242 || st.Addr != "" {
		t.Errorf("read = %+v", st)
	}

	if err := os.WriteFile(path, []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (daemonFiles{pidPath: path}).read(); err == nil {
		t.Error("invalid pid accepted")
	}
}
