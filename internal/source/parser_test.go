package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeSession creates a temp JSONL file and returns its path.
func writeSession(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile_ValidRecords(t *testing.T) {
	path := writeSession(t,
		`{"type":"assistant","timestamp":"2025-06-01T10:00:00Z","requestId":"req_1","message":{"id":"msg_1","model":"claude-sonnet-4-6","usage":{"input_tokens":100,"output_tokens":50,"cache_creation_input_tokens":10,"cache_read_input_tokens":5}}}`,
		`{"type":"assistant","timestamp":"2025-06-01T10:01:00Z","requestId":"req_2","message":{"id":"msg_2","model":"claude-opus-4-6","usage":{"input_tokens":1,"output_tokens":2}}}`,
	)

	result := ParseFile(path, nil)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("Records = %d, want 2", len(result.Records))
	}

	r := result.Records[0]
	if r.MessageID != "msg_1" || r.RequestID != "req_1" {
		t.Errorf("ids = %q/%q", r.MessageID, r.RequestID)
	}
	if r.Tokens() != 165 {
		t.Errorf("Tokens() = %d, want 165", r.Tokens())
	}
	if r.Timestamp.IsZero() {
		t.Error("Timestamp not parsed")
	}
	if result.Records[1].Model != "claude-opus-4-6" {
		t.Errorf("second record out of file order: %q", result.Records[1].Model)
	}
}

func TestParseFile_MalformedLinesSkipped(t *testing.T) {
	path := writeSession(t,
		`{"type":"assistant","requestId":"r1","message":{"id":"m1","model":"x","usage":{"input_tokens":10,"output_tokens":5}}}`,
		`{not json at all`,
		``,
		`   `,
		`{"type":"assistant","requestId":"r2","message":{"id":"m2","model":"x","usage":{"input_tokens":20,"output_tokens":5}}}`,
	)

	result := ParseFile(path, nil)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", result.ParseErrors)
	}
	if len(result.Records) != 2 {
		t.Errorf("Records = %d, want 2", len(result.Records))
	}
	if result.Lines != 3 {
		t.Errorf("Lines = %d, want 3 (blank lines ignored)", result.Lines)
	}
}

func TestParseFile_MissingFile(t *testing.T) {
	result := ParseFile(filepath.Join(t.TempDir(), "nope.jsonl"), nil)
	if result.Err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIsValidRecord(t *testing.T) {
	n := func(v int64) *int64 { return &v }

	tests := []struct {
		name  string
		entry RawEntry
		want  bool
	}{
		{"complete", RawEntry{Message: &RawMessage{Model: "m", Usage: &RawUsage{InputTokens: n(1), OutputTokens: n(1)}}}, true},
		{"zero counters", RawEntry{Message: &RawMessage{Model: "m", Usage: &RawUsage{InputTokens: n(0), OutputTokens: n(0)}}}, true},
		{"no message", RawEntry{}, false},
		{"no usage", RawEntry{Message: &RawMessage{Model: "m"}}, false},
		{"missing input", RawEntry{Message: &RawMessage{Usage: &RawUsage{OutputTokens: n(1)}}}, false},
		{"missing output", RawEntry{Message: &RawMessage{Usage: &RawUsage{InputTokens: n(1)}}}, false},
		{"synthetic", RawEntry{Message: &RawMessage{Model: SyntheticModel, Usage: &RawUsage{InputTokens: n(1), OutputTokens: n(1)}}}, false},
		{"api error", RawEntry{IsAPIErrorMessage: true, Message: &RawMessage{Model: "m", Usage: &RawUsage{InputTokens: n(1), OutputTokens: n(1)}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidRecord(tt.entry); got != tt.want {
				t.Errorf("IsValidRecord() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindDataDirectory(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "missing")
	present := filepath.Join(root, "present")
	if err := os.MkdirAll(present, 0o750); err != nil {
		t.Fatal(err)
	}

	got, ok := FindDataDirectory([]string{missing, present})
	if !ok || got != present {
		t.Errorf("FindDataDirectory = %q, %v; want %q, true", got, ok, present)
	}

	if _, ok := FindDataDirectory([]string{missing}); ok {
		t.Error("expected not found")
	}
}

func TestDataDirCandidates_EnvOverrideFirst(t *testing.T) {
	t.Setenv(EnvConfigDir, "/a, /b")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	got := DataDirCandidates("/extra")
	want := []string{
		filepath.Join("/a", "projects"),
		filepath.Join("/b", "projects"),
		"/extra",
		filepath.Join("/xdg", "claude", "projects"),
	}
	if len(got) < len(want) {
		t.Fatalf("candidates = %v", got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("candidates[%d] = %q, want %q", i, got[i], w)
		}
	}
}

func TestDiscoverLogFiles(t *testing.T) {
	root := t.TempDir()
	mk := func(rel string) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("{}\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	mk("-Users-jane-projects-gitlore/abc.jsonl")
	mk("-Users-jane-projects-gitlore/abc/subagents/agent-1.jsonl")
	mk("-Users-jane-projects-gitlore/notes.txt")

	files, err := DiscoverLogFiles(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}

	var subagents int
	for _, f := range files {
		if f.Project != "gitlore" {
			t.Errorf("Project = %q, want gitlore", f.Project)
		}
		if f.IsSubagent {
			subagents++
		}
	}
	if subagents != 1 {
		t.Errorf("subagents = %d, want 1", subagents)
	}
}

func TestDiscoverLogFiles_MissingDir(t *testing.T) {
	files, err := DiscoverLogFiles(filepath.Join(t.TempDir(), "nope"))
	if err != nil || files != nil {
		t.Errorf("DiscoverLogFiles = %v, %v; want nil, nil", files, err)
	}
}

func TestDecodeProjectName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"-Users-jane-projects-gitlore", "gitlore"},
		{"-Users-jane-projects-my-cool-project", "my-cool-project"},
	}
	for _, tt := range tests {
		if got := decodeProjectName(tt.in); got != tt.want {
			t.Errorf("decodeProjectName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
