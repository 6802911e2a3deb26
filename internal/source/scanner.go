package source

import (
	"os"
	"path/filepath"
	"strings"
)

// LogSuffix is the file suffix of Claude Code session logs.
const LogSuffix = ".jsonl"

// EnvConfigDir overrides the candidate data directories. It accepts a
// comma-separated list of Claude config roots.
const EnvConfigDir = "CLAUDE_CONFIG_DIR"

// DataDirCandidates returns the ordered list of directories that may hold
// session logs. extra entries (from configuration) are checked after the
// environment override and before the built-in defaults.
func DataDirCandidates(extra ...string) []string {
	var out []string
	if env := os.Getenv(EnvConfigDir); env != "" {
		for _, p := range strings.Split(env, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			out = append(out, filepath.Join(p, "projects"))
		}
	}
	out = append(out, extra...)

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		out = append(out, filepath.Join(xdg, "claude", "projects"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out,
			filepath.Join(home, ".config", "claude", "projects"),
			filepath.Join(home, ".claude", "projects"),
		)
	}
	return out
}

// FindDataDirectory returns the first candidate that exists as a directory.
// A missing directory is a normal first-run state, not an error.
func FindDataDirectory(candidates []string) (string, bool) {
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// DiscoverLogFiles walks dir recursively and returns every session log.
func DiscoverLogFiles(dir string) ([]DiscoveredFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var files []DiscoveredFile

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), LogSuffix) {
			return nil
		}

		rel, _ := filepath.Rel(dir, path)
		parts := strings.Split(rel, string(filepath.Separator))

		df := DiscoveredFile{Path: path}
		if len(parts) >= 2 {
			df.ProjectDir = parts[0]
			df.Project = decodeProjectName(parts[0])
		}
		// <project>/<session-uuid>/subagents/agent-<id>.jsonl
		if len(parts) >= 4 && parts[2] == "subagents" {
			df.IsSubagent = true
		}

		files = append(files, df)
		return nil
	})

	return files, err
}

// decodeProjectName extracts a human-readable project name from the encoded directory name.
// Claude Code encodes absolute paths by replacing "/" with "-", so:
//
//	"-Users-jane-projects-gitlore" -> "gitlore"
//	"-Users-jane-projects-my-cool-project" -> "my-cool-project"
func decodeProjectName(dirName string) string {
	parts := strings.Split(dirName, "-")

	knownParents := map[string]bool{
		"projects": true, "repos": true, "src": true,
		"code": true, "workspace": true, "dev": true,
	}

	for i := len(parts) - 2; i >= 0; i-- {
		if knownParents[strings.ToLower(parts[i])] {
			name := strings.Join(parts[i+1:], "-")
			if name != "" {
				return name
			}
		}
	}

	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}

	return dirName
}
