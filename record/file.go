package record

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileRecorder appends entries as newline-delimited JSON, one file per
// agent: {dir}/{agent_name}.ndjson. Appends are serialized, so concurrent
// executions in one process never interleave partial lines.
type FileRecorder struct {
	mu  sync.Mutex
	dir string
}

var _ Recorder = (*FileRecorder)(nil)

// NewFileRecorder creates a FileRecorder writing under dir. The directory
// is created if it does not exist.
func NewFileRecorder(dir string) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	return &FileRecorder{dir: dir}, nil
}

// Record appends one entry to the agent's file.
func (f *FileRecorder) Record(_ context.Context, e Entry) error {
	if err := checkName(e.AgentName); err != nil {
		return err
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path(e.AgentName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open record file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Read returns every entry recorded for an agent, oldest first. Corrupt
// lines are skipped.
func (f *FileRecorder) Read(agentName string) ([]Entry, error) {
	if err := checkName(agentName); err != nil {
		return nil, err
	}

	file, err := os.Open(f.path(agentName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open record file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // skip corrupt lines
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan record file: %w", err)
	}
	return entries, nil
}

// Agents returns the names of every agent with at least one record.
func (f *FileRecorder) Agents() ([]string, error) {
	dirents, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read record dir: %w", err)
	}

	var names []string
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".ndjson") {
			continue
		}
		names = append(names, strings.TrimSuffix(d.Name(), ".ndjson"))
	}
	return names, nil
}

func (f *FileRecorder) path(agentName string) string {
	return filepath.Join(f.dir, agentName+".ndjson")
}

// checkName refuses names that could escape the record directory. Full
// name validation happens upstream.
func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("record: invalid agent name: %q", name)
	}
	return nil
}
