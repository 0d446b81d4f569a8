package trace

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
)

// Repository is the interface for persisting trace data.
type Repository interface {
	Save(ctx context.Context, trace *Trace) error
}

// FileRepository persists trace data as JSON files grouped by thread.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a new FileRepository that writes to the given directory.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

// ThreadDir is the directory name of a thread's traces: the hex encoded
// thread id, so distinct ids never share a directory.
func ThreadDir(threadID string) string {
	return hex.EncodeToString([]byte(threadID))
}

// ThreadFromDir reverses ThreadDir.
func ThreadFromDir(name string) (string, bool) {
	raw, err := hex.DecodeString(name)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

// Save writes the trace as JSON to {dir}/{ThreadDir(thread_id)}/{trace_id}.json.
// Traces without a thread id go directly under dir.
func (r *FileRepository) Save(_ context.Context, trace *Trace) error {
	dir := r.dir
	if trace.ThreadID != "" {
		dir = filepath.Join(r.dir, ThreadDir(trace.ThreadID))
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return goerr.Wrap(err, "failed to create trace directory", goerr.V("dir", dir))
	}

	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal trace")
	}

	filePath := filepath.Join(dir, trace.TraceID+".json")
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return goerr.Wrap(err, "failed to write trace file", goerr.V("path", filePath))
	}

	return nil
}
