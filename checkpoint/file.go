package checkpoint

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
)

// maxLineSize bounds a single checkpoint line. Checkpoints carry the whole
// conversation, so the default scanner buffer is too small.
const maxLineSize = 64 * 1024 * 1024

// File stores checkpoints as JSON lines, one file per thread under dir. The
// file name is the hex encoded thread id.
type File struct {
	dir string
	mu  sync.Mutex
}

var _ quizai.Checkpointer = (*File)(nil)

// NewFile creates a file checkpointer. dir is created on first save.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

// path hex encodes the thread id so that every id gets its own file, even
// ids containing separators or differing only in case.
func (f *File) path(threadID string) string {
	return filepath.Join(f.dir, hex.EncodeToString([]byte(threadID))+".jsonl")
}

func (f *File) Save(ctx context.Context, cp *quizai.Checkpoint) error {
	raw, err := encode(cp)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return goerr.Wrap(err, "failed to create checkpoint directory", goerr.V("dir", f.dir))
	}

	path := f.path(cp.ThreadID)
	fd, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return goerr.Wrap(err, "failed to open checkpoint file", goerr.V("path", path))
	}
	defer fd.Close()

	if _, err := fd.Write(append(raw, '\n')); err != nil {
		return goerr.Wrap(err, "failed to write checkpoint", goerr.V("path", path))
	}
	return nil
}

func (f *File) Load(ctx context.Context, threadID string) (*quizai.Checkpoint, error) {
	all, err := f.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, notFound(threadID)
	}
	return all[len(all)-1], nil
}

func (f *File) List(ctx context.Context, threadID string) ([]*quizai.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(threadID)
	fd, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open checkpoint file", goerr.V("path", path))
	}
	defer fd.Close()

	var out []*quizai.Checkpoint
	scanner := bufio.NewScanner(fd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		cp, err := decode(scanner.Bytes(), threadID)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read checkpoint file", goerr.V("path", path))
	}
	return out, nil
}

func (f *File) Delete(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(threadID)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerr.Wrap(err, "failed to remove checkpoint file", goerr.V("path", path))
	}
	return nil
}
