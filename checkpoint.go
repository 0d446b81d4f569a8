package quizai

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Checkpoint is the snapshot of a thread taken after every node transition.
// Next is the node the thread continues with; when Interrupt is set the
// thread is suspended and Next is the node to re-run on resume.
type Checkpoint struct {
	ThreadID  string     `json:"thread_id"`
	Seq       int        `json:"seq"`
	Node      NodeID     `json:"node,omitempty"`
	Next      NodeID     `json:"next"`
	State     *State     `json:"state"`
	Config    Config     `json:"config"`
	Interrupt *Interrupt `json:"interrupt,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Suspended reports whether the thread waits for a resume value.
func (c *Checkpoint) Suspended() bool {
	return c.Interrupt != nil
}

// Done reports whether the thread reached the end of the graph.
func (c *Checkpoint) Done() bool {
	return c.Next == NodeEnd && c.Interrupt == nil
}

// Clone returns a deep copy through the JSON form, the same form persistent
// checkpointers store.
func (c *Checkpoint) Clone() (*Checkpoint, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal checkpoint", goerr.V("thread_id", c.ThreadID))
	}
	var out Checkpoint
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal checkpoint", goerr.V("thread_id", c.ThreadID))
	}
	return &out, nil
}

// Checkpointer persists checkpoints per thread. Save appends; Load returns
// the latest checkpoint or ErrCheckpointNotFound.
type Checkpointer interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
}

// memoryCheckpointer keeps checkpoints in process memory. It is the default
// of the workflow and loses every thread on restart.
type memoryCheckpointer struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint
}

func newMemoryCheckpointer() *memoryCheckpointer {
	return &memoryCheckpointer{threads: make(map[string][]*Checkpoint)}
}

func (m *memoryCheckpointer) Save(ctx context.Context, cp *Checkpoint) error {
	c, err := cp.Clone()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[cp.ThreadID] = append(m.threads[cp.ThreadID], c)
	return nil
}

func (m *memoryCheckpointer) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.threads[threadID]
	if len(history) == 0 {
		return nil, goerr.Wrap(ErrCheckpointNotFound, "no checkpoint", goerr.V("thread_id", threadID))
	}
	return history[len(history)-1].Clone()
}

func (m *memoryCheckpointer) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Checkpoint, 0, len(m.threads[threadID]))
	for _, cp := range m.threads[threadID] {
		c, err := cp.Clone()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryCheckpointer) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}
