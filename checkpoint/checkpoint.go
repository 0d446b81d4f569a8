// Package checkpoint provides persistent quizai.Checkpointer
// implementations. Every store is append-only per thread: Save adds a
// checkpoint, Load returns the latest one and List returns them in order.
package checkpoint

import (
	"encoding/json"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
)

// ErrThreadMismatch is returned when a stored checkpoint carries another
// thread id than the one it was loaded for.
var ErrThreadMismatch = goerr.New("checkpoint thread id mismatch")

func encode(cp *quizai.Checkpoint) ([]byte, error) {
	if cp.ThreadID == "" {
		return nil, goerr.New("thread id is required", goerr.V("seq", cp.Seq))
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal checkpoint", goerr.V("thread_id", cp.ThreadID))
	}
	return raw, nil
}

func decode(raw []byte, threadID string) (*quizai.Checkpoint, error) {
	var cp quizai.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal checkpoint", goerr.V("thread_id", threadID))
	}
	if cp.ThreadID != threadID {
		return nil, goerr.Wrap(ErrThreadMismatch, "stored checkpoint belongs to another thread",
			goerr.V("thread_id", threadID),
			goerr.V("stored_thread_id", cp.ThreadID),
		)
	}
	return &cp, nil
}

func notFound(threadID string) error {
	return goerr.Wrap(quizai.ErrCheckpointNotFound, "no checkpoint", goerr.V("thread_id", threadID))
}
