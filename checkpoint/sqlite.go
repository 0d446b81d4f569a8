package checkpoint

import (
	"context"
	"database/sql"

	_ "github.com/glebarez/go-sqlite"
	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	data TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, id);
`

// SQLite stores checkpoints as rows of a single table.
type SQLite struct {
	db *sql.DB
}

var _ quizai.Checkpointer = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at dbPath. ":memory:" works for
// a process local store.
func NewSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite", goerr.V("path", dbPath))
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to create checkpoint table", goerr.V("path", dbPath))
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Save(ctx context.Context, cp *quizai.Checkpoint) error {
	raw, err := encode(cp)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO checkpoints (thread_id, seq, data) VALUES (?, ?, ?)",
		cp.ThreadID, cp.Seq, string(raw),
	); err != nil {
		return goerr.Wrap(err, "failed to insert checkpoint", goerr.V("thread_id", cp.ThreadID))
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, threadID string) (*quizai.Checkpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM checkpoints WHERE thread_id = ? ORDER BY id DESC LIMIT 1",
		threadID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, notFound(threadID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query checkpoint", goerr.V("thread_id", threadID))
	}
	return decode([]byte(data), threadID)
}

func (s *SQLite) List(ctx context.Context, threadID string) ([]*quizai.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM checkpoints WHERE thread_id = ? ORDER BY id ASC",
		threadID,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query checkpoints", goerr.V("thread_id", threadID))
	}
	defer rows.Close()

	var out []*quizai.Checkpoint
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan checkpoint", goerr.V("thread_id", threadID))
		}
		cp, err := decode([]byte(data), threadID)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate checkpoints", goerr.V("thread_id", threadID))
	}
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = ?", threadID); err != nil {
		return goerr.Wrap(err, "failed to delete checkpoints", goerr.V("thread_id", threadID))
	}
	return nil
}
