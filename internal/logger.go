// Package internal holds helpers shared by the tests of this module.
package internal

import (
	"io"
	"log/slog"
	"os"
)

var testLogger *slog.Logger

func init() {
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	if os.Getenv("QUIZAI_TEST_LOG") == "1" {
		testLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
}

// TestLogger discards everything unless QUIZAI_TEST_LOG=1 is set.
func TestLogger() *slog.Logger {
	return testLogger
}
