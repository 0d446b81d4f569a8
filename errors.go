package quizai

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrParse means the text could not be read as JSON even after repair.
	ErrParse = goerr.New("plan is not well-formed JSON")

	// ErrValidation means the text is JSON but does not match the plan schema.
	ErrValidation = goerr.New("plan does not match schema")

	// ErrProtocol means a resume value did not follow the feedback protocol.
	ErrProtocol = goerr.New("unexpected resume value")

	// ErrCollaborator means an external capability (LLM, search, tool) failed.
	ErrCollaborator = goerr.New("collaborator failed")

	ErrInvalidTool       = goerr.New("invalid tool specification")
	ErrInvalidParameter  = goerr.New("invalid parameter")
	ErrToolNameConflict  = goerr.New("tool name conflict")
	ErrLoopLimitExceeded = goerr.New("tool loop limit exceeded")

	ErrLLMNotConfigured = goerr.New("llm client is not configured")
	ErrUnknownNode      = goerr.New("unknown node")

	ErrThreadBusy         = goerr.New("thread is already running")
	ErrThreadSuspended    = goerr.New("thread is suspended, resume it first")
	ErrNotSuspended       = goerr.New("thread is not suspended")
	ErrCheckpointNotFound = goerr.New("checkpoint not found")
	ErrRecursionLimit     = goerr.New("recursion limit reached")
	ErrInvalidThreadID    = goerr.New("invalid thread id")
)

// TagCollaborator marks errors raised by external collaborators.
var TagCollaborator = goerr.NewTag("collaborator")
