package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
)

const (
	defaultPythonBin     = "python3"
	defaultPythonTimeout = 60 * time.Second
	pythonOutputLimit    = 10000
)

// PythonREPL runs Python code in a subprocess as the "python_repl_tool"
// tool. Each call is a fresh interpreter.
type PythonREPL struct {
	bin     string
	timeout time.Duration
}

var _ quizai.Tool = (*PythonREPL)(nil)

// PythonOption configures PythonREPL.
type PythonOption func(*PythonREPL)

// WithPythonBin sets the interpreter. Default is python3.
func WithPythonBin(bin string) PythonOption {
	return func(p *PythonREPL) {
		p.bin = bin
	}
}

// WithPythonTimeout bounds the run time of one call.
func WithPythonTimeout(d time.Duration) PythonOption {
	return func(p *PythonREPL) {
		p.timeout = d
	}
}

// NewPythonREPL creates the python_repl_tool tool.
func NewPythonREPL(opts ...PythonOption) *PythonREPL {
	p := &PythonREPL{bin: defaultPythonBin, timeout: defaultPythonTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (x *PythonREPL) Spec() quizai.ToolSpec {
	return quizai.ToolSpec{
		Name:        "python_repl_tool",
		Description: "Use this to execute python code and do data analysis or calculation. If you want to see the output of a value, you should print it out with `print(...)`. This is visible to the user.",
		Parameters: map[string]*quizai.Parameter{
			"code": {Type: quizai.TypeString, Description: "The python code to execute to do further analysis or calculation."},
		},
		Required: []string{"code"},
	}
}

func (x *PythonREPL) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	code, err := stringArg(args, "code")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, x.bin, "-c", code)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return map[string]any{"content": "Error executing code: timed out after " + x.timeout.String()}, nil
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		return map[string]any{
			"content": "Error executing code:\n```python\n" + code + "\n```\nError: " + truncate(stderr.String(), pythonOutputLimit),
		}, nil
	default:
		return nil, goerr.Wrap(runErr, "failed to start python", goerr.V("bin", x.bin))
	}

	return map[string]any{
		"content": "Successfully executed:\n```python\n" + code + "\n```\nStdout: " + truncate(stdout.String(), pythonOutputLimit),
	}, nil
}
