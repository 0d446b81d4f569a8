package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	quizai "github.com/lpf0528/quiz-ai"
	"github.com/lpf0528/quiz-ai/mcp"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "query",
			Aliases:  []string{"q"},
			Required: true,
			Usage:    "Research question",
		},
		&cli.StringFlag{
			Name:  "thread",
			Usage: "Thread ID to continue. A new one is generated by default",
		},
		&cli.BoolFlag{
			Name:  "review-plan",
			Usage: "Stop for plan review and read the feedback from stdin",
		},
		&cli.IntFlag{
			Name:  "max-plan-iterations",
			Value: quizai.DefaultMaxPlanIterations,
		},
		&cli.IntFlag{
			Name:  "max-step-num",
			Value: quizai.DefaultMaxStepNum,
		},
		&cli.IntFlag{
			Name:  "max-search-results",
			Value: quizai.DefaultMaxSearchResults,
		},
		&cli.StringFlag{
			Name:  "report-style",
			Value: string(quizai.ReportStyleAcademic),
			Usage: "academic, popular_science, news or social_media",
		},
		&cli.BoolFlag{
			Name:  "no-background-investigation",
			Usage: "Skip the web search before planning",
		},
		&cli.BoolFlag{
			Name:  "deep-thinking",
			Usage: "Plan with the reasoning model",
		},
		&cli.StringFlag{
			Name:  "mcp-settings",
			Usage: "JSON file of MCP servers to add to the agents",
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Research a question in the terminal",
		Flags: append(commonFlags(), runFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(context.Background()); err != nil {
					a.logger.Warn("failed to close resources", "error", err)
				}
			}()

			cfg := quizai.DefaultConfig()
			cfg.MaxPlanIterations = int(cmd.Int("max-plan-iterations"))
			cfg.MaxStepNum = int(cmd.Int("max-step-num"))
			cfg.MaxSearchResults = int(cmd.Int("max-search-results"))
			cfg.ReportStyle = quizai.ReportStyle(cmd.String("report-style"))
			cfg.AutoAcceptedPlan = cmd.Bool("review-plan")
			cfg.EnableBackgroundInvestigation = !cmd.Bool("no-background-investigation")
			cfg.EnableDeepThinking = cmd.Bool("deep-thinking")

			var runOpts []quizai.RunOption
			if path := cmd.String("mcp-settings"); path != "" {
				sets, err := openMCPFile(ctx, path)
				if err != nil {
					return err
				}
				defer sets.Close()
				runOpts = sets.RunOptions()
			}

			thread := cmd.String("thread")
			if thread == "" {
				thread = uuid.NewString()
			}

			t := &terminal{
				out:         os.Stdout,
				in:          bufio.NewReader(os.Stdin),
				interactive: term.IsTerminal(int(os.Stdin.Fd())),
			}
			return t.research(ctx, a.workflow, thread, cmd.String("query"), cfg, runOpts...)
		},
	}
}

func openMCPFile(ctx context.Context, path string) (*mcp.ToolSets, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read MCP settings", goerr.V("path", path))
	}
	var settings mcp.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, goerr.Wrap(err, "failed to parse MCP settings", goerr.V("path", path))
	}
	return mcp.Open(ctx, settings, nil)
}

// workflow is the part of quizai.Workflow used by the commands.
type workflow interface {
	Run(ctx context.Context, threadID string, messages []quizai.Message, cfg quizai.Config, options ...quizai.RunOption) (*quizai.Result, error)
	Resume(ctx context.Context, threadID string, value string, options ...quizai.RunOption) (*quizai.Result, error)
	Checkpoint(ctx context.Context, threadID string) (*quizai.Checkpoint, error)
}

// terminal prints events and asks for plan feedback.
type terminal struct {
	out         io.Writer
	in          *bufio.Reader
	interactive bool
	streaming   bool
}

func (t *terminal) research(ctx context.Context, wf workflow, thread, query string, cfg quizai.Config, opts ...quizai.RunOption) error {
	opts = append(opts, quizai.WithEventHook(t.print))
	fmt.Fprintf(t.out, "thread: %s\n", thread)

	result, err := wf.Run(ctx, thread, []quizai.Message{quizai.UserMessage(query, "")}, cfg, opts...)
	for err == nil && result.Outcome == quizai.OutcomeInterrupted {
		var value string
		value, err = t.feedback(result.Interrupt)
		if err != nil {
			break
		}
		result, err = wf.Resume(ctx, thread, value, opts...)
	}
	if err != nil {
		return err
	}

	if result.Outcome == quizai.OutcomeNoReport {
		fmt.Fprintln(t.out, "\n(no report)")
	}
	return nil
}

func (t *terminal) print(ctx context.Context, ev *quizai.Event) error {
	switch ev.Type {
	case quizai.EventMessageChunk:
		if !t.streaming {
			fmt.Fprintf(t.out, "\n[%s] ", ev.Agent)
			t.streaming = true
		}
		fmt.Fprint(t.out, ev.Content)
		return nil
	case quizai.EventMessage:
		// streamed messages were printed chunk by chunk
		if !t.streaming && ev.Content != "" {
			fmt.Fprintf(t.out, "\n[%s] %s\n", ev.Agent, ev.Content)
		}
	case quizai.EventToolCalls:
		for _, call := range ev.ToolCalls {
			args, _ := json.Marshal(call.Arguments)
			fmt.Fprintf(t.out, "\n[%s] -> %s %s\n", ev.Agent, call.Name, args)
		}
	case quizai.EventToolCallResult:
		fmt.Fprintf(t.out, "[%s] <- %s (%d bytes)\n", ev.Agent, ev.Name, len(ev.Content))
	case quizai.EventInterrupt:
		fmt.Fprintf(t.out, "\n%s\n", ev.Content)
		for _, opt := range ev.Options {
			fmt.Fprintf(t.out, "  %s: %s\n", opt.Value, opt.Text)
		}
	case quizai.EventFinish:
		fmt.Fprintln(t.out)
	}
	t.streaming = false
	return nil
}

// feedback reads one line. "edit_plan <comments>" asks for a new plan;
// anything else, including an empty line, accepts it.
func (t *terminal) feedback(req *quizai.Interrupt) (string, error) {
	if t.interactive {
		fmt.Fprint(t.out, "> ")
	}
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", goerr.Wrap(err, "failed to read feedback", goerr.V("interrupt_id", req.ID))
	}
	line = strings.TrimSpace(line)

	if rest, ok := strings.CutPrefix(line, "edit_plan"); ok {
		return fmt.Sprintf("[edit_plan] %s", strings.TrimSpace(rest)), nil
	}
	return "[accepted]", nil
}
