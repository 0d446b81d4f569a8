package quizai_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/lpf0528/quiz-ai/internal"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func newWorkflow(llm quizai.LLMClient, options ...quizai.Option) *quizai.Workflow {
	reg := quizai.NewLLMRegistry().
		Register(quizai.LLMTypeBasic, llm).
		Register(quizai.LLMTypeReasoning, llm)
	options = append([]quizai.Option{quizai.WithLogger(internal.TestLogger())}, options...)
	w := quizai.New(reg, options...)
	quizai.SetNow(w, func() time.Time {
		return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	})
	return w
}

func testConfig() quizai.Config {
	cfg := quizai.DefaultConfig()
	cfg.EnableBackgroundInvestigation = false
	return cfg
}

func userInput(s string) []quizai.Message {
	return []quizai.Message{quizai.UserMessage(s, "")}
}

func messageWithName(msgs []quizai.Message, name string) (quizai.Message, bool) {
	for _, m := range msgs {
		if m.Name == name {
			return m, true
		}
	}
	return quizai.Message{}, false
}

func TestRunFullResearch(t *testing.T) {
	ctx := context.Background()
	llm := newLLMMock().
		on(quizai.NodeCoordinator, handoff("quantum computing", "en-US")).
		on(quizai.NodePlanner, text(planJSON(researchPlan(researchStep("history"))))).
		on(quizai.NodeResearcher, text("history findings")).
		on(quizai.NodeReporter, text("# Report"))

	rec := &eventRecorder{}
	w := newWorkflow(llm)
	result, err := w.Run(ctx, "thread-1", userInput("what is quantum computing?"), testConfig(), quizai.WithEventHook(rec.hook))
	gt.NoError(t, err).Required()

	gt.Equal(t, result.Outcome, quizai.OutcomeReport)
	gt.Equal(t, result.FinalReport, "# Report")
	gt.Equal(t, llm.Calls(), []quizai.NodeID{
		quizai.NodeCoordinator,
		quizai.NodePlanner,
		quizai.NodeResearcher,
		quizai.NodeReporter,
	})

	st := result.State
	gt.Equal(t, st.PlanIterations, 1)
	gt.Equal(t, st.ResearchTopic, "quantum computing")
	gt.Equal(t, st.Observations, []string{"history findings"})
	plan, ok := st.CurrentPlan.Plan()
	gt.True(t, ok)
	gt.Equal(t, plan.Steps[0].ExecutionRes, "history findings")

	t.Run("planner asks for structured output", func(t *testing.T) {
		reqs := llm.Requests(quizai.NodePlanner)
		gt.A(t, reqs).Length(1)
		gt.Value(t, reqs[0].ResponseSchema).NotNil()
		gt.Equal(t, reqs[0].ResponseSchema.Title, "Plan")
		gt.Equal(t, llm.Streamed(quizai.NodePlanner), 0)
	})

	t.Run("researcher receives the task", func(t *testing.T) {
		reqs := llm.Requests(quizai.NodeResearcher)
		gt.A(t, reqs).Length(1)
		gt.S(t, reqs[0].Messages[1].Content).Contains("## Title\n\nhistory")
		note, ok := messageWithName(reqs[0].Messages, "system")
		gt.True(t, ok)
		gt.S(t, note.Content).Contains("References")
	})

	t.Run("reporter receives plan and observations", func(t *testing.T) {
		reqs := llm.Requests(quizai.NodeReporter)
		gt.A(t, reqs).Length(1)
		gt.S(t, reqs[0].Messages[1].Content).Contains("## Task\n\nQuantum computing overview")
		obs, ok := messageWithName(reqs[0].Messages, "observation")
		gt.True(t, ok)
		gt.Equal(t, obs.Content, "history findings")
	})

	t.Run("events end with finish", func(t *testing.T) {
		types := rec.Types()
		gt.Equal(t, types[len(types)-1], quizai.EventFinish)

		finish := rec.Of(quizai.EventFinish)
		gt.A(t, finish).Length(1)
		gt.Equal(t, finish[0].Outcome, quizai.OutcomeReport)
		gt.Equal(t, finish[0].Content, "# Report")
		gt.Equal(t, finish[0].ThreadID, "thread-1")

		var agents []quizai.NodeID
		for _, ev := range rec.Of(quizai.EventMessage) {
			agents = append(agents, ev.Agent)
		}
		gt.Equal(t, agents, []quizai.NodeID{quizai.NodePlanner, quizai.NodeResearcher, quizai.NodeReporter})
	})

	t.Run("every transition is checkpointed", func(t *testing.T) {
		history, err := w.History(ctx, "thread-1")
		gt.NoError(t, err).Required()

		var nodes []quizai.NodeID
		for i, cp := range history {
			gt.Equal(t, cp.Seq, i+1)
			nodes = append(nodes, cp.Next)
		}
		gt.Equal(t, nodes, []quizai.NodeID{
			quizai.NodeCoordinator,
			quizai.NodePlanner,
			quizai.NodeHumanFeedback,
			quizai.NodeResearchTeam,
			quizai.NodeResearcher,
			quizai.NodeResearchTeam,
			quizai.NodePlanner,
			quizai.NodeReporter,
			quizai.NodeEnd,
		})

		latest, err := w.Checkpoint(ctx, "thread-1")
		gt.NoError(t, err).Required()
		gt.True(t, latest.Done())
		gt.Equal(t, latest.Node, quizai.NodeReporter)
	})
}

func TestRunMixedSteps(t *testing.T) {
	llm := newLLMMock().
		on(quizai.NodeCoordinator, handoff("gdp growth", "en-US")).
		on(quizai.NodePlanner, text(planJSON(researchPlan(researchStep("collect gdp"), processingStep("growth rate"))))).
		on(quizai.NodeResearcher, text("gdp numbers")).
		on(quizai.NodeCoder, text("growth is 3%")).
		on(quizai.NodeReporter, text("report"))

	w := newWorkflow(llm)
	result, err := w.Run(context.Background(), "mixed", userInput("gdp growth?"), testConfig())
	gt.NoError(t, err).Required()

	gt.Equal(t, result.Outcome, quizai.OutcomeReport)
	gt.Equal(t, llm.Calls(), []quizai.NodeID{
		quizai.NodeCoordinator,
		quizai.NodePlanner,
		quizai.NodeResearcher,
		quizai.NodeCoder,
		quizai.NodeReporter,
	})
	gt.Equal(t, result.State.Observations, []string{"gdp numbers", "growth is 3%"})

	// coder gets no citation note
	gt.A(t, llm.Requests(quizai.NodeCoder)[0].Messages).Length(2)
}

func TestRunBackgroundInvestigation(t *testing.T) {
	enough := researchPlan()
	enough.HasEnoughContext = true

	t.Run("results are passed to the planner", func(t *testing.T) {
		llm := newLLMMock().
			on(quizai.NodeCoordinator, handoff("quantum computing", "en-US")).
			on(quizai.NodePlanner, text(planJSON(enough))).
			on(quizai.NodeReporter, text("report"))
		search := &searcherMock{results: []*quizai.SearchResult{
			{Title: "Title A", URL: "https://a.example.com", Content: "content A"},
			{Title: "Title B", URL: "https://b.example.com", Content: "content B"},
		}}

		cfg := testConfig()
		cfg.EnableBackgroundInvestigation = true
		cfg.MaxSearchResults = 2

		w := newWorkflow(llm, quizai.WithSearcher(search))
		result, err := w.Run(context.Background(), "bg", userInput("tell me about qc"), cfg)
		gt.NoError(t, err).Required()

		gt.Equal(t, search.queries, []string{"quantum computing"})
		gt.Equal(t, search.limits, []int{2})
		gt.Value(t, result.State.BackgroundInvestigationResults).NotNil()
		gt.Equal(t, *result.State.BackgroundInvestigationResults, "## Title A\n\ncontent A\n\n## Title B\n\ncontent B")

		reqs := llm.Requests(quizai.NodePlanner)
		last := reqs[0].Messages[len(reqs[0].Messages)-1]
		gt.True(t, strings.HasPrefix(last.Content, quizai.BackgroundResultsPrefix))
		gt.S(t, last.Content).Contains("## Title A\n\ncontent A")

		// enough context skips review and research
		gt.Equal(t, llm.Calls(), []quizai.NodeID{quizai.NodeCoordinator, quizai.NodePlanner, quizai.NodeReporter})
		gt.Equal(t, result.Outcome, quizai.OutcomeReport)
	})

	t.Run("search failure is not fatal", func(t *testing.T) {
		llm := newLLMMock().
			on(quizai.NodeCoordinator, handoff("quantum computing", "en-US")).
			on(quizai.NodePlanner, text(planJSON(enough))).
			on(quizai.NodeReporter, text("report"))
		search := &searcherMock{err: errors.New("rate limited")}

		cfg := testConfig()
		cfg.EnableBackgroundInvestigation = true

		w := newWorkflow(llm, quizai.WithSearcher(search))
		result, err := w.Run(context.Background(), "bg-fail", userInput("qc"), cfg)
		gt.NoError(t, err).Required()

		gt.Value(t, result.State.BackgroundInvestigationResults).Nil()
		for _, msg := range llm.Requests(quizai.NodePlanner)[0].Messages {
			gt.False(t, strings.HasPrefix(msg.Content, quizai.BackgroundResultsPrefix))
		}
		gt.Equal(t, result.Outcome, quizai.OutcomeReport)
	})

	t.Run("disabled investigation skips search", func(t *testing.T) {
		llm := newLLMMock().
			on(quizai.NodeCoordinator, handoff("quantum computing", "en-US")).
			on(quizai.NodePlanner, text(planJSON(enough))).
			on(quizai.NodeReporter, text("report"))
		search := &searcherMock{}

		w := newWorkflow(llm, quizai.WithSearcher(search))
		_, err := w.Run(context.Background(), "bg-off", userInput("qc"), testConfig())
		gt.NoError(t, err).Required()
		gt.A(t, search.queries).Length(0)
	})
}

func TestRunCoordinator(t *testing.T) {
	t.Run("greeting ends without report", func(t *testing.T) {
		llm := newLLMMock().on(quizai.NodeCoordinator, text("Hello! I can help with research."))
		w := newWorkflow(llm)

		result, err := w.Run(context.Background(), "hello", userInput("hi"), testConfig())
		gt.NoError(t, err).Required()

		gt.Equal(t, result.Outcome, quizai.OutcomeNoReport)
		gt.Equal(t, result.FinalReport, "")
		gt.Equal(t, llm.Calls(), []quizai.NodeID{quizai.NodeCoordinator})

		last := result.State.Messages[len(result.State.Messages)-1]
		gt.Equal(t, last.Role, quizai.RoleAssistant)
		gt.Equal(t, last.Name, "coordinator")
		gt.Equal(t, last.Content, "Hello! I can help with research.")
	})

	t.Run("handoff sets locale and topic", func(t *testing.T) {
		llm := newLLMMock().
			on(quizai.NodeCoordinator, handoff("量子计算", "zh-CN")).
			on(quizai.NodePlanner, text("not a plan"))
		w := newWorkflow(llm)

		result, err := w.Run(context.Background(), "zh", userInput("什么是量子计算"), testConfig())
		gt.NoError(t, err).Required()

		gt.Equal(t, result.State.Locale, "zh-CN")
		gt.Equal(t, result.State.ResearchTopic, "量子计算")
		gt.S(t, llm.Requests(quizai.NodePlanner)[0].Messages[0].Content).Contains(`"locale": "zh-CN"`)
	})

	t.Run("malformed handoff keeps defaults", func(t *testing.T) {
		llm := newLLMMock().
			on(quizai.NodeCoordinator, callTool("handoff_to_planner", map[string]any{"research_topic": "x"})).
			on(quizai.NodePlanner, text("not a plan"))
		w := newWorkflow(llm)

		result, err := w.Run(context.Background(), "malformed", userInput("original question"), testConfig())
		gt.NoError(t, err).Required()

		gt.Equal(t, result.State.Locale, quizai.DefaultLocale)
		gt.Equal(t, result.State.ResearchTopic, "original question")
		gt.Equal(t, llm.Calls(), []quizai.NodeID{quizai.NodeCoordinator, quizai.NodePlanner})
	})

	t.Run("llm failure is a collaborator error", func(t *testing.T) {
		boom := errors.New("boom")
		llm := newLLMMock().on(quizai.NodeCoordinator, fail(boom))
		w := newWorkflow(llm)

		_, err := w.Run(context.Background(), "fail", userInput("hi"), testConfig())
		gt.Error(t, err)
		gt.True(t, errors.Is(err, quizai.ErrCollaborator))
		gt.True(t, errors.Is(err, boom))
		gt.True(t, goerr.HasTag(err, quizai.TagCollaborator))
	})
}

func TestRunUnparsablePlan(t *testing.T) {
	llm := newLLMMock().
		on(quizai.NodeCoordinator, handoff("topic", "en-US")).
		on(quizai.NodePlanner, text("I cannot produce a plan."))
	w := newWorkflow(llm)

	result, err := w.Run(context.Background(), "unparsable", userInput("topic"), testConfig())
	gt.NoError(t, err).Required()

	gt.Equal(t, result.Outcome, quizai.OutcomeNoReport)
	gt.Equal(t, llm.Calls(), []quizai.NodeID{quizai.NodeCoordinator, quizai.NodePlanner})
	gt.True(t, result.State.CurrentPlan.IsZero())

	cp, err := w.Checkpoint(context.Background(), "unparsable")
	gt.NoError(t, err).Required()
	gt.Equal(t, cp.Node, quizai.NodePlanner)
	gt.Equal(t, cp.Next, quizai.NodeEnd)
}

func TestRunDeepThinking(t *testing.T) {
	basic := newLLMMock().
		on(quizai.NodeCoordinator, handoff("topic", "en-US")).
		on(quizai.NodeReporter, text("report"))
	enough := researchPlan()
	enough.HasEnoughContext = true
	raw := planJSON(enough)
	reasoning := newLLMMock().on(quizai.NodePlanner, text(raw[:10], raw[10:]))

	reg := quizai.NewLLMRegistry().
		Register(quizai.LLMTypeBasic, basic).
		Register(quizai.LLMTypeReasoning, reasoning)
	w := quizai.New(reg)

	cfg := testConfig()
	cfg.EnableDeepThinking = true
	rec := &eventRecorder{}

	result, err := w.Run(context.Background(), "deep", userInput("topic"), cfg, quizai.WithEventHook(rec.hook))
	gt.NoError(t, err).Required()
	gt.Equal(t, result.Outcome, quizai.OutcomeReport)

	gt.Equal(t, reasoning.Streamed(quizai.NodePlanner), 1)
	gt.A(t, basic.Requests(quizai.NodePlanner)).Length(0)
	gt.Value(t, reasoning.Requests(quizai.NodePlanner)[0].ResponseSchema).Nil()

	chunks := rec.Of(quizai.EventMessageChunk)
	gt.A(t, chunks).Length(2)
	gt.Equal(t, chunks[0].Agent, quizai.NodePlanner)
	gt.Equal(t, chunks[0].ID, chunks[1].ID)
	gt.Equal(t, chunks[0].Content+chunks[1].Content, raw)
}

func TestRunPlannerAgentLLM(t *testing.T) {
	basic := newLLMMock().
		on(quizai.NodeCoordinator, handoff("topic", "en-US")).
		on(quizai.NodeReporter, text("report"))
	enough := researchPlan()
	enough.HasEnoughContext = true
	code := newLLMMock().on(quizai.NodePlanner, text(planJSON(enough)))

	reg := quizai.NewLLMRegistry().
		Register(quizai.LLMTypeBasic, basic).
		Register(quizai.LLMTypeCode, code)
	w := quizai.New(reg)

	cfg := testConfig()
	cfg.AgentLLM = map[quizai.NodeID]quizai.LLMType{quizai.NodePlanner: quizai.LLMTypeCode}

	_, err := w.Run(context.Background(), "agent-llm", userInput("topic"), cfg)
	gt.NoError(t, err).Required()
	gt.Equal(t, code.Streamed(quizai.NodePlanner), 1)
	gt.Value(t, code.Requests(quizai.NodePlanner)[0].ResponseSchema).Nil()
}

func TestRunMissingLLM(t *testing.T) {
	w := quizai.New(quizai.NewLLMRegistry())
	_, err := w.Run(context.Background(), "no-llm", userInput("hi"), testConfig())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, quizai.ErrLLMNotConfigured))
}

func TestHumanReviewCycle(t *testing.T) {
	ctx := context.Background()
	planA := researchPlan(researchStep("first draft"))
	planB := researchPlan(researchStep("hardware"))
	planB.Title = "Quantum hardware"

	llm := newLLMMock().
		on(quizai.NodeCoordinator, handoff("quantum computing", "en-US")).
		on(quizai.NodePlanner, text(planJSON(planA)), text(planJSON(planB))).
		on(quizai.NodeResearcher, text("hardware findings")).
		on(quizai.NodeReporter, text("final report"))
	w := newWorkflow(llm)

	cfg := testConfig()
	cfg.AutoAcceptedPlan = true
	const threadID = "review"

	rec := &eventRecorder{}
	result, err := w.Run(ctx, threadID, userInput("quantum computing"), cfg, quizai.WithEventHook(rec.hook))
	gt.NoError(t, err).Required()

	gt.Equal(t, result.Outcome, quizai.OutcomeInterrupted)
	gt.Value(t, result.Interrupt).NotNil()
	gt.Equal(t, result.Interrupt.Node, quizai.NodeHumanFeedback)
	gt.Equal(t, result.Interrupt.Value, quizai.ReviewPrompt)
	gt.Equal(t, result.Interrupt.Options, quizai.DefaultInterruptOptions())

	types := rec.Types()
	gt.Equal(t, types[len(types)-2], quizai.EventInterrupt)
	gt.Equal(t, types[len(types)-1], quizai.EventFinish)
	gt.Equal(t, rec.Of(quizai.EventInterrupt)[0].ID, result.Interrupt.ID)
	gt.Equal(t, rec.Of(quizai.EventFinish)[0].Outcome, quizai.OutcomeInterrupted)

	cp, err := w.Checkpoint(ctx, threadID)
	gt.NoError(t, err).Required()
	gt.True(t, cp.Suspended())
	gt.Equal(t, cp.Next, quizai.NodeHumanFeedback)
	gt.Equal(t, cp.State.PlanIterations, 0)

	t.Run("run on a suspended thread fails", func(t *testing.T) {
		_, err := w.Run(ctx, threadID, userInput("another question"), cfg)
		gt.True(t, errors.Is(err, quizai.ErrThreadSuspended))
	})

	t.Run("unknown feedback keeps the thread suspended", func(t *testing.T) {
		_, err := w.Resume(ctx, threadID, "looks fine I guess")
		gt.True(t, errors.Is(err, quizai.ErrProtocol))
		gt.Equal(t, goerr.Unwrap(err).Values()["resume_value"], any("looks fine I guess"))

		cp, err := w.Checkpoint(ctx, threadID)
		gt.NoError(t, err).Required()
		gt.True(t, cp.Suspended())
	})

	t.Run("edit sends feedback to the planner", func(t *testing.T) {
		result, err := w.Resume(ctx, threadID, "[edit_plan] focus on hardware")
		gt.NoError(t, err).Required()

		gt.Equal(t, result.Outcome, quizai.OutcomeInterrupted)
		gt.Equal(t, result.State.PlanIterations, 0)
		fb, ok := messageWithName(result.State.Messages, "feedback")
		gt.True(t, ok)
		gt.Equal(t, fb.Role, quizai.RoleUser)
		gt.Equal(t, fb.Content, "[edit_plan] focus on hardware")

		reqs := llm.Requests(quizai.NodePlanner)
		gt.A(t, reqs).Length(2)
		_, ok = messageWithName(reqs[1].Messages, "feedback")
		gt.True(t, ok)

		raw, ok := result.State.CurrentPlan.Raw()
		gt.True(t, ok)
		gt.S(t, raw).Contains("Quantum hardware")
	})

	t.Run("accept runs the research", func(t *testing.T) {
		result, err := w.Resume(ctx, threadID, "[ACCEPTED] go ahead")
		gt.NoError(t, err).Required()

		gt.Equal(t, result.Outcome, quizai.OutcomeReport)
		gt.Equal(t, result.FinalReport, "final report")
		gt.Equal(t, result.State.PlanIterations, 1)

		plan, ok := result.State.CurrentPlan.Plan()
		gt.True(t, ok)
		gt.Equal(t, plan.Title, "Quantum hardware")
		gt.Equal(t, plan.Steps[0].ExecutionRes, "hardware findings")
	})

	t.Run("plan iterations never decrease", func(t *testing.T) {
		history, err := w.History(ctx, threadID)
		gt.NoError(t, err).Required()
		prev := 0
		for _, cp := range history {
			gt.True(t, cp.State.PlanIterations >= prev)
			prev = cp.State.PlanIterations
		}
	})

	t.Run("resume on a finished thread fails", func(t *testing.T) {
		_, err := w.Resume(ctx, threadID, "[ACCEPTED]")
		gt.True(t, errors.Is(err, quizai.ErrNotSuspended))
	})
}

func TestResumeUnknownThread(t *testing.T) {
	w := newWorkflow(newLLMMock())
	_, err := w.Resume(context.Background(), "missing", "[ACCEPTED]")
	gt.True(t, errors.Is(err, quizai.ErrCheckpointNotFound))
}

func TestRunValidation(t *testing.T) {
	w := newWorkflow(newLLMMock())

	t.Run("empty thread id", func(t *testing.T) {
		_, err := w.Run(context.Background(), "", userInput("hi"), testConfig())
		gt.True(t, errors.Is(err, quizai.ErrInvalidThreadID))
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.RecursionLimit = 0
		_, err := w.Run(context.Background(), "bad-config", userInput("hi"), cfg)
		gt.Error(t, err)
	})
}

func TestRunRecursionLimit(t *testing.T) {
	llm := newLLMMock().
		on(quizai.NodeCoordinator, handoff("topic", "en-US")).
		on(quizai.NodePlanner, text(planJSON(researchPlan(researchStep("a")))))
	w := newWorkflow(llm)

	cfg := testConfig()
	cfg.RecursionLimit = 2

	_, err := w.Run(context.Background(), "limit", userInput("topic"), cfg)
	gt.True(t, errors.Is(err, quizai.ErrRecursionLimit))
	gt.Equal(t, llm.Calls(), []quizai.NodeID{quizai.NodeCoordinator, quizai.NodePlanner})
}

func TestRunThreadBusy(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	llm := newLLMMock().on(quizai.NodeCoordinator,
		func(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
			close(started)
			<-release
			return &quizai.Response{Texts: []string{"hello"}}, nil
		},
		text("hello from another thread"),
	)
	w := newWorkflow(llm)

	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, runErr = w.Run(ctx, "busy", userInput("hi"), testConfig())
	}()
	<-started

	_, err := w.Run(ctx, "busy", userInput("hi again"), testConfig())
	gt.True(t, errors.Is(err, quizai.ErrThreadBusy))
	_, err = w.Resume(ctx, "busy", "[ACCEPTED]")
	gt.True(t, errors.Is(err, quizai.ErrThreadBusy))
	gt.True(t, errors.Is(w.DeleteThread(ctx, "busy"), quizai.ErrThreadBusy))

	// other threads are not blocked
	result, err := w.Run(ctx, "free", userInput("hi"), testConfig())
	gt.NoError(t, err).Required()
	gt.Equal(t, result.Outcome, quizai.OutcomeNoReport)

	close(release)
	wg.Wait()
	gt.NoError(t, runErr)
	gt.Equal(t, quizai.RunningThreads(w), 0)

	// the thread is free again once the run returned
	_, err = w.Run(ctx, "busy", userInput("hi"), testConfig())
	gt.NoError(t, err)
}

func TestRunReleasesThreadLocks(t *testing.T) {
	ctx := context.Background()
	w := newWorkflow(newLLMMock().on(quizai.NodeCoordinator, text("hello")))

	for i := 0; i < 50; i++ {
		threadID := fmt.Sprintf("thread-%d", i)
		_, err := w.Run(ctx, threadID, userInput("hi"), testConfig())
		gt.NoError(t, err).Required()
		gt.NoError(t, w.DeleteThread(ctx, threadID)).Required()
	}
	gt.Equal(t, quizai.RunningThreads(w), 0)

	_, err := w.Run(ctx, "", userInput("hi"), testConfig())
	gt.Error(t, err)
	gt.Equal(t, quizai.RunningThreads(w), 0)
}

func TestRunKeepsConversation(t *testing.T) {
	ctx := context.Background()
	llm := newLLMMock().on(quizai.NodeCoordinator, text("hello"), text("hello again"))
	w := newWorkflow(llm)

	_, err := w.Run(ctx, "multi", userInput("hi"), testConfig())
	gt.NoError(t, err).Required()
	result, err := w.Run(ctx, "multi", userInput("are you there?"), testConfig())
	gt.NoError(t, err).Required()

	reqs := llm.Requests(quizai.NodeCoordinator)
	gt.A(t, reqs).Length(2)
	second := reqs[1].Messages
	gt.A(t, second).Length(4)
	gt.Equal(t, second[1].Content, "hi")
	gt.Equal(t, second[2].Content, "hello")
	gt.Equal(t, second[3].Content, "are you there?")

	gt.Equal(t, result.State.ResearchTopic, "are you there?")
	gt.A(t, result.State.Messages).Length(4)

	t.Run("delete discards the thread", func(t *testing.T) {
		gt.NoError(t, w.DeleteThread(ctx, "multi"))
		_, err := w.Checkpoint(ctx, "multi")
		gt.True(t, errors.Is(err, quizai.ErrCheckpointNotFound))
	})
}

func TestRunEventHookError(t *testing.T) {
	llm := newLLMMock().on(quizai.NodeCoordinator, text("hello"))
	w := newWorkflow(llm)

	hookErr := errors.New("client went away")
	_, err := w.Run(context.Background(), "hook", userInput("hi"), testConfig(),
		quizai.WithEventHook(func(ctx context.Context, ev *quizai.Event) error {
			return hookErr
		}),
	)
	gt.True(t, errors.Is(err, hookErr))
}
