package checkpoint_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	quizai "github.com/lpf0528/quiz-ai"
	"github.com/lpf0528/quiz-ai/checkpoint"
	"github.com/m-mizutani/gt"
	"github.com/redis/go-redis/v9"
)

func newStores(t *testing.T) map[string]quizai.Checkpointer {
	sqlite, err := checkpoint.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "checkpoints.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { sqlite.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]quizai.Checkpointer{
		"file":   checkpoint.NewFile(filepath.Join(t.TempDir(), "threads")),
		"sqlite": sqlite,
		"redis":  checkpoint.NewRedis(client),
	}
}

func sampleCheckpoint(threadID string, seq int) *quizai.Checkpoint {
	cfg := quizai.DefaultConfig()
	st := quizai.NewState([]quizai.Message{quizai.UserMessage("what is quantum computing", "")}, cfg)
	st.CurrentPlan = quizai.RawPlan("draft plan")
	st.Observations = []string{"obs"}

	return &quizai.Checkpoint{
		ThreadID:  threadID,
		Seq:       seq,
		Node:      quizai.NodePlanner,
		Next:      quizai.NodeHumanFeedback,
		State:     st,
		Config:    cfg,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, seq, 0, time.UTC),
	}
}

func TestCheckpointers(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Load(ctx, "missing")
			gt.True(t, errors.Is(err, quizai.ErrCheckpointNotFound))

			empty, err := store.List(ctx, "missing")
			gt.NoError(t, err)
			gt.A(t, empty).Length(0)

			first := sampleCheckpoint("t1", 1)
			second := sampleCheckpoint("t1", 2)
			second.Interrupt = &quizai.Interrupt{
				ID:    "intr-1",
				Node:  quizai.NodeHumanFeedback,
				Value: "Please Review the Plan.",
				Options: []quizai.InterruptOption{
					{Text: "Edit plan", Value: "edit_plan"},
				},
			}
			gt.NoError(t, store.Save(ctx, first))
			gt.NoError(t, store.Save(ctx, second))
			gt.NoError(t, store.Save(ctx, sampleCheckpoint("t2", 1)))

			latest, err := store.Load(ctx, "t1")
			gt.NoError(t, err).Required()
			gt.Equal(t, latest.Seq, 2)
			gt.True(t, latest.Suspended())
			gt.Equal(t, latest.Interrupt.Options[0].Value, "edit_plan")
			gt.Equal(t, latest.State.Messages[0].Content, "what is quantum computing")
			gt.Equal(t, latest.State.Observations, []string{"obs"})
			gt.True(t, latest.CreatedAt.Equal(second.CreatedAt))

			raw, ok := latest.State.CurrentPlan.Raw()
			gt.True(t, ok)
			gt.Equal(t, raw, "draft plan")

			all, err := store.List(ctx, "t1")
			gt.NoError(t, err).Required()
			gt.A(t, all).Length(2)
			gt.Equal(t, all[0].Seq, 1)
			gt.Equal(t, all[1].Seq, 2)

			gt.NoError(t, store.Delete(ctx, "t1"))
			_, err = store.Load(ctx, "t1")
			gt.True(t, errors.Is(err, quizai.ErrCheckpointNotFound))

			// other threads are untouched
			other, err := store.Load(ctx, "t2")
			gt.NoError(t, err).Required()
			gt.Equal(t, other.ThreadID, "t2")

			// deleting an unknown thread is not an error
			gt.NoError(t, store.Delete(ctx, "missing"))
		})
	}
}

func TestThreadsWithSeparators(t *testing.T) {
	ctx := context.Background()
	threads := map[string]string{
		"a/t": "topic of a",
		"b/t": "topic of b",
		"T":   "upper",
		"t":   "lower",
	}

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			for threadID, topic := range threads {
				cp := sampleCheckpoint(threadID, 1)
				cp.State.ResearchTopic = topic
				gt.NoError(t, store.Save(ctx, cp)).Required()
			}

			for threadID, topic := range threads {
				loaded, err := store.Load(ctx, threadID)
				gt.NoError(t, err).Required()
				gt.Equal(t, loaded.ThreadID, threadID)
				gt.Equal(t, loaded.State.ResearchTopic, topic)

				all, err := store.List(ctx, threadID)
				gt.NoError(t, err).Required()
				gt.A(t, all).Length(1)
			}
		})
	}
}

func TestFileRejectsForeignCheckpoint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := checkpoint.NewFile(dir)
	gt.NoError(t, store.Save(ctx, sampleCheckpoint("a", 1))).Required()

	data, err := os.ReadFile(filepath.Join(dir, hex.EncodeToString([]byte("a"))+".jsonl"))
	gt.NoError(t, err).Required()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, hex.EncodeToString([]byte("b"))+".jsonl"), data, 0600)).Required()

	_, err = store.Load(ctx, "b")
	gt.True(t, errors.Is(err, checkpoint.ErrThreadMismatch))

	loaded, err := store.Load(ctx, "a")
	gt.NoError(t, err).Required()
	gt.Equal(t, loaded.ThreadID, "a")
}

func TestSaveRequiresThreadID(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			gt.Error(t, store.Save(context.Background(), sampleCheckpoint("", 1)))
		})
	}
}

func TestRedisTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := checkpoint.NewRedis(client, checkpoint.WithKeyPrefix("test:"), checkpoint.WithTTL(time.Minute))
	gt.NoError(t, store.Save(context.Background(), sampleCheckpoint("t1", 1)))

	gt.True(t, mr.Exists("test:t1"))
	gt.Equal(t, mr.TTL("test:t1"), time.Minute)

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(context.Background(), "t1")
	gt.True(t, errors.Is(err, quizai.ErrCheckpointNotFound))
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	store, err := checkpoint.NewSQLite(ctx, path)
	gt.NoError(t, err).Required()
	gt.NoError(t, store.Save(ctx, sampleCheckpoint("t1", 1)))
	gt.NoError(t, store.Close())

	store, err = checkpoint.NewSQLite(ctx, path)
	gt.NoError(t, err).Required()
	defer store.Close()

	cp, err := store.Load(ctx, "t1")
	gt.NoError(t, err).Required()
	gt.Equal(t, cp.Seq, 1)
}

// nodeLLM answers by node so that a thread can be driven end to end.
type nodeLLM map[quizai.NodeID]*quizai.Response

func (m nodeLLM) Generate(ctx context.Context, req *quizai.Request) (*quizai.Response, error) {
	node, _ := quizai.NodeFromContext(ctx)
	resp, ok := m[node]
	if !ok {
		return nil, errors.New("unexpected call from " + string(node))
	}
	return resp, nil
}

func (m nodeLLM) Stream(ctx context.Context, req *quizai.Request, fn func(chunk string) error) (*quizai.Response, error) {
	resp, err := m.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, text := range resp.Texts {
		if err := fn(text); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func TestResumeAcrossWorkflows(t *testing.T) {
	plan, err := json.Marshal(quizai.Plan{
		Locale: "en-US",
		Title:  "Quantum computing",
		Steps: []quizai.Step{
			{Title: "basics", Description: "collect basics", StepType: quizai.StepTypeResearch},
		},
	})
	gt.NoError(t, err).Required()

	llm := nodeLLM{
		quizai.NodeCoordinator: {FunctionCalls: []*quizai.FunctionCall{{
			ID:        "c1",
			Name:      "handoff_to_planner",
			Arguments: map[string]any{"research_topic": "quantum computing", "locale": "en-US"},
		}}},
		quizai.NodePlanner:    {Texts: []string{string(plan)}},
		quizai.NodeResearcher: {Texts: []string{"qubits are the basic unit"}},
		quizai.NodeReporter:   {Texts: []string{"# Report"}},
	}
	newWorkflow := func(store quizai.Checkpointer) *quizai.Workflow {
		registry := quizai.NewLLMRegistry().Register(quizai.LLMTypeBasic, llm)
		return quizai.New(registry, quizai.WithCheckpointer(store))
	}

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cfg := quizai.DefaultConfig()
			cfg.EnableBackgroundInvestigation = false
			cfg.AutoAcceptedPlan = true

			result, err := newWorkflow(store).Run(ctx, "thread", []quizai.Message{quizai.UserMessage("quantum computing", "")}, cfg)
			gt.NoError(t, err).Required()
			gt.Equal(t, result.Outcome, quizai.OutcomeInterrupted)

			// a fresh workflow sees the suspended thread through the store
			result, err = newWorkflow(store).Resume(ctx, "thread", "[ACCEPTED]")
			gt.NoError(t, err).Required()
			gt.Equal(t, result.Outcome, quizai.OutcomeReport)
			gt.Equal(t, result.FinalReport, "# Report")

			history, err := store.List(ctx, "thread")
			gt.NoError(t, err).Required()
			gt.N(t, len(history)).Greater(5)
			gt.True(t, history[len(history)-1].Done())
		})
	}
}
