package quizai

import (
	"context"
)

// backgroundInvestigator runs one web search on the research topic before
// planning. Search failures leave the results unset.
func (r *runner) backgroundInvestigator(ctx context.Context, st *State) (*Command, error) {
	logger := LoggerFromContext(ctx)

	if r.searcher == nil {
		logger.Warn("background investigation skipped, no searcher configured")
		return Goto(NodePlanner), nil
	}

	args := map[string]any{"query": st.ResearchTopic, "max_results": r.cfg.MaxSearchResults}
	ctx = r.trace.StartToolExec(ctx, "background_search", args)
	results, err := r.searcher.Search(ctx, st.ResearchTopic, r.cfg.MaxSearchResults)
	r.trace.EndToolExec(ctx, map[string]any{"count": len(results)}, err)

	if err != nil {
		logger.Warn("background search failed", "error", collaboratorError(err, "search failed"))
		return Goto(NodePlanner), nil
	}

	text := FormatSearchResults(results)
	logger.Info("background investigation done", "results", len(results))
	return &Command{
		Update: &Update{BackgroundInvestigationResults: &text},
		Goto:   NodePlanner,
	}, nil
}
