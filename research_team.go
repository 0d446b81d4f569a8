package quizai

import "context"

func (r *runner) researchTeam(ctx context.Context, st *State) (*Command, error) {
	next := NextAfterResearchTeam(st)
	LoggerFromContext(ctx).Debug("research team dispatch", "next", next)
	return Goto(next), nil
}
