package quizai

// NextAfterResearchTeam decides where the research team sends the thread.
// The first step without a result wins; its type selects the worker. An
// absent, unparsed, empty or fully executed plan goes back to the planner.
func NextAfterResearchTeam(st *State) NodeID {
	plan, ok := st.CurrentPlan.Plan()
	if !ok || len(plan.Steps) == 0 {
		return NodePlanner
	}

	step := plan.FirstIncompleteStep()
	if step == nil {
		return NodePlanner
	}

	switch step.StepType {
	case StepTypeResearch:
		return NodeResearcher
	case StepTypeProcessing:
		return NodeCoder
	default:
		return NodePlanner
	}
}
