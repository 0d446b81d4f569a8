package quizai

import "context"

// NodeID identifies a node of the workflow graph.
type NodeID string

const (
	NodeCoordinator            NodeID = "coordinator"
	NodeBackgroundInvestigator NodeID = "background_investigator"
	NodePlanner                NodeID = "planner"
	NodeHumanFeedback          NodeID = "human_feedback"
	NodeResearchTeam           NodeID = "research_team"
	NodeResearcher             NodeID = "researcher"
	NodeCoder                  NodeID = "coder"
	NodeReporter               NodeID = "reporter"

	// NodeEnd terminates the run without a report.
	NodeEnd NodeID = "__end__"
)

func (x NodeID) String() string {
	return string(x)
}

// Command is what a node returns: a partial state update and the next node.
// A command carrying an Interrupt suspends the thread instead; its Update
// and Goto are ignored.
type Command struct {
	Update    *Update
	Goto      NodeID
	Interrupt *Interrupt
}

// Goto builds a command that only routes.
func Goto(next NodeID) *Command {
	return &Command{Goto: next}
}

// NodeFunc executes one node against a read-only view of the state.
type NodeFunc func(ctx context.Context, st *State) (*Command, error)
