package engine

import "slices"

// PhaseEdges lists every legal phase transition. Anything not listed is rejected.
var PhaseEdges = map[Phase][]Phase{
	PhaseLobby:          {PhaseQuestionActive, PhaseEnded},
	PhaseQuestionActive: {PhaseAnswerReveal, PhaseEnded},
	PhaseAnswerReveal:   {PhaseQuestionActive, PhaseEnded},
	PhaseEnded:          {},
}

func CanTransition(from, to Phase) bool {
	return slices.Contains(PhaseEdges[from], to)
}
