package engine

// Scorer awards points for a correct answer: a flat amount plus an optional bonus that
// shrinks linearly with the time already spent on the question.
type Scorer struct {
	Points     int
	SpeedBonus int
	Window     int // seconds per question
}

func scorerFor(settings Settings) Scorer {
	return Scorer{
		Points:     settings.PointsPerCorrect,
		SpeedBonus: settings.SpeedBonus,
		Window:     settings.TimePerQuestionSec,
	}
}

// Award never returns a negative value, so scores only grow.
func (sc Scorer) Award(remaining int) int {
	pts := max(sc.Points, 0)
	if sc.SpeedBonus > 0 && sc.Window > 0 {
		remaining = min(max(remaining, 0), sc.Window)
		pts += sc.SpeedBonus * remaining / sc.Window
	}
	return pts
}
