package session

import (
	"time"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
)

// syncTimer keeps exactly one ticker alive while a question is active. A new question
// (or leaving question_active) invalidates every tick already in flight.
func (s *Session) syncTimer(prev, next engine.State) {
	if next.Phase != engine.PhaseQuestionActive {
		if s.timerStop != nil {
			s.disarmTimer()
		}
		return
	}
	if prev.Phase != engine.PhaseQuestionActive || prev.QuestionIndex != next.QuestionIndex {
		s.armTimer()
	}
}

func (s *Session) armTimer() {
	s.disarmTimer()
	stop := make(chan struct{})
	s.timerStop = stop
	go s.runTicker(s.timerGen, stop)
}

func (s *Session) disarmTimer() {
	if s.timerStop != nil {
		close(s.timerStop)
		s.timerStop = nil
	}
	s.timerGen++
}

func (s *Session) runTicker(gen uint64, stop <-chan struct{}) {
	t := time.NewTicker(s.opts.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-t.C:
			select {
			case s.inbox <- timerTick{gen: gen}:
			case <-stop:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}
}
