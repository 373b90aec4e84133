package session

import "github.com/pavelanni/interviewer/internal/model"

// Ledger is the append-only record of completed turns. It has no delete or
// reorder operation, so positions handed out by All stay valid.
// A Ledger is not safe for concurrent use; its Machine guards it.
type Ledger struct {
	turns []model.Turn
}

// Append records a turn.
func (l *Ledger) Append(t model.Turn) {
	l.turns = append(l.turns, cloneTurn(t))
}

// All returns a copy of the recorded turns in append order.
func (l *Ledger) All() []model.Turn {
	out := make([]model.Turn, len(l.turns))
	for i, t := range l.turns {
		out[i] = cloneTurn(t)
	}
	return out
}

// Count returns the number of recorded turns.
func (l *Ledger) Count() int {
	return len(l.turns)
}

func cloneTurn(t model.Turn) model.Turn {
	if t.Evaluation != nil {
		ev := *t.Evaluation
		ev.Strengths = append([]string(nil), ev.Strengths...)
		ev.Improvements = append([]string(nil), ev.Improvements...)
		t.Evaluation = &ev
	}
	return t
}
