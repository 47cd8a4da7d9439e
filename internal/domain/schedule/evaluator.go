package schedule

import "time"

// Evaluation is the outcome of checking one frequency spec at a point in time.
type Evaluation struct {
	Frequency Frequency
	Due       bool
	Window    string // tracker period or absolute range to query when due
}

// Evaluator answers due-ness and window questions for raw frequency specs.
type Evaluator struct {
	PollInterval time.Duration
}

func NewEvaluator(pollInterval time.Duration) *Evaluator {
	return &Evaluator{PollInterval: pollInterval}
}

// Evaluate parses raw and decides whether it is due at now. The window is
// only resolved for due specs.
func (e *Evaluator) Evaluate(raw string, now time.Time) (Evaluation, error) {
	f, err := Parse(raw)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{Frequency: f, Due: f.IsDue(now)}
	if ev.Due {
		ev.Window = f.Window(now, e.PollInterval)
	}
	return ev, nil
}
