package report

import (
	"errors"

	"github.com/pavelanni/interviewer/internal/model"
)

// ErrEmptyResult is returned when no turn carries an evaluation.
var ErrEmptyResult = errors.New("no scorable turns")

const (
	excellentThreshold = 80.0
	goodThreshold      = 60.0
)

// Summarize folds the scored turns of a ledger into a Summary.
// Unscored turns (mock transcript lines) are skipped; PerTurn keeps ledger order.
func Summarize(role model.Role, turns []model.Turn) (model.Summary, error) {
	var total float64
	var perTurn []model.TurnScore
	for _, t := range turns {
		if !t.Scored() {
			continue
		}
		total += t.Evaluation.Score
		perTurn = append(perTurn, model.TurnScore{Turn: t, Score: t.Evaluation.Score})
	}
	if len(perTurn) == 0 {
		return model.Summary{}, ErrEmptyResult
	}

	n := float64(len(perTurn))
	// Dividing once keeps round numbers exact (80, not 80.00000000000001).
	percentage := total * 100 / (model.MaxScore * n)

	return model.Summary{
		Role:         role,
		AverageScore: total / n,
		Percentage:   percentage,
		Tier:         TierFor(percentage),
		PerTurn:      perTurn,
	}, nil
}

// TierFor classifies a percentage. Each band includes its lower bound.
func TierFor(percentage float64) model.Tier {
	switch {
	case percentage >= excellentThreshold:
		return model.TierExcellent
	case percentage >= goodThreshold:
		return model.TierGood
	default:
		return model.TierNeedsImprovement
	}
}

// ScoreBand returns the tier a single 0-10 score would fall into.
func ScoreBand(score float64) model.Tier {
	return TierFor(score * 100 / model.MaxScore)
}
