package reading

import "math"

// Summary is the final accuracy report of one reading attempt.
type Summary struct {
	TotalWords      int     `json:"total_words"`
	CorrectWords    int     `json:"correct_words"`
	IncorrectWords  int     `json:"incorrect_words"`
	AccuracyPercent float64 `json:"accuracy_percent"`

	// Completed is true when the reader reached the end of the passage and
	// false when the session was stopped early.
	Completed bool `json:"completed"`
}

// BuildSummary counts states and computes the accuracy percentage rounded to
// two decimals. Pending words count towards the total only.
func BuildSummary(states []WordState, completed bool) Summary {
	s := Summary{TotalWords: len(states), Completed: completed}
	for _, st := range states {
		switch st {
		case Correct:
			s.CorrectWords++
		case Incorrect:
			s.IncorrectWords++
		}
	}
	if s.TotalWords > 0 {
		pct := float64(s.CorrectWords) / float64(s.TotalWords) * 100
		s.AccuracyPercent = math.Round(pct*100) / 100
	}
	return s
}
