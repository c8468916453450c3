package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/MrWong99/readalong/internal/practice"
	"github.com/MrWong99/readalong/internal/reading"
)

// reporter prints live word verdicts and the final summary. In text mode
// each resolved word is printed as it happens; in JSON mode a single report
// object is written at the end.
type reporter struct {
	w       io.Writer
	format  string
	passage *reading.Passage
}

var _ practice.Listener = (*reporter)(nil)

func newReporter(w io.Writer, format string) *reporter {
	return &reporter{w: w, format: format}
}

func (r *reporter) OnWordState(i int, s reading.WordState) {
	if r.format != "text" || r.passage == nil {
		return
	}
	fmt.Fprintf(r.w, "%4d  %-9s  %s\n", i+1, s, r.passage.Word(i))
}

func (r *reporter) OnSummary(reading.Summary) {}

func (r *reporter) OnFatal(error) {}

type wordReport struct {
	Index int    `json:"index"`
	Word  string `json:"word"`
	State string `json:"state"`
}

type report struct {
	SessionID string          `json:"session_id"`
	Words     []wordReport    `json:"words"`
	Summary   reading.Summary `json:"summary"`
}

// finish writes the end-of-session output.
func (r *reporter) finish(sessionID string, states []reading.WordState, sum reading.Summary) error {
	if r.format == "json" {
		rep := report{SessionID: sessionID, Summary: sum, Words: make([]wordReport, len(states))}
		for i, s := range states {
			rep.Words[i] = wordReport{Index: i, Word: r.passage.Word(i), State: s.String()}
		}
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	status := "stopped early"
	if sum.Completed {
		status = "completed"
	}
	_, err := fmt.Fprintf(r.w, "\n%d/%d words correct, %d incorrect (%.2f%%), %s\n",
		sum.CorrectWords, sum.TotalWords, sum.IncorrectWords, sum.AccuracyPercent, status)
	return err
}
