package learning

import (
	"github.com/dotcommander/scout/internal/scoutmodel"
)

const (
	minWindowLen = 2
	maxWindowLen = 5
)

// patternCandidate summarizes one fingerprint's occurrences within the
// current rolling action buffer (spec.md §4.11: "PatternCandidate").
type patternCandidate struct {
	Fingerprint string
	Category    string
	Steps       []scoutmodel.PatternStep
	Intents     []scoutmodel.Intent
	Occurrences int
	stepsTotal  int
	stepsOK     int
}

// SuccessRate returns the step-level success ratio across every observed
// occurrence of this fingerprint.
func (c *patternCandidate) SuccessRate() float64 {
	if c.stepsTotal == 0 {
		return 0
	}
	return float64(c.stepsOK) / float64(c.stepsTotal)
}

// miner slides windows of length 2..5 across the rolling action buffer,
// counting fingerprint occurrences (spec.md §4.11: "Any fingerprint with
// ≥2 occurrences becomes/updates a PatternCandidate").
//
// Mine is stateless across calls by design: the buffer it's given already
// is the rolling last-~100-actions window (spec.md §4.11), so an
// occurrence count is "how many times this fingerprint appears in the
// current buffer", not a count accumulated across every past call on
// overlapping buffer contents.
type miner struct{}

func newMiner() *miner {
	return &miner{}
}

// Mine scans buffer once and returns every window fingerprint's candidate,
// including those below the promotion threshold — the caller decides what
// qualifies for promotion this round.
func (m *miner) Mine(buffer []scoutmodel.ExecutionEvent) []*patternCandidate {
	candidates := map[string]*patternCandidate{}
	for length := minWindowLen; length <= maxWindowLen; length++ {
		if length > len(buffer) {
			continue
		}
		for start := 0; start+length <= len(buffer); start++ {
			window := buffer[start : start+length]
			fp := scoutmodel.PatternFingerprint(window)
			c, ok := candidates[fp]
			if !ok {
				c = &patternCandidate{
					Fingerprint: fp,
					Category:    window[0].Domain,
					Steps:       stepsFromWindow(window),
					Intents:     intentsFromWindow(window),
				}
				candidates[fp] = c
			}
			c.Occurrences++
			for _, ev := range window {
				c.stepsTotal++
				if ev.Success() {
					c.stepsOK++
				}
			}
		}
	}

	out := make([]*patternCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c)
	}
	return out
}

func stepsFromWindow(window []scoutmodel.ExecutionEvent) []scoutmodel.PatternStep {
	steps := make([]scoutmodel.PatternStep, len(window))
	for i, ev := range window {
		steps[i] = scoutmodel.PatternStep{Verb: ev.Verb, Target: string(ev.Intent)}
	}
	return steps
}

func intentsFromWindow(window []scoutmodel.ExecutionEvent) []scoutmodel.Intent {
	intents := make([]scoutmodel.Intent, len(window))
	for i, ev := range window {
		intents[i] = ev.Intent
	}
	return intents
}
