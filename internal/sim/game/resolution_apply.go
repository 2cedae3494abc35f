package game

import "math"

// ApplyResult reports which teams a resolution touched.
type ApplyResult struct {
	Success      bool
	UpdatedTeams []string
}

// ApplyResolution folds a results object into the live session. Teams
// absent from the results map are left untouched and the call still
// succeeds. Revenue is added without clamping: a visibly negative balance
// after a bad round is intentional and must be resolved before the next
// lock-in. Reputation deltas add onto the live value (missing entries
// default first), then round, then clamp to [0,100].
//
// Callers must invoke this at most once per round's results; the phase
// machine is the guard. A second application would double-count revenue.
func (s *GameSession) ApplyResolution(results *ResolutionResults) ApplyResult {
	out := ApplyResult{Success: true}
	for _, t := range s.Teams {
		res := results.ESPResults[t.Name]
		if res == nil {
			continue
		}
		t.Credits += res.Revenue.Actual
		for destName, delta := range res.Reputation {
			old, ok := t.Reputation[destName]
			if !ok {
				old = s.cfg.DefaultReputation
			}
			t.Reputation[destName] = clampReputation(math.Round(old + delta.Raw))
		}
		out.UpdatedTeams = append(out.UpdatedTeams, t.Name)
	}
	return out
}
