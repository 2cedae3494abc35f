package game

import "mailcraft.ai/internal/protocol"

// PhaseResult reports a phase-machine step. Never panics, never partial:
// a failed transition leaves the session untouched.
type PhaseResult struct {
	OK      bool
	Code    string
	Message string
	From    Phase
	To      Phase

	// Set when the step ran the resolution pipeline.
	Results      *ResolutionResults
	UpdatedTeams []string
	Suspended    []string
}

func phaseFail(from Phase, code, message string) PhaseResult {
	return PhaseResult{OK: false, Code: code, Message: message, From: from, To: from}
}

// AllLockedIn reports whether every participating team and destination
// with players has locked in. Seats without players never gate the round.
func (s *GameSession) AllLockedIn() bool {
	for _, t := range s.Teams {
		if t.PlayerCount > 0 && !t.LockedIn {
			return false
		}
	}
	for _, d := range s.Destinations {
		if d.PlayerCount > 0 && !d.LockedIn {
			return false
		}
	}
	return true
}

// AdvancePhase moves the session one step through
// lobby -> resource_allocation -> planning -> resolution -> consequences,
// cycling planning/resolution/consequences once per round. The
// planning->resolution edge is the only trigger for the resolution
// pipeline; resolution->consequences is automatic within the same call.
// force is the facilitator's early end-of-phase: stragglers get an
// explicit auto-lock, not a silent skip.
func (s *GameSession) AdvancePhase(force bool) PhaseResult {
	from := s.CurrentPhase
	switch s.CurrentPhase {
	case PhaseLobby:
		if len(s.Teams) == 0 || len(s.Destinations) == 0 {
			return phaseFail(from, protocol.ErrNotAllowed, "need at least one ESP team and one destination")
		}
		s.CurrentPhase = PhaseResourceAllocation
	case PhaseResourceAllocation:
		s.enterPlanning()
	case PhasePlanning:
		if !s.AllLockedIn() {
			if !force {
				return phaseFail(from, protocol.ErrNotAllowed, "teams are still planning")
			}
			s.forceLockStragglers()
		}
		return s.resolveRound(from)
	case PhaseResolution:
		// Resolution advances itself; a second call here is absorbed.
		return PhaseResult{OK: true, From: from, To: s.CurrentPhase}
	case PhaseConsequences:
		if s.CurrentRound >= s.cfg.Rounds {
			s.CurrentPhase = PhaseFinished
		} else {
			s.enterPlanning()
		}
	case PhaseFinished:
		return phaseFail(from, protocol.ErrNotAllowed, "game is finished")
	}
	s.event("phase_changed", map[string]any{"from": string(from), "to": string(s.CurrentPhase)})
	return PhaseResult{OK: true, From: from, To: s.CurrentPhase}
}

// enterPlanning increments the round, resets lock-in flags, drops stale
// pending choices (unconfirmed ones with a choice_discarded event, so a
// force-ended round never loses them silently) and honors auto-locks
// deferred from incident effects.
func (s *GameSession) enterPlanning() {
	s.CurrentRound++
	s.CurrentPhase = PhasePlanning
	for _, t := range s.Teams {
		t.LockedIn = false
		for _, pc := range t.PendingIncidentChoices {
			if !pc.Confirmed {
				s.event("choice_discarded", map[string]any{
					"team": t.Name, "incident": pc.IncidentID, "choice": pc.ChoiceID,
				})
			}
		}
		t.PendingIncidentChoices = nil
		if t.PendingAutoLock {
			t.PendingAutoLock = false
			t.LockedIn = true
			s.event("auto_locked", map[string]any{"team": t.Name, "deferred": true})
		}
	}
	for _, d := range s.Destinations {
		d.LockedIn = false
	}
}

func (s *GameSession) forceLockStragglers() {
	for _, t := range s.Teams {
		if t.PlayerCount > 0 && !t.LockedIn {
			t.LockedIn = true
			s.event("auto_locked", map[string]any{"team": t.Name, "forced": true})
		}
	}
	for _, d := range s.Destinations {
		if d.PlayerCount > 0 && !d.LockedIn {
			d.LockedIn = true
			s.event("auto_locked", map[string]any{"destination": d.Name, "forced": true})
		}
	}
}

// resolveRound runs the settlement pipeline exactly once for this
// planning->resolution transition, folds the results into the session and
// lands in consequences.
func (s *GameSession) resolveRound(from Phase) PhaseResult {
	s.CurrentPhase = PhaseResolution
	results := s.ExecuteResolution()
	s.ResolutionHistory = append(s.ResolutionHistory, results)
	applied := s.ApplyResolution(results)
	suspended := s.suspendNoisyClients(results)
	s.CurrentPhase = PhaseConsequences
	s.event("round_resolved", map[string]any{
		"round":         results.Round,
		"updated_teams": applied.UpdatedTeams,
		"suspended":     suspended,
	})
	return PhaseResult{
		OK:           true,
		From:         from,
		To:           PhaseConsequences,
		Results:      results,
		UpdatedTeams: applied.UpdatedTeams,
		Suspended:    suspended,
	}
}

// suspendNoisyClients pushes clients whose adjusted complaint rate crossed
// the suspension threshold into the terminal suspended state. This is the
// only producer of ClientSuspended; players can never set it directly.
func (s *GameSession) suspendNoisyClients(results *ResolutionResults) []string {
	var suspended []string
	for _, t := range s.Teams {
		res := results.ESPResults[t.Name]
		if res == nil {
			continue
		}
		for clientID, rate := range res.Complaints.PerClient {
			if rate <= s.cfg.SuspendComplaintRate {
				continue
			}
			cs := t.ClientStates[clientID]
			if cs == nil || cs.Status == ClientSuspended {
				continue
			}
			cs.Status = ClientSuspended
			suspended = append(suspended, t.Name+"/"+clientID)
			s.event("client_suspended", map[string]any{"team": t.Name, "client": clientID, "rate": rate})
		}
	}
	return suspended
}

// SetPaused freezes wall-clock timers in the surrounding UI. It is
// orthogonal to the phase machine and gates nothing inside the engine.
func (s *GameSession) SetPaused(paused bool) {
	if s.Paused == paused {
		return
	}
	s.Paused = paused
	s.event("pause_changed", map[string]any{"paused": paused})
}
