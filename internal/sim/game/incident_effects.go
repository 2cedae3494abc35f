package game

import (
	"fmt"
	"math"

	"mailcraft.ai/internal/sim/catalogs"

	"mailcraft.ai/internal/protocol"
)

// EffectChange records one state mutation performed by the effect engine,
// for broadcast and audit.
type EffectChange struct {
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Team        string  `json:"team,omitempty"`
	Client      string  `json:"client,omitempty"`
	Destination string  `json:"destination,omitempty"`
	Delta       float64 `json:"delta,omitempty"`
	NewValue    float64 `json:"new_value,omitempty"`
}

// EffectResult is the outcome of applying an incident's effect list.
// Changes applied before a failure stay listed so callers never lose
// sight of partial application.
type EffectResult struct {
	Success       bool
	Error         string
	Changes       []EffectChange
	Notifications []string
	ChoicesSeeded []string // teams seeded with a pending choice
}

// ApplyIncidentEffects interprets an incident's effect list against the
// session. teamName is the acting team for selected_esp/selected_client
// targets; clientID is the client picked at trigger time. Incident data is
// externally editable, so unknown targets are logged and skipped, and a
// panic inside application is converted into a failed result carrying the
// changes that did land.
func (s *GameSession) ApplyIncidentEffects(incidentID, teamName, clientID string) (res EffectResult) {
	def, ok := s.cats.Incidents.ByID[incidentID]
	if !ok {
		return EffectResult{Success: false, Error: fmt.Sprintf("unknown incident %s", incidentID)}
	}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("effect application failed: %v", r)
			s.event("incident_effect_panic", map[string]any{"incident": incidentID, "panic": fmt.Sprint(r)})
		}
	}()

	res.Success = true
	for _, eff := range def.Effects {
		s.applyEffect(eff, teamName, clientID, &res)
	}

	if def.Choice != nil {
		for _, t := range s.resolveTargetTeams(def.Choice.TargetTeams) {
			s.seedPendingChoice(t, def)
			res.ChoicesSeeded = append(res.ChoicesSeeded, t.Name)
		}
	}

	s.event("incident_applied", map[string]any{
		"incident": incidentID,
		"team":     teamName,
		"changes":  len(res.Changes),
	})
	return res
}

// applyEffect dispatches on target first, then type.
func (s *GameSession) applyEffect(eff catalogs.Effect, teamName, clientID string, res *EffectResult) {
	switch eff.Target {
	case catalogs.TargetSelectedESP:
		if t := s.Team(teamName); t != nil {
			s.applyTeamEffect(t, eff, res)
		}
	case catalogs.TargetConditionalESP:
		for _, t := range s.Teams {
			if s.conditionHolds(t, nil, eff.Condition) {
				s.applyTeamEffect(t, eff, res)
			}
		}
	case catalogs.TargetSelectedClient:
		t := s.Team(teamName)
		if t == nil {
			return
		}
		cs := t.ClientStates[clientID]
		if cs == nil {
			return
		}
		if !s.conditionHolds(t, cs, eff.Condition) {
			return
		}
		switch eff.Type {
		case catalogs.EffectVolumeMultiplier, catalogs.EffectSpamTrapMultiplier:
			s.appendClientModifier(t, clientID, cs, eff, res)
		case catalogs.EffectReputation, catalogs.EffectReputationSet, catalogs.EffectCredits:
			s.applyTeamEffect(t, eff, res)
		default:
			s.skipUnknown(eff)
		}
	case catalogs.TargetAllESPs:
		switch eff.Type {
		case catalogs.EffectVolumeMultiplier, catalogs.EffectSpamTrapMultiplier:
			for _, t := range s.Teams {
				for _, id := range t.ActiveClients {
					cs := t.ClientStates[id]
					if cs == nil || cs.Status != ClientActive {
						continue
					}
					if !clientTypeAllowed(s.cats.Clients.ByID[id].Type, eff.ClientTypes) {
						continue
					}
					s.appendClientModifier(t, id, cs, eff, res)
				}
			}
		default:
			for _, t := range s.Teams {
				s.applyTeamEffect(t, eff, res)
			}
		}
	case catalogs.TargetAllDestinations:
		if eff.Type != catalogs.EffectBudget {
			s.skipUnknown(eff)
			return
		}
		for _, d := range s.Destinations {
			old := d.Budget
			d.Budget = clampNonNegative(old + int(math.Round(eff.Value)))
			res.Changes = append(res.Changes, EffectChange{
				Target: string(eff.Target), Type: string(eff.Type),
				Destination: d.Name,
				Delta:       float64(d.Budget - old),
				NewValue:    float64(d.Budget),
			})
		}
	case catalogs.TargetNotification:
		res.Notifications = append(res.Notifications, eff.Message)
	default:
		s.skipUnknown(eff)
	}
}

// applyTeamEffect handles the team-scoped effect types.
func (s *GameSession) applyTeamEffect(t *ESPTeam, eff catalogs.Effect, res *EffectResult) {
	switch eff.Type {
	case catalogs.EffectReputation:
		for _, d := range s.Destinations {
			old := s.ReputationAt(t, d.Name)
			next := clampReputation(math.Round(old + eff.Value))
			t.Reputation[d.Name] = next
			res.Changes = append(res.Changes, EffectChange{
				Target: string(eff.Target), Type: string(eff.Type),
				Team: t.Name, Destination: d.Name,
				Delta: next - old, NewValue: next,
			})
		}
	case catalogs.EffectReputationSet:
		target := clampReputation(eff.Value)
		for _, d := range s.Destinations {
			old := s.ReputationAt(t, d.Name)
			t.Reputation[d.Name] = target
			// Delta is new-old for broadcast, not the raw set value.
			res.Changes = append(res.Changes, EffectChange{
				Target: string(eff.Target), Type: string(eff.Type),
				Team: t.Name, Destination: d.Name,
				Delta: target - old, NewValue: target,
			})
		}
	case catalogs.EffectCredits:
		old := t.Credits
		t.Credits = clampNonNegative(int(math.Round(float64(old) + eff.Value)))
		res.Changes = append(res.Changes, EffectChange{
			Target: string(eff.Target), Type: string(eff.Type),
			Team:  t.Name,
			Delta: float64(t.Credits - old), NewValue: float64(t.Credits),
		})
	case catalogs.EffectAutoLock:
		if s.CurrentPhase == PhasePlanning {
			if !t.LockedIn {
				t.LockedIn = true
				s.event("auto_locked", map[string]any{"team": t.Name, "incident": true})
			}
		} else {
			t.PendingAutoLock = true
		}
		res.Changes = append(res.Changes, EffectChange{
			Target: string(eff.Target), Type: string(eff.Type), Team: t.Name,
		})
	default:
		s.skipUnknown(eff)
	}
}

// appendClientModifier adds (never replaces) a modifier on the client,
// with the round scope derived from the effect's duration.
func (s *GameSession) appendClientModifier(t *ESPTeam, clientID string, cs *ClientState, eff catalogs.Effect, res *EffectResult) {
	rounds := s.durationRounds(eff.Duration)
	mod := NewModifier(
		fmt.Sprintf("%s_%s_r%d", clientID, eff.Type, s.CurrentRound),
		"incident",
		eff.Multiplier,
		rounds,
	)
	switch eff.Type {
	case catalogs.EffectVolumeMultiplier:
		cs.VolumeModifiers = append(cs.VolumeModifiers, mod)
	case catalogs.EffectSpamTrapMultiplier:
		cs.SpamTrapModifiers = append(cs.SpamTrapModifiers, mod)
	}
	res.Changes = append(res.Changes, EffectChange{
		Target: string(eff.Target), Type: string(eff.Type),
		Team: t.Name, Client: clientID,
		NewValue: eff.Multiplier,
	})
}

func (s *GameSession) durationRounds(d catalogs.EffectDuration) []int {
	switch d {
	case catalogs.DurationThisRound:
		return []int{s.CurrentRound}
	case catalogs.DurationNextRound:
		return []int{s.CurrentRound + 1}
	default:
		all := make([]int, 0, s.cfg.Rounds)
		for r := 1; r <= s.cfg.Rounds; r++ {
			all = append(all, r)
		}
		return all
	}
}

// conditionHolds evaluates the closed condition set against the team's
// upgrades or the client's modifiers. No condition means unconditional.
func (s *GameSession) conditionHolds(t *ESPTeam, cs *ClientState, cond *catalogs.Condition) bool {
	if cond == nil {
		return true
	}
	switch cond.Type {
	case catalogs.CondHasTech:
		return t.OwnsUpgrade(cond.Tech)
	case catalogs.CondLacksTech:
		return !t.OwnsUpgrade(cond.Tech)
	case catalogs.CondHasListHygiene:
		return cs != nil && cs.hasModifierFromSource("list_hygiene")
	default:
		s.event("incident_condition_skipped", map[string]any{"condition": cond.Type})
		return false
	}
}

func clientTypeAllowed(clientType string, allow []string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if a == clientType {
			return true
		}
	}
	return false
}

func (s *GameSession) skipUnknown(eff catalogs.Effect) {
	s.event("incident_effect_skipped", map[string]any{
		"target": string(eff.Target),
		"type":   string(eff.Type),
		"code":   protocol.ErrBadRequest,
	})
}
