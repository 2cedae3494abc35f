package game

import (
	"fmt"

	"mailcraft.ai/internal/protocol"
	"mailcraft.ai/internal/sim/catalogs"
)

// ChoiceResult reports a step of the incident choice sub-protocol.
type ChoiceResult struct {
	OK      bool
	Code    string
	Message string
	Applied bool
	Effects *EffectResult
}

// Choice targeting criteria.
const (
	ChoiceHighestReputation = "highest_reputation"
	ChoiceLowestReputation  = "lowest_reputation"
	ChoiceAllESPs           = "all_esps"
)

// ResolveTargetTeams picks which teams a choice incident lands on:
// the arg-max/arg-min by unweighted mean reputation, or everyone. Ties
// break in session order, first listed wins.
func (s *GameSession) ResolveTargetTeams(criterion string) []*ESPTeam {
	return s.resolveTargetTeams(criterion)
}

func (s *GameSession) resolveTargetTeams(criterion string) []*ESPTeam {
	if len(s.Teams) == 0 {
		return nil
	}
	switch criterion {
	case ChoiceAllESPs:
		return append([]*ESPTeam(nil), s.Teams...)
	case ChoiceHighestReputation:
		best := s.Teams[0]
		bestMean := s.MeanReputation(best)
		for _, t := range s.Teams[1:] {
			if m := s.MeanReputation(t); m > bestMean {
				best, bestMean = t, m
			}
		}
		return []*ESPTeam{best}
	case ChoiceLowestReputation:
		worst := s.Teams[0]
		worstMean := s.MeanReputation(worst)
		for _, t := range s.Teams[1:] {
			if m := s.MeanReputation(t); m < worstMean {
				worst, worstMean = t, m
			}
		}
		return []*ESPTeam{worst}
	default:
		return nil
	}
}

// seedPendingChoice gives the team its default, unconfirmed choice entry.
// The default is the option flagged is_default, else the first listed.
func (s *GameSession) seedPendingChoice(t *ESPTeam, def catalogs.IncidentDef) {
	for _, pc := range t.PendingIncidentChoices {
		if pc.IncidentID == def.ID {
			return
		}
	}
	defaultID := def.Choice.Options[0].ID
	for _, opt := range def.Choice.Options {
		if opt.IsDefault {
			defaultID = opt.ID
			break
		}
	}
	t.PendingIncidentChoices = append(t.PendingIncidentChoices, &PendingChoice{
		IncidentID: def.ID,
		ChoiceID:   defaultID,
	})
	s.event("choice_seeded", map[string]any{"team": t.Name, "incident": def.ID, "default": defaultID})
}

// SetPendingChoice confirms a team's pick and applies the chosen option's
// effects immediately. It may be called again to switch the pick before
// lock-in; switching applies the new option without reversing the old one
// (deliberate, see DESIGN.md).
func (s *GameSession) SetPendingChoice(teamName, incidentID, choiceID string) ChoiceResult {
	t := s.Team(teamName)
	if t == nil {
		return ChoiceResult{OK: false, Code: protocol.ErrNotFound, Message: fmt.Sprintf("unknown team %s", teamName)}
	}
	var pending *PendingChoice
	for _, pc := range t.PendingIncidentChoices {
		if pc.IncidentID == incidentID {
			pending = pc
			break
		}
	}
	if pending == nil {
		return ChoiceResult{OK: false, Code: protocol.ErrNoPendingChoice,
			Message: fmt.Sprintf("team %s has no pending choice for %s", teamName, incidentID)}
	}
	def, ok := s.cats.Incidents.ByID[incidentID]
	if !ok || def.Choice == nil {
		return ChoiceResult{OK: false, Code: protocol.ErrIncidentNotFound,
			Message: fmt.Sprintf("incident %s has no choice options", incidentID)}
	}
	var option *catalogs.ChoiceOption
	for i := range def.Choice.Options {
		if def.Choice.Options[i].ID == choiceID {
			option = &def.Choice.Options[i]
			break
		}
	}
	if option == nil {
		return ChoiceResult{OK: false, Code: protocol.ErrInvalidChoice,
			Message: fmt.Sprintf("incident %s has no option %s", incidentID, choiceID)}
	}

	effects := s.applyOptionEffects(option, teamName)
	pending.ChoiceID = choiceID
	pending.Confirmed = true
	pending.EffectsApplied = true
	s.event("choice_confirmed", map[string]any{"team": teamName, "incident": incidentID, "choice": choiceID})
	return ChoiceResult{OK: true, Applied: true, Effects: &effects}
}

func (s *GameSession) applyOptionEffects(option *catalogs.ChoiceOption, teamName string) (res EffectResult) {
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("choice effect application failed: %v", r)
		}
	}()
	res.Success = true
	for _, eff := range option.Effects {
		s.applyEffect(eff, teamName, "", &res)
	}
	return res
}

// ApplyPendingChoiceEffects is the terminal cleanup at lock-in. Confirmed
// choices applied their effects at confirmation time, so the normal path
// just clears the array and reports applied=false. An unconfirmed choice
// fails loudly rather than silently taking the default.
func (s *GameSession) ApplyPendingChoiceEffects(t *ESPTeam) ChoiceResult {
	if len(t.PendingIncidentChoices) == 0 {
		return ChoiceResult{OK: true, Applied: false}
	}
	applied := false
	for _, pc := range t.PendingIncidentChoices {
		if !pc.Confirmed {
			return ChoiceResult{OK: false, Code: protocol.ErrChoiceNotConfirmed,
				Message: fmt.Sprintf("choice for incident %s was never confirmed", pc.IncidentID)}
		}
		if pc.EffectsApplied {
			continue
		}
		// Confirmed but unapplied should not happen; settle it here.
		def, ok := s.cats.Incidents.ByID[pc.IncidentID]
		if !ok || def.Choice == nil {
			continue
		}
		for i := range def.Choice.Options {
			if def.Choice.Options[i].ID == pc.ChoiceID {
				s.applyOptionEffects(&def.Choice.Options[i], t.Name)
				pc.EffectsApplied = true
				applied = true
				break
			}
		}
	}
	t.PendingIncidentChoices = nil
	return ChoiceResult{OK: true, Applied: applied}
}
