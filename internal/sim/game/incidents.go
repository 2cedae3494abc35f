package game

import (
	"fmt"
	"time"

	"mailcraft.ai/internal/protocol"
	"mailcraft.ai/internal/sim/catalogs"
)

// TriggerResult reports an incident trigger. Triggering only validates,
// selects and records; effect application is a separate call so the UI
// can show the card before consequences land.
type TriggerResult struct {
	OK             bool
	Code           string
	Message        string
	SelectedClient string
	Record         IncidentRecord
}

// AvailableIncidents lists catalog cards eligible for the current round.
func (s *GameSession) AvailableIncidents() []catalogs.IncidentDef {
	return s.cats.Incidents.IncidentsForRound(s.CurrentRound)
}

// CanTriggerIncident enforces round eligibility and the once-per-game
// rule: an id in the history for any round can never fire again.
func (s *GameSession) CanTriggerIncident(id string) ValidationResult {
	def, ok := s.cats.Incidents.ByID[id]
	if !ok {
		return invalid(protocol.ErrIncidentNotFound, fmt.Sprintf("unknown incident %s", id))
	}
	eligible := false
	for _, r := range def.Rounds {
		if r == s.CurrentRound {
			eligible = true
			break
		}
	}
	if !eligible {
		return invalid(protocol.ErrWrongRound,
			fmt.Sprintf("incident %s is not eligible in round %d", id, s.CurrentRound))
	}
	for _, rec := range s.IncidentHistory {
		if rec.IncidentID == id {
			return invalid(protocol.ErrAlreadyTriggered,
				fmt.Sprintf("incident %s already fired in round %d", id, rec.RoundTriggered))
		}
	}
	return valid()
}

// TriggerIncident re-validates, picks a uniform-random active client when
// any effect targets one, and appends the history entry.
func (s *GameSession) TriggerIncident(id, teamName string) TriggerResult {
	if v := s.CanTriggerIncident(id); !v.OK {
		return TriggerResult{OK: false, Code: v.Code, Message: v.Message}
	}
	def := s.cats.Incidents.ByID[id]

	selected := ""
	if incidentNeedsClient(def) {
		t := s.Team(teamName)
		if t == nil {
			return TriggerResult{OK: false, Code: protocol.ErrNotFound,
				Message: fmt.Sprintf("incident %s needs an acting team", id)}
		}
		var candidates []string
		for _, clientID := range t.ActiveClients {
			if cs := t.ClientStates[clientID]; cs != nil && cs.Status == ClientActive {
				candidates = append(candidates, clientID)
			}
		}
		if len(candidates) == 0 {
			return TriggerResult{OK: false, Code: protocol.ErrNoActiveClients,
				Message: fmt.Sprintf("incident %s targets a client but team %s has no active clients", id, teamName)}
		}
		selected = candidates[s.rng.Intn(len(candidates))]
	}

	rec := IncidentRecord{
		IncidentID:     def.ID,
		Name:           def.Name,
		Category:       def.Category,
		RoundTriggered: s.CurrentRound,
		TeamName:       teamName,
		SelectedClient: selected,
		Timestamp:      time.Now().UTC(),
	}
	s.IncidentHistory = append(s.IncidentHistory, rec)
	s.event("incident_triggered", map[string]any{
		"incident": def.ID,
		"team":     teamName,
		"client":   selected,
	})
	return TriggerResult{OK: true, SelectedClient: selected, Record: rec}
}

// IncidentRecordFor returns the history entry for an already-triggered
// incident. The recorded team and client are binding for effect
// application; the random selection made at trigger time is not advisory.
func (s *GameSession) IncidentRecordFor(id string) (IncidentRecord, bool) {
	for _, rec := range s.IncidentHistory {
		if rec.IncidentID == id {
			return rec, true
		}
	}
	return IncidentRecord{}, false
}

func incidentNeedsClient(def catalogs.IncidentDef) bool {
	for _, eff := range def.Effects {
		if eff.Target == catalogs.TargetSelectedClient {
			return true
		}
	}
	return false
}
