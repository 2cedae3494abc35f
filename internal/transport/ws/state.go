package ws

import (
	"mailcraft.ai/internal/protocol"
	"mailcraft.ai/internal/sim/game"
)

// stateMsg is the room state broadcast after every successful mutation.
// The destination results block (satisfaction and mail flows) is stripped
// before the message reaches ESP-role subscribers; that visibility
// boundary lives in broadcastState, not here.
type stateMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	RoomCode        string            `json:"room_code"`
	Round           int               `json:"round"`
	Phase           string            `json:"phase"`
	Paused          bool              `json:"paused"`
	Teams           []teamView        `json:"teams"`
	Destinations    []destinationView `json:"destinations"`
	Incidents       []incidentView    `json:"incidents"`
	LastResults     *resultsView      `json:"last_results,omitempty"`
}

type teamView struct {
	Name             string                 `json:"name"`
	Credits          int                    `json:"credits"`
	Reputation       map[string]float64     `json:"reputation"`
	ActiveClients    []string               `json:"active_clients"`
	AvailableClients []string               `json:"available_clients"`
	ClientStates     map[string]clientView  `json:"client_states"`
	OwnedUpgrades    []string               `json:"owned_tech_upgrades"`
	LockedIn         bool                   `json:"locked_in"`
	PendingChoices   []pendingChoiceView    `json:"pending_choices,omitempty"`
	Players          int                    `json:"players"`
}

type clientView struct {
	Status           string `json:"status"`
	FirstActiveRound *int   `json:"first_active_round,omitempty"`
}

type pendingChoiceView struct {
	IncidentID string `json:"incident_id"`
	ChoiceID   string `json:"choice_id"`
	Confirmed  bool   `json:"confirmed"`
}

type destinationView struct {
	Name          string            `json:"name"`
	Budget        int               `json:"budget"`
	Policies      map[string]string `json:"filtering_policies"`
	OwnedTools    []string          `json:"owned_tools"`
	AuthLevel     int               `json:"authentication_level"`
	SpamTrap      bool              `json:"spam_trap_active"`
	TrapAnnounced bool              `json:"spam_trap_announced,omitempty"`
	LockedIn      bool              `json:"locked_in"`
	Players       int               `json:"players"`
}

type incidentView struct {
	IncidentID     string `json:"incident_id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	RoundTriggered int    `json:"round_triggered"`
	TeamName       string `json:"team_name,omitempty"`
	SelectedClient string `json:"selected_client,omitempty"`
}

type resultsView struct {
	Round        int                            `json:"round"`
	Teams        map[string]teamResultView      `json:"teams"`
	Destinations map[string]destResultView      `json:"destinations,omitempty"`
}

type teamResultView struct {
	Volume        float64                    `json:"volume"`
	DeliveryRate  float64                    `json:"delivery_rate"`
	Zone          string                     `json:"zone"`
	Revenue       int                        `json:"revenue"`
	Reputation    map[string]repDeltaView    `json:"reputation"`
	ComplaintRate float64                    `json:"complaint_rate"`
}

type repDeltaView struct {
	Raw       float64 `json:"raw"`
	Projected float64 `json:"projected"`
}

type destResultView struct {
	Inbound        float64 `json:"inbound"`
	Delivered      float64 `json:"delivered"`
	Blocked        float64 `json:"blocked"`
	SpamDelivered  float64 `json:"spam_delivered"`
	FalsePositives float64 `json:"false_positives"`
	Satisfaction   float64 `json:"satisfaction"`
}

func (s *Server) broadcastState(code string) {
	var st *stateMsg
	err := s.arena.With(code, func(sess *game.GameSession) error {
		st = buildState(sess)
		return nil
	})
	if err != nil || st == nil {
		return
	}
	if st.LastResults == nil || len(st.LastResults.Destinations) == 0 {
		s.arena.Broadcast(code, st)
		return
	}

	// Destination flows and satisfaction never reach ESP seats; everyone
	// else gets the full view.
	redacted := *st
	lr := *st.LastResults
	lr.Destinations = nil
	redacted.LastResults = &lr
	for _, pid := range s.arena.Subscribers(code) {
		if s.roleOf(code, pid) == protocol.RoleESP {
			s.arena.Send(code, pid, &redacted)
		} else {
			s.arena.Send(code, pid, st)
		}
	}
}

func buildState(sess *game.GameSession) *stateMsg {
	st := &stateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		RoomCode:        sess.RoomCode,
		Round:           sess.CurrentRound,
		Phase:           string(sess.CurrentPhase),
		Paused:          sess.Paused,
		Teams:           make([]teamView, 0, len(sess.Teams)),
		Destinations:    make([]destinationView, 0, len(sess.Destinations)),
		Incidents:       make([]incidentView, 0, len(sess.IncidentHistory)),
	}

	for _, t := range sess.Teams {
		tv := teamView{
			Name:          t.Name,
			Credits:       t.Credits,
			Reputation:    map[string]float64{},
			ActiveClients: append([]string(nil), t.ActiveClients...),
			ClientStates:  map[string]clientView{},
			OwnedUpgrades: append([]string(nil), t.OwnedTechUpgrades...),
			LockedIn:      t.LockedIn,
			Players:       t.PlayerCount,
		}
		for _, d := range sess.Destinations {
			tv.Reputation[d.Name] = sess.ReputationAt(t, d.Name)
		}
		for _, p := range t.AvailableClients {
			tv.AvailableClients = append(tv.AvailableClients, p.ID)
		}
		for id, cs := range t.ClientStates {
			tv.ClientStates[id] = clientView{Status: string(cs.Status), FirstActiveRound: cs.FirstActiveRound}
		}
		for _, pc := range t.PendingIncidentChoices {
			tv.PendingChoices = append(tv.PendingChoices, pendingChoiceView{
				IncidentID: pc.IncidentID, ChoiceID: pc.ChoiceID, Confirmed: pc.Confirmed,
			})
		}
		st.Teams = append(st.Teams, tv)
	}

	for _, d := range sess.Destinations {
		dv := destinationView{
			Name:       d.Name,
			Budget:     d.Budget,
			Policies:   map[string]string{},
			OwnedTools: append([]string(nil), d.OwnedTools...),
			AuthLevel:  d.AuthenticationLevel,
			LockedIn:   d.LockedIn,
			Players:    d.PlayerCount,
		}
		for esp, p := range d.FilteringPolicies {
			dv.Policies[esp] = p.Mode
		}
		if d.SpamTrapActive != nil {
			dv.SpamTrap = true
			dv.TrapAnnounced = d.SpamTrapActive.Announced
		}
		st.Destinations = append(st.Destinations, dv)
	}

	for _, rec := range sess.IncidentHistory {
		st.Incidents = append(st.Incidents, incidentView{
			IncidentID:     rec.IncidentID,
			Name:           rec.Name,
			Category:       rec.Category,
			RoundTriggered: rec.RoundTriggered,
			TeamName:       rec.TeamName,
			SelectedClient: rec.SelectedClient,
		})
	}

	if n := len(sess.ResolutionHistory); n > 0 {
		st.LastResults = buildResults(sess.ResolutionHistory[n-1])
	}
	return st
}

func buildResults(r *game.ResolutionResults) *resultsView {
	rv := &resultsView{
		Round:        r.Round,
		Teams:        map[string]teamResultView{},
		Destinations: map[string]destResultView{},
	}
	for name, er := range r.ESPResults {
		trv := teamResultView{
			Volume:        er.Volume.Total,
			DeliveryRate:  er.Delivery.FinalRate,
			Zone:          er.Delivery.Zone,
			Revenue:       er.Revenue.Actual,
			Reputation:    map[string]repDeltaView{},
			ComplaintRate: er.Complaints.Rate,
		}
		for dest, delta := range er.Reputation {
			trv.Reputation[dest] = repDeltaView{Raw: delta.Raw, Projected: delta.Projected}
		}
		rv.Teams[name] = trv
	}
	for name, dr := range r.DestinationResults {
		rv.Destinations[name] = destResultView{
			Inbound:        dr.Inbound,
			Delivered:      dr.Delivered,
			Blocked:        dr.Blocked,
			SpamDelivered:  dr.SpamDelivered,
			FalsePositives: dr.FalsePositives,
			Satisfaction:   dr.AggregatedSatisfaction,
		}
	}
	return rv
}
