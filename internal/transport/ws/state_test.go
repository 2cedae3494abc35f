package ws

import (
	"testing"

	"mailcraft.ai/internal/protocol"
	"mailcraft.ai/internal/sim/catalogs"
	"mailcraft.ai/internal/sim/game"
)

func TestBuildState(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	sess := game.NewSession("ROOM1", game.DefaultConfig(), cats)
	sess.AddDestination("Gmail")
	sess.AddDestination("Outlook")
	team := sess.AddTeam("Acme")
	sess.CurrentRound = 2
	sess.CurrentPhase = game.PhasePlanning

	team.Reputation["Gmail"] = 85
	team.OwnedTechUpgrades = []string{"spf"}
	first := 1
	team.ActiveClients = []string{"local_bakery"}
	team.ClientStates["local_bakery"] = &game.ClientState{Status: game.ClientActive, FirstActiveRound: &first}
	team.PendingIncidentChoices = []*game.PendingChoice{{IncidentID: "ransom_blocklist", ChoiceID: "ride_it_out"}}

	gmail := sess.Destination("Gmail")
	gmail.FilteringPolicies["Acme"] = game.FilteringPolicy{Mode: game.PolicyStrict}
	gmail.SpamTrapActive = &game.SpamTrap{Round: 2, Announced: true}
	gmail.AuthenticationLevel = 2

	sess.IncidentHistory = append(sess.IncidentHistory, game.IncidentRecord{
		IncidentID: "blocklist_listing", Name: "Blocklist Listing", Category: "reputation",
		RoundTriggered: 2, TeamName: "Acme",
	})
	sess.ResolutionHistory = append(sess.ResolutionHistory, &game.ResolutionResults{
		Round: 1,
		ESPResults: map[string]*game.ESPRoundResult{
			"Acme": {
				Volume:   game.VolumeResult{Total: 12000},
				Delivery: game.DeliveryResult{FinalRate: 0.9, Zone: "good"},
				Revenue:  game.RevenueResult{Actual: 150},
				Reputation: map[string]*game.ReputationDelta{
					"Gmail": {Raw: 3.4, Projected: 85},
				},
				Complaints: game.ComplaintResult{Rate: 0.01},
			},
		},
		DestinationResults: map[string]*game.DestinationRoundResult{
			"Gmail": {Inbound: 6000, Delivered: 5400, AggregatedSatisfaction: 77},
		},
	})

	st := buildState(sess)
	if st.Type != protocol.TypeState || st.ProtocolVersion != protocol.Version {
		t.Fatalf("envelope: %+v", st)
	}
	if st.RoomCode != "ROOM1" || st.Round != 2 || st.Phase != "planning" {
		t.Fatalf("identity: %+v", st)
	}

	if len(st.Teams) != 1 {
		t.Fatalf("teams: %d", len(st.Teams))
	}
	tv := st.Teams[0]
	if tv.Name != "Acme" || tv.Credits != 500 {
		t.Fatalf("team view: %+v", tv)
	}
	// Reputation is filled for every destination, defaults included.
	if tv.Reputation["Gmail"] != 85 || tv.Reputation["Outlook"] != 70 {
		t.Fatalf("reputation view: %v", tv.Reputation)
	}
	// The marketplace lists remaining client IDs.
	if len(tv.AvailableClients) != len(cats.Clients.Order) {
		t.Fatalf("marketplace: %v", tv.AvailableClients)
	}
	cv := tv.ClientStates["local_bakery"]
	if cv.Status != "active" || cv.FirstActiveRound == nil || *cv.FirstActiveRound != 1 {
		t.Fatalf("client view: %+v", cv)
	}
	if len(tv.PendingChoices) != 1 || tv.PendingChoices[0].ChoiceID != "ride_it_out" || tv.PendingChoices[0].Confirmed {
		t.Fatalf("pending choices: %+v", tv.PendingChoices)
	}

	var gv *destinationView
	for i := range st.Destinations {
		if st.Destinations[i].Name == "Gmail" {
			gv = &st.Destinations[i]
		}
	}
	if gv == nil || gv.AuthLevel != 2 || !gv.SpamTrap || !gv.TrapAnnounced {
		t.Fatalf("destination view: %+v", gv)
	}
	if gv.Policies["Acme"] != "strict" {
		t.Fatalf("policy view: %v", gv.Policies)
	}

	if len(st.Incidents) != 1 || st.Incidents[0].IncidentID != "blocklist_listing" {
		t.Fatalf("incident view: %+v", st.Incidents)
	}

	if st.LastResults == nil || st.LastResults.Round != 1 {
		t.Fatalf("last results: %+v", st.LastResults)
	}
	trv := st.LastResults.Teams["Acme"]
	if trv.Revenue != 150 || trv.Zone != "good" {
		t.Fatalf("team result view: %+v", trv)
	}
	if trv.Reputation["Gmail"].Raw != 3.4 {
		t.Fatalf("rep delta view: %+v", trv.Reputation)
	}
	if st.LastResults.Destinations["Gmail"].Satisfaction != 77 {
		t.Fatalf("destination result view: %+v", st.LastResults.Destinations)
	}
}

func TestBroadcastState_HidesDestinationResultsFromESPs(t *testing.T) {
	srv, m, code := newTestRoom(t)
	espCh, _ := m.Subscribe(code, "esp1")
	facCh, _ := m.Subscribe(code, "fac1")
	srv.setRole(code, "esp1", protocol.RoleESP)
	srv.setRole(code, "fac1", protocol.RoleFacilitator)

	_ = m.With(code, func(sess *game.GameSession) error {
		sess.ResolutionHistory = append(sess.ResolutionHistory, &game.ResolutionResults{
			Round: 1,
			ESPResults: map[string]*game.ESPRoundResult{
				"Acme": {Revenue: game.RevenueResult{Actual: 90}},
			},
			DestinationResults: map[string]*game.DestinationRoundResult{
				"Gmail": {Inbound: 20000, Delivered: 16000, AggregatedSatisfaction: 65},
			},
		})
		return nil
	})

	srv.broadcastState(code)

	espState := recvJSON(t, espCh)
	lr := espState["last_results"].(map[string]any)
	if _, leaked := lr["destinations"]; leaked && lr["destinations"] != nil {
		t.Fatalf("destination flows leaked to an ESP seat: %v", lr["destinations"])
	}
	if lr["teams"].(map[string]any)["Acme"] == nil {
		t.Fatalf("esp view lost its own results: %v", lr)
	}

	facState := recvJSON(t, facCh)
	flr := facState["last_results"].(map[string]any)
	gmail := flr["destinations"].(map[string]any)["Gmail"].(map[string]any)
	if gmail["satisfaction"].(float64) != 65 {
		t.Fatalf("facilitator view: %v", gmail)
	}
}

func TestBuildState_NoHistory(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	sess := game.NewSession("ROOM1", game.DefaultConfig(), cats)
	st := buildState(sess)
	if st.LastResults != nil {
		t.Fatalf("fresh room must carry no results")
	}
	if len(st.Teams) != 0 || len(st.Destinations) != 0 {
		t.Fatalf("fresh room views: %+v", st)
	}
}
