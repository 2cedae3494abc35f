package game

import (
	"testing"

	"mailcraft.ai/internal/sim/catalogs"
)

// applyEffects runs the effect list as if it came from an incident card.
func applyEffects(s *GameSession, teamName, clientID string, effects ...catalogs.Effect) EffectResult {
	var res EffectResult
	res.Success = true
	for _, eff := range effects {
		s.applyEffect(eff, teamName, clientID, &res)
	}
	return res
}

func TestApplyIncidentEffects_SelectedESPReputation(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")

	res := s.ApplyIncidentEffects("blocklist", "Acme", "")
	if !res.Success {
		t.Fatalf("apply: %+v", res)
	}
	// -8 lands on every destination, materialized from the 70 default.
	for _, d := range s.Destinations {
		if team.Reputation[d.Name] != 62 {
			t.Fatalf("%s: got %f want 62", d.Name, team.Reputation[d.Name])
		}
	}
	if len(res.Changes) != 3 {
		t.Fatalf("changes: got %d want 3", len(res.Changes))
	}
}

func TestApplyIncidentEffects_UnknownIncident(t *testing.T) {
	s := newTestSession()
	res := s.ApplyIncidentEffects("ghost", "Acme", "")
	if res.Success {
		t.Fatalf("expected failure for unknown incident")
	}
}

func TestEffect_ReputationRoundsFractionalValues(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")

	// 70 + 4.1 rounds to 74; fractional deltas never linger on the session.
	applyEffects(s, "Acme", "", catalogs.Effect{
		Target: catalogs.TargetSelectedESP, Type: catalogs.EffectReputation, Value: 4.1,
	})
	for _, d := range s.Destinations {
		if team.Reputation[d.Name] != 74 {
			t.Fatalf("%s: got %f want 74 (add then round)", d.Name, team.Reputation[d.Name])
		}
	}
}

func TestEffect_ReputationClampsAtBounds(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	team.Reputation["Gmail"] = 5

	applyEffects(s, "Acme", "", catalogs.Effect{
		Target: catalogs.TargetSelectedESP, Type: catalogs.EffectReputation, Value: -20,
	})
	if team.Reputation["Gmail"] != 0 {
		t.Fatalf("lower clamp: got %f", team.Reputation["Gmail"])
	}
}

func TestEffect_ReputationSetReportsDelta(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	team.Reputation["Gmail"] = 90

	res := applyEffects(s, "Acme", "", catalogs.Effect{
		Target: catalogs.TargetSelectedESP, Type: catalogs.EffectReputationSet, Value: 65,
	})
	for _, d := range s.Destinations {
		if team.Reputation[d.Name] != 65 {
			t.Fatalf("%s: got %f want 65", d.Name, team.Reputation[d.Name])
		}
	}
	// Broadcast delta is new-old, not the set value.
	for _, c := range res.Changes {
		if c.Destination == "Gmail" && c.Delta != -25 {
			t.Fatalf("Gmail delta: got %f want -25", c.Delta)
		}
		if c.Destination == "Outlook" && c.Delta != -5 {
			t.Fatalf("Outlook delta: got %f want -5", c.Delta)
		}
	}
}

func TestEffect_CreditsFloorAtZero(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	team.Credits = 40

	res := applyEffects(s, "Acme", "", catalogs.Effect{
		Target: catalogs.TargetSelectedESP, Type: catalogs.EffectCredits, Value: -60,
	})
	if team.Credits != 0 {
		t.Fatalf("credits: got %d want 0 (incident deductions floor)", team.Credits)
	}
	if res.Changes[0].Delta != -40 {
		t.Fatalf("delta: got %f want -40", res.Changes[0].Delta)
	}
}

func TestEffect_AutoLockImmediateDuringPlanning(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")

	applyEffects(s, "Acme", "", catalogs.Effect{
		Target: catalogs.TargetSelectedESP, Type: catalogs.EffectAutoLock,
	})
	if !team.LockedIn || team.PendingAutoLock {
		t.Fatalf("planning auto-lock must be immediate: %+v", team)
	}
}

func TestEffect_AutoLockDeferredOutsidePlanning(t *testing.T) {
	s := newTestSession()
	s.CurrentPhase = PhaseConsequences
	team := s.Team("Acme")

	applyEffects(s, "Acme", "", catalogs.Effect{
		Target: catalogs.TargetSelectedESP, Type: catalogs.EffectAutoLock,
	})
	if team.LockedIn || !team.PendingAutoLock {
		t.Fatalf("auto-lock outside planning must defer: %+v", team)
	}
}

func TestEffect_SelectedClientModifierDurations(t *testing.T) {
	s := newTestSession()
	s.CurrentRound = 2
	team := s.Team("Acme")
	activateClient(team, "steady_news", 2)
	cs := team.ClientStates["steady_news"]

	applyEffects(s, "Acme", "steady_news",
		catalogs.Effect{Target: catalogs.TargetSelectedClient, Type: catalogs.EffectVolumeMultiplier, Multiplier: 0.5, Duration: catalogs.DurationThisRound},
		catalogs.Effect{Target: catalogs.TargetSelectedClient, Type: catalogs.EffectSpamTrapMultiplier, Multiplier: 1.5, Duration: catalogs.DurationNextRound},
		catalogs.Effect{Target: catalogs.TargetSelectedClient, Type: catalogs.EffectVolumeMultiplier, Multiplier: 1.1, Duration: catalogs.DurationPermanent},
	)

	if len(cs.VolumeModifiers) != 2 || len(cs.SpamTrapModifiers) != 1 {
		t.Fatalf("modifiers: vol %d trap %d", len(cs.VolumeModifiers), len(cs.SpamTrapModifiers))
	}
	thisRound := cs.VolumeModifiers[0]
	if !thisRound.AppliesTo(2, cs.FirstActiveRound) || thisRound.AppliesTo(3, cs.FirstActiveRound) {
		t.Fatalf("this_round scope wrong: %+v", thisRound.Scope)
	}
	nextRound := cs.SpamTrapModifiers[0]
	if nextRound.AppliesTo(2, cs.FirstActiveRound) || !nextRound.AppliesTo(3, cs.FirstActiveRound) {
		t.Fatalf("next_round scope wrong: %+v", nextRound.Scope)
	}
	permanent := cs.VolumeModifiers[1]
	for r := 1; r <= s.Config().Rounds; r++ {
		if !permanent.AppliesTo(r, cs.FirstActiveRound) {
			t.Fatalf("permanent scope missing round %d", r)
		}
	}
	if thisRound.Source != "incident" {
		t.Fatalf("source: got %s", thisRound.Source)
	}
}

func TestEffect_ConditionalESP(t *testing.T) {
	s := newTestSession("Acme", "Bolt")
	s.Team("Acme").OwnedTechUpgrades = []string{"dmarc"}

	applyEffects(s, "", "", catalogs.Effect{
		Target: catalogs.TargetConditionalESP, Type: catalogs.EffectReputation, Value: 3,
		Condition: &catalogs.Condition{Type: catalogs.CondHasTech, Tech: "dmarc"},
	})
	if s.Team("Acme").Reputation["Gmail"] != 73 {
		t.Fatalf("conditioned team untouched: %v", s.Team("Acme").Reputation)
	}
	if len(s.Team("Bolt").Reputation) != 0 {
		t.Fatalf("unconditioned team touched: %v", s.Team("Bolt").Reputation)
	}

	// lacks_tech is the inverse.
	applyEffects(s, "", "", catalogs.Effect{
		Target: catalogs.TargetConditionalESP, Type: catalogs.EffectReputation, Value: -5,
		Condition: &catalogs.Condition{Type: catalogs.CondLacksTech, Tech: "dmarc"},
	})
	if s.Team("Acme").Reputation["Gmail"] != 73 {
		t.Fatalf("lacks_tech hit the owner")
	}
	if s.Team("Bolt").Reputation["Gmail"] != 65 {
		t.Fatalf("lacks_tech missed the non-owner: %v", s.Team("Bolt").Reputation)
	}
}

func TestEffect_SelectedClientListHygieneCondition(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	activateClient(team, "steady_news", 1)
	cs := team.ClientStates["steady_news"]

	eff := catalogs.Effect{
		Target: catalogs.TargetSelectedClient, Type: catalogs.EffectSpamTrapMultiplier,
		Multiplier: 2.0, Duration: catalogs.DurationThisRound,
		Condition: &catalogs.Condition{Type: catalogs.CondHasListHygiene},
	}
	applyEffects(s, "Acme", "steady_news", eff)
	if len(cs.SpamTrapModifiers) != 0 {
		t.Fatalf("condition should block without list hygiene")
	}

	cs.SpamTrapModifiers = append(cs.SpamTrapModifiers, NewModifier("lh", "list_hygiene", 0.5, []int{1, 2, 3, 4}))
	applyEffects(s, "Acme", "steady_news", eff)
	if len(cs.SpamTrapModifiers) != 2 {
		t.Fatalf("condition should pass with list hygiene")
	}
}

func TestEffect_AllESPsClientTypeFilter(t *testing.T) {
	s := newTestSession("Acme", "Bolt")
	activateClient(s.Team("Acme"), "risky_blast", 1) // promotional
	activateClient(s.Team("Bolt"), "steady_news", 1) // newsletter

	applyEffects(s, "", "", catalogs.Effect{
		Target: catalogs.TargetAllESPs, Type: catalogs.EffectVolumeMultiplier,
		Multiplier: 1.4, Duration: catalogs.DurationThisRound,
		ClientTypes: []string{"promotional"},
	})
	if n := len(s.Team("Acme").ClientStates["risky_blast"].VolumeModifiers); n != 1 {
		t.Fatalf("promotional client: %d modifiers", n)
	}
	if n := len(s.Team("Bolt").ClientStates["steady_news"].VolumeModifiers); n != 0 {
		t.Fatalf("newsletter client filtered out, got %d modifiers", n)
	}
}

func TestEffect_AllDestinationsBudget(t *testing.T) {
	s := newTestSession()
	s.Destination("Gmail").Budget = 20

	res := applyEffects(s, "", "", catalogs.Effect{
		Target: catalogs.TargetAllDestinations, Type: catalogs.EffectBudget, Value: 50,
	})
	for _, d := range s.Destinations {
		if d.Name == "Gmail" {
			if d.Budget != 70 {
				t.Fatalf("Gmail budget: got %d", d.Budget)
			}
			continue
		}
		if d.Budget != 350 {
			t.Fatalf("%s budget: got %d want 350", d.Name, d.Budget)
		}
	}
	if len(res.Changes) != 3 {
		t.Fatalf("changes: got %d", len(res.Changes))
	}
}

func TestEffect_NotificationCollected(t *testing.T) {
	s := newTestSession()
	res := applyEffects(s, "", "", catalogs.Effect{
		Target: catalogs.TargetNotification, Message: "postmaster alert",
	})
	if len(res.Notifications) != 1 || res.Notifications[0] != "postmaster alert" {
		t.Fatalf("notifications: %v", res.Notifications)
	}
}

func TestEffect_UnknownTargetSkipped(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	res := applyEffects(s, "Acme", "",
		catalogs.Effect{Target: "selected_galaxy", Type: catalogs.EffectReputation, Value: -50},
		catalogs.Effect{Target: catalogs.TargetSelectedESP, Type: catalogs.EffectCredits, Value: 10},
	)
	if len(team.Reputation) != 0 {
		t.Fatalf("unknown target mutated state")
	}
	// The rest of the list still applies.
	if team.Credits != 510 {
		t.Fatalf("credits: got %d want 510", team.Credits)
	}
	if len(res.Changes) != 1 {
		t.Fatalf("changes: %+v", res.Changes)
	}
}
