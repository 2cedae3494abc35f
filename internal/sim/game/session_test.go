package game

import (
	"testing"

	"mailcraft.ai/internal/sim/tuning"
)

func TestReputationAt_Default(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")

	if got := s.ReputationAt(team, "Gmail"); got != 70 {
		t.Fatalf("default reputation: got %f want 70", got)
	}
	// Reading never materializes the entry.
	if _, ok := team.Reputation["Gmail"]; ok {
		t.Fatalf("read materialized a reputation entry")
	}

	team.Reputation["Gmail"] = 42
	if got := s.ReputationAt(team, "Gmail"); got != 42 {
		t.Fatalf("stored reputation: got %f", got)
	}
}

func TestWeightedReputation(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	team.Reputation["Gmail"] = 90
	team.Reputation["Outlook"] = 80
	// Yahoo defaults to 70: 90*.5 + 80*.3 + 70*.2 = 83.
	if got := s.WeightedReputation(team); got != 83 {
		t.Fatalf("weighted reputation: got %f want 83", got)
	}
}

func TestMeanReputation_Unweighted(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	team.Reputation["Gmail"] = 100
	team.Reputation["Outlook"] = 40
	// (100+40+70)/3 = 70.
	if got := s.MeanReputation(team); got != 70 {
		t.Fatalf("mean reputation: got %f want 70", got)
	}
}

func TestESPReputation_SingleSourceOfTruth(t *testing.T) {
	s := newTestSession("Acme", "Bolt")
	s.Team("Acme").Reputation["Gmail"] = 55

	view := s.ESPReputation(s.Destination("Gmail"))
	if view["Acme"] != 55 {
		t.Fatalf("Acme at Gmail: got %f", view["Acme"])
	}
	if view["Bolt"] != 70 {
		t.Fatalf("Bolt at Gmail should default, got %f", view["Bolt"])
	}
}

func TestAddTeam_StocksMarketplaceInCatalogOrder(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	order := s.Catalogs().Clients.Order
	if len(team.AvailableClients) != len(order) {
		t.Fatalf("marketplace size: got %d want %d", len(team.AvailableClients), len(order))
	}
	for i, id := range order {
		if team.AvailableClients[i].ID != id {
			t.Fatalf("marketplace[%d]: got %s want %s", i, team.AvailableClients[i].ID, id)
		}
	}
	if team.Credits != s.Config().StartingCredits {
		t.Fatalf("starting credits: got %d", team.Credits)
	}

	// Re-adding the same name is a no-op returning the existing team.
	if again := s.AddTeam("Acme"); again != team {
		t.Fatalf("AddTeam must be idempotent per name")
	}
	if len(s.Teams) != 1 {
		t.Fatalf("duplicate team appended")
	}
}

func TestClampReputation(t *testing.T) {
	if clampReputation(-3) != 0 || clampReputation(104) != 100 || clampReputation(55) != 55 {
		t.Fatalf("clamp misbehaved")
	}
}

func TestConfigFromTuning_ZeroKeepsDefaults(t *testing.T) {
	cfg := ConfigFromTuning(tuning.Tuning{})
	def := DefaultConfig()
	if cfg.Rounds != def.Rounds || cfg.SuspendComplaintRate != def.SuspendComplaintRate {
		t.Fatalf("zero tuning must keep defaults, got %+v", cfg)
	}

	cfg = ConfigFromTuning(tuning.Tuning{Rounds: 6, StartingCredits: 900})
	if cfg.Rounds != 6 || cfg.StartingCredits != 900 {
		t.Fatalf("set knobs ignored: %+v", cfg)
	}
	if cfg.DefaultReputation != def.DefaultReputation {
		t.Fatalf("unset knob overridden: %+v", cfg)
	}
}
