package game

import (
	"testing"

	"mailcraft.ai/internal/protocol"
)

func TestAcquireClient_PureAndDeducts(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	beforeCredits := team.Credits
	beforeMarket := len(team.AvailableClients)

	res := AcquireClient(team, "steady_news")
	if !res.OK {
		t.Fatalf("acquire failed: %+v", res)
	}

	// Input team untouched.
	if team.Credits != beforeCredits {
		t.Fatalf("input team credits mutated: %d", team.Credits)
	}
	if len(team.AvailableClients) != beforeMarket {
		t.Fatalf("input team marketplace mutated")
	}
	if len(team.ActiveClients) != 0 || team.ClientStates["steady_news"] != nil {
		t.Fatalf("input team roster mutated")
	}

	// Output team carries the acquisition.
	if res.Team.Credits != 500-150 {
		t.Fatalf("credits: got %d want 350", res.Team.Credits)
	}
	if len(res.Team.AvailableClients) != beforeMarket-1 {
		t.Fatalf("client not removed from marketplace")
	}
	cs := res.Team.ClientStates["steady_news"]
	if cs == nil || cs.Status != ClientPaused {
		t.Fatalf("roster entry must start paused, got %+v", cs)
	}
	if cs.FirstActiveRound != nil {
		t.Fatalf("acquisition must not pin first active round")
	}
}

func TestAcquireClientForTeam_SwapsAndGrantsUpgradeModifiers(t *testing.T) {
	s := newTestSession()
	if r := s.PurchaseTech("Acme", "list_hygiene"); !r.OK {
		t.Fatalf("purchase: %+v", r)
	}
	if r := s.AcquireClientForTeam("Acme", "steady_news"); !r.OK {
		t.Fatalf("acquire: %+v", r)
	}
	team := s.Team("Acme")
	cs := team.ClientStates["steady_news"]
	if cs == nil {
		t.Fatalf("roster entry missing after swap")
	}
	// list_hygiene halves spam-trap exposure for clients acquired later too.
	if len(cs.SpamTrapModifiers) != 1 || cs.SpamTrapModifiers[0].Source != "list_hygiene" {
		t.Fatalf("expected list_hygiene modifier on new client, got %+v", cs.SpamTrapModifiers)
	}
	if cs.SpamTrapModifiers[0].Multiplier != 0.5 {
		t.Fatalf("multiplier: got %f", cs.SpamTrapModifiers[0].Multiplier)
	}
}

func TestPurchaseTech_DeductsWithoutClamping(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	team.Credits = 50

	if r := s.PurchaseTech("Acme", "spf"); !r.OK {
		t.Fatalf("purchase: %+v", r)
	}
	if team.Credits != 0 {
		t.Fatalf("credits: got %d want 0", team.Credits)
	}
	if !team.OwnsUpgrade("spf") {
		t.Fatalf("upgrade not granted")
	}

	r := s.PurchaseTech("Acme", "dkim")
	if r.OK || r.Code != protocol.ErrInsufficientCredits {
		t.Fatalf("got %+v, want insufficient credits", r)
	}
}

func TestPurchaseTech_GrantsModifiersToExistingRoster(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	activateClient(team, "steady_news", 1)
	team.ClientStates["cheap_local"] = &ClientState{Status: ClientPaused}

	if r := s.PurchaseTech("Acme", "booster"); !r.OK {
		t.Fatalf("purchase: %+v", r)
	}
	for _, id := range []string{"steady_news", "cheap_local"} {
		cs := team.ClientStates[id]
		if len(cs.VolumeModifiers) != 1 || cs.VolumeModifiers[0].Source != "booster" {
			t.Fatalf("%s: expected booster volume modifier, got %+v", id, cs.VolumeModifiers)
		}
		// Granted for every remaining round of the game.
		for r := 1; r <= s.Config().Rounds; r++ {
			if !cs.VolumeModifiers[0].AppliesTo(r, nil) {
				t.Fatalf("%s: modifier must cover round %d", id, r)
			}
		}
	}
}

func TestPurchaseTool_AuthClampAndTrapActivation(t *testing.T) {
	s := newTestSession()
	gmail := s.Destination("Gmail")
	gmail.AuthenticationLevel = 1

	if r := s.PurchaseTool("Gmail", "mega_auth"); !r.OK {
		t.Fatalf("purchase: %+v", r)
	}
	if gmail.AuthenticationLevel != 3 {
		t.Fatalf("auth level must clamp at 3, got %d", gmail.AuthenticationLevel)
	}

	if r := s.PurchaseTool("Gmail", "silent_trap"); !r.OK {
		t.Fatalf("purchase: %+v", r)
	}
	if gmail.SpamTrapActive == nil || gmail.SpamTrapActive.Announced {
		t.Fatalf("expected silent active trap, got %+v", gmail.SpamTrapActive)
	}
	if gmail.SpamTrapActive.Round != s.CurrentRound {
		t.Fatalf("trap round: got %d want %d", gmail.SpamTrapActive.Round, s.CurrentRound)
	}
}

func TestOnboardClient_PinsFirstActiveRoundOnce(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	team.ClientStates["steady_news"] = &ClientState{Status: ClientPaused}
	team.ActiveClients = []string{"steady_news"}

	if r := s.OnboardClient("Acme", "steady_news"); !r.OK {
		t.Fatalf("onboard: %+v", r)
	}
	cs := team.ClientStates["steady_news"]
	if cs.Status != ClientActive {
		t.Fatalf("status: got %s", cs.Status)
	}
	if cs.FirstActiveRound == nil || *cs.FirstActiveRound != 1 {
		t.Fatalf("first active round: got %v want 1", cs.FirstActiveRound)
	}

	// Pause, advance, re-onboard: the pin never moves.
	if r := s.PauseClient("Acme", "steady_news"); !r.OK {
		t.Fatalf("pause: %+v", r)
	}
	s.CurrentRound = 3
	if r := s.ResumeClient("Acme", "steady_news"); !r.OK {
		t.Fatalf("resume: %+v", r)
	}
	if *cs.FirstActiveRound != 1 {
		t.Fatalf("first active round moved to %d", *cs.FirstActiveRound)
	}
}

func TestPauseClient_SuspendedIsTerminal(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")
	team.ClientStates["risky_blast"] = &ClientState{Status: ClientSuspended}

	r := s.PauseClient("Acme", "risky_blast")
	if r.OK || r.Code != protocol.ErrClientSuspended {
		t.Fatalf("got %+v, want suspended gate", r)
	}
	r = s.ResumeClient("Acme", "risky_blast")
	if r.OK || r.Code != protocol.ErrClientSuspended {
		t.Fatalf("got %+v, want suspended gate", r)
	}
}

func TestSetFilteringPolicy(t *testing.T) {
	s := newTestSession()

	if r := s.SetFilteringPolicy("Gmail", "Acme", PolicyStrict); !r.OK {
		t.Fatalf("set policy: %+v", r)
	}
	if got := s.Destination("Gmail").FilteringPolicies["Acme"].Mode; got != PolicyStrict {
		t.Fatalf("mode: got %s", got)
	}

	r := s.SetFilteringPolicy("Gmail", "Acme", "extreme")
	if r.OK || r.Code != protocol.ErrBadRequest {
		t.Fatalf("got %+v, want bad mode rejection", r)
	}

	s.CurrentPhase = PhaseConsequences
	r = s.SetFilteringPolicy("Gmail", "Acme", PolicyNormal)
	if r.OK || r.Code != protocol.ErrWrongPhase {
		t.Fatalf("got %+v, want wrong phase", r)
	}
}

func TestStartInvestigationVote_RequiresTool(t *testing.T) {
	s := newTestSession()

	r := s.StartInvestigationVote("Gmail", "Acme")
	if r.OK || r.Code != protocol.ErrMissingTech {
		t.Fatalf("got %+v, want missing tool", r)
	}

	s.Destination("Gmail").OwnedTools = []string{"desk"}
	if r = s.StartInvestigationVote("Gmail", "Acme"); !r.OK {
		t.Fatalf("vote: %+v", r)
	}
	vote := s.Destination("Gmail").PendingInvestigationVote
	if vote == nil || vote.ESPName != "Acme" {
		t.Fatalf("vote: got %+v", vote)
	}
}

func TestLockIn_IdempotentAndGated(t *testing.T) {
	s := newTestSession()
	team := s.Team("Acme")

	if r := s.LockIn("Acme"); !r.OK {
		t.Fatalf("lock: %+v", r)
	}
	if !team.LockedIn {
		t.Fatalf("not locked")
	}
	// Second call absorbed.
	if r := s.LockIn("Acme"); !r.OK {
		t.Fatalf("relock: %+v", r)
	}

	team.LockedIn = false
	team.Credits = -1
	r := s.LockIn("Acme")
	if r.OK || r.Code != protocol.ErrNegativeCredits {
		t.Fatalf("got %+v, want deficit gate", r)
	}
}
