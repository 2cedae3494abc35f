package game

import (
	"mailcraft.ai/internal/sim/catalogs"
)

// seqRNG plays back a fixed sequence of picks so client selection is
// deterministic in tests.
type seqRNG struct {
	vals []int
	i    int
}

func (r *seqRNG) Intn(n int) int {
	if len(r.vals) == 0 {
		return 0
	}
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v % n
}

// recordingLogger captures engine events for assertions.
type recordingLogger struct {
	events []GameEvent
}

func (r *recordingLogger) WriteEvent(e GameEvent) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingLogger) byType(typ string) []GameEvent {
	var out []GameEvent
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func testCatalogs() *catalogs.Catalogs {
	clients := []catalogs.ClientProfile{
		{ID: "steady_news", Name: "Steady News", Type: "newsletter", Cost: 150, Volume: 20000, Revenue: 90, SpamRate: 0.02, Risk: 0.10},
		{ID: "risky_blast", Name: "Risky Blast", Type: "promotional", Cost: 250, Volume: 60000, Revenue: 250, SpamRate: 0.30, Risk: 0.70},
		{ID: "premium_crm", Name: "Premium CRM", Type: "transactional", Cost: 280, Volume: 30000, Revenue: 200, SpamRate: 0.01, Risk: 0.05, MinReputation: 75},
		{ID: "cheap_local", Name: "Cheap Local", Type: "newsletter", Cost: 100, Volume: 5000, Revenue: 40, SpamRate: 0.01, Risk: 0.05},
	}
	upgrades := []catalogs.TechUpgrade{
		{ID: "spf", Name: "SPF", Cost: 50, DeliveryBonus: 0.02, ReputationBonus: 1},
		{ID: "dkim", Name: "DKIM", Cost: 80, Requires: []string{"spf"}, DeliveryBonus: 0.02},
		{ID: "dmarc", Name: "DMARC", Cost: 120, Requires: []string{"spf", "dkim"}, DeliveryBonus: 0.03, ReputationBonus: 2},
		{ID: "list_hygiene", Name: "List Hygiene", Cost: 150, SpamTrapMultiplier: 0.5},
		{ID: "booster", Name: "Volume Booster", Cost: 200, VolumeMultiplier: 1.2},
	}
	tools := []catalogs.DestinationTool{
		{ID: "auth_checker", Name: "Auth Checker", Cost: 50, AuthLevelBonus: 1},
		{ID: "dkim_validator", Name: "DKIM Validator", Cost: 80, Requires: []string{"auth_checker"}, AuthLevelBonus: 1},
		{ID: "dmarc_enforcer", Name: "DMARC Enforcer", Cost: 120, Requires: []string{"auth_checker", "dkim_validator"}, AuthLevelBonus: 1, UnavailableFor: []string{"Yahoo"}},
		{ID: "mega_auth", Name: "Mega Auth", Cost: 10, AuthLevelBonus: 3},
		{ID: "silent_trap", Name: "Silent Trap", Cost: 100, ActivatesSpamTrap: true},
		{ID: "desk", Name: "Investigation Desk", Cost: 60, EnablesInvestigation: true},
	}
	incidents := []catalogs.IncidentDef{
		{
			ID: "blocklist", Name: "Blocklist Listing", Category: "reputation", Rounds: []int{2},
			Effects: []catalogs.Effect{
				{Target: catalogs.TargetSelectedESP, Type: catalogs.EffectReputation, Value: -8},
			},
		},
		{
			ID: "trap_sweep", Name: "Trap Sweep", Category: "client", Rounds: []int{1, 2, 3},
			Effects: []catalogs.Effect{
				{Target: catalogs.TargetSelectedClient, Type: catalogs.EffectSpamTrapMultiplier, Multiplier: 1.5, Duration: catalogs.DurationNextRound},
			},
		},
		{
			ID: "audit", Name: "Compliance Audit", Category: "operations", Rounds: []int{1, 4},
			Effects: []catalogs.Effect{
				{Target: catalogs.TargetSelectedESP, Type: catalogs.EffectAutoLock},
			},
		},
		{
			ID: "ransom", Name: "Ransom Blocklist", Category: "choice", Rounds: []int{1, 3},
			Choice: &catalogs.ChoiceConfig{
				TargetTeams: "lowest_reputation",
				Options: []catalogs.ChoiceOption{
					{ID: "pay", Effects: []catalogs.Effect{
						{Target: catalogs.TargetSelectedESP, Type: catalogs.EffectCredits, Value: -100},
						{Target: catalogs.TargetSelectedESP, Type: catalogs.EffectReputation, Value: 4},
					}},
					{ID: "ride", IsDefault: true, Effects: []catalogs.Effect{
						{Target: catalogs.TargetSelectedESP, Type: catalogs.EffectReputation, Value: -6},
					}},
				},
			},
		},
	}

	cats := &catalogs.Catalogs{
		Clients:   catalogs.ClientCatalog{ByID: map[string]catalogs.ClientProfile{}, Digest: "test-clients"},
		Upgrades:  catalogs.UpgradeCatalog{ByID: map[string]catalogs.TechUpgrade{}, Digest: "test-upgrades"},
		Tools:     catalogs.ToolCatalog{ByID: map[string]catalogs.DestinationTool{}, Digest: "test-tools"},
		Incidents: catalogs.IncidentCatalog{ByID: map[string]catalogs.IncidentDef{}, Digest: "test-incidents"},
	}
	for _, c := range clients {
		cats.Clients.ByID[c.ID] = c
		cats.Clients.Order = append(cats.Clients.Order, c.ID)
	}
	for _, u := range upgrades {
		cats.Upgrades.ByID[u.ID] = u
		cats.Upgrades.Order = append(cats.Upgrades.Order, u.ID)
	}
	for _, tl := range tools {
		cats.Tools.ByID[tl.ID] = tl
		cats.Tools.Order = append(cats.Tools.Order, tl.ID)
	}
	for _, in := range incidents {
		cats.Incidents.ByID[in.ID] = in
		cats.Incidents.Order = append(cats.Incidents.Order, in.ID)
	}
	return cats
}

// newTestSession builds a session with the three standard kingdoms and one
// ESP team, sitting in planning for round 1.
func newTestSession(teamNames ...string) *GameSession {
	s := NewSession("TEST1", DefaultConfig(), testCatalogs())
	s.SetRNG(&seqRNG{})
	if len(teamNames) == 0 {
		teamNames = []string{"Acme"}
	}
	for _, n := range teamNames {
		s.AddTeam(n)
	}
	s.AddDestination("Gmail")
	s.AddDestination("Outlook")
	s.AddDestination("Yahoo")
	s.CurrentRound = 1
	s.CurrentPhase = PhasePlanning
	return s
}

// activateClient puts a client straight onto the roster as active, first
// active in the given round, bypassing the marketplace.
func activateClient(t *ESPTeam, clientID string, firstActive int) {
	t.ActiveClients = append(t.ActiveClients, clientID)
	r := firstActive
	t.ClientStates[clientID] = &ClientState{Status: ClientActive, FirstActiveRound: &r}
}

func intPtr(v int) *int { return &v }
