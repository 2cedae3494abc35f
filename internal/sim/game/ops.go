package game

import (
	"fmt"

	"mailcraft.ai/internal/protocol"
	"mailcraft.ai/internal/sim/catalogs"
)

// ActionResult is the outcome of a state-mutating player operation. Every
// public engine entry point returns one of these instead of throwing.
type ActionResult struct {
	OK      bool
	Code    string
	Message string
	Missing []string
}

func actionFail(code, message string) ActionResult {
	return ActionResult{OK: false, Code: code, Message: message}
}

func fromValidation(v ValidationResult) ActionResult {
	return ActionResult{OK: v.OK, Code: v.Code, Message: v.Message, Missing: v.Missing}
}

// PurchaseTech buys a tech upgrade for a team. Deduction is a plain
// subtraction: purchase flows never clamp, so a deficit stays visible and
// blocks lock-in instead of silently vanishing.
func (s *GameSession) PurchaseTech(teamName, upgradeID string) ActionResult {
	t := s.Team(teamName)
	if t == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown team %s", teamName))
	}
	up, ok := s.cats.Upgrades.ByID[upgradeID]
	if !ok {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown upgrade %s", upgradeID))
	}
	if v := CanPurchaseTech(t, up); !v.OK {
		return fromValidation(v)
	}
	t.Credits -= up.Cost
	t.OwnedTechUpgrades = append(t.OwnedTechUpgrades, up.ID)
	for clientID := range t.ClientStates {
		s.grantUpgradeModifiers(t, clientID, up.ID)
	}
	s.event("tech_purchased", map[string]any{"team": t.Name, "upgrade": up.ID, "cost": up.Cost})
	return ActionResult{OK: true}
}

// grantUpgradeModifiers attaches an upgrade's per-client modifiers (e.g.
// list_hygiene halving spam-trap exposure) to one roster client. The
// modifier's source is the upgrade id, which incident conditions match on.
func (s *GameSession) grantUpgradeModifiers(t *ESPTeam, clientID, upgradeID string) {
	up, ok := s.cats.Upgrades.ByID[upgradeID]
	if !ok {
		return
	}
	cs := t.ClientStates[clientID]
	if cs == nil {
		return
	}
	allRounds := make([]int, 0, s.cfg.Rounds)
	for r := 1; r <= s.cfg.Rounds; r++ {
		allRounds = append(allRounds, r)
	}
	if up.VolumeMultiplier != 0 {
		cs.VolumeModifiers = append(cs.VolumeModifiers,
			NewModifier(clientID+"_"+up.ID+"_vol", up.ID, up.VolumeMultiplier, allRounds))
	}
	if up.SpamTrapMultiplier != 0 {
		cs.SpamTrapModifiers = append(cs.SpamTrapModifiers,
			NewModifier(clientID+"_"+up.ID+"_trap", up.ID, up.SpamTrapMultiplier, allRounds))
	}
}

// PurchaseTool buys a destination tool and applies its immediate side
// effects (authentication level, spam-trap activation).
func (s *GameSession) PurchaseTool(destName, toolID string) ActionResult {
	d := s.Destination(destName)
	if d == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown destination %s", destName))
	}
	tool, ok := s.cats.Tools.ByID[toolID]
	if !ok {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown tool %s", toolID))
	}
	if v := CanPurchaseTool(d, tool); !v.OK {
		return fromValidation(v)
	}
	d.Budget -= tool.Cost
	d.OwnedTools = append(d.OwnedTools, tool.ID)
	if tool.AuthLevelBonus > 0 {
		d.AuthenticationLevel += tool.AuthLevelBonus
		if d.AuthenticationLevel > 3 {
			d.AuthenticationLevel = 3
		}
	}
	if tool.ActivatesSpamTrap && d.SpamTrapActive == nil {
		d.SpamTrapActive = &SpamTrap{Round: s.CurrentRound, Announced: tool.TrapAnnounced}
	}
	s.event("tool_purchased", map[string]any{"destination": d.Name, "tool": tool.ID, "cost": tool.Cost})
	return ActionResult{OK: true}
}

// AcquireResult carries the fresh team value produced by AcquireClient.
type AcquireResult struct {
	OK      bool
	Code    string
	Message string
	Team    *ESPTeam
}

// AcquireClient is a pure function of (team, clientID): it never mutates
// its input. On success Team is a new value with the credits deducted, the
// client moved off the marketplace and a roster entry created (paused
// until onboarding).
func AcquireClient(t *ESPTeam, clientID string) AcquireResult {
	if v := CanAcquireClient(t, clientID); !v.OK {
		return AcquireResult{OK: false, Code: v.Code, Message: v.Message}
	}
	next := cloneTeam(t)
	for i := range next.AvailableClients {
		if next.AvailableClients[i].ID != clientID {
			continue
		}
		profile := next.AvailableClients[i]
		next.AvailableClients = append(next.AvailableClients[:i], next.AvailableClients[i+1:]...)
		next.Credits -= profile.Cost
		next.ActiveClients = append(next.ActiveClients, profile.ID)
		next.ClientStates[profile.ID] = &ClientState{Status: ClientPaused}
		break
	}
	return AcquireResult{OK: true, Team: next}
}

// AcquireClientForTeam runs AcquireClient and swaps the new team value
// into the session.
func (s *GameSession) AcquireClientForTeam(teamName, clientID string) ActionResult {
	t := s.Team(teamName)
	if t == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown team %s", teamName))
	}
	res := AcquireClient(t, clientID)
	if !res.OK {
		return ActionResult{OK: false, Code: res.Code, Message: res.Message}
	}
	for i := range s.Teams {
		if s.Teams[i].Name == teamName {
			s.Teams[i] = res.Team
			break
		}
	}
	for _, upID := range res.Team.OwnedTechUpgrades {
		s.grantUpgradeModifiers(res.Team, clientID, upID)
	}
	s.event("client_acquired", map[string]any{"team": teamName, "client": clientID})
	return ActionResult{OK: true}
}

// OnboardClient activates an acquired client. The first activation pins
// FirstActiveRound; it is never reset afterwards.
func (s *GameSession) OnboardClient(teamName, clientID string) ActionResult {
	t := s.Team(teamName)
	if t == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown team %s", teamName))
	}
	if v := s.CanOnboardClient(t, clientID); !v.OK {
		return fromValidation(v)
	}
	cs := t.ClientStates[clientID]
	cs.Status = ClientActive
	if cs.FirstActiveRound == nil {
		round := s.CurrentRound
		cs.FirstActiveRound = &round
	}
	s.event("client_onboarded", map[string]any{"team": teamName, "client": clientID})
	return ActionResult{OK: true}
}

// PauseClient stops a client from sending without removing it from the
// roster. Suspended clients are terminal and cannot be paused or resumed.
func (s *GameSession) PauseClient(teamName, clientID string) ActionResult {
	t := s.Team(teamName)
	if t == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown team %s", teamName))
	}
	cs := t.ClientStates[clientID]
	if cs == nil {
		return actionFail(protocol.ErrClientNotFound, fmt.Sprintf("client %s is not on the roster", clientID))
	}
	if cs.Status == ClientSuspended {
		return actionFail(protocol.ErrClientSuspended, fmt.Sprintf("client %s is suspended", clientID))
	}
	cs.Status = ClientPaused
	s.event("client_paused", map[string]any{"team": teamName, "client": clientID})
	return ActionResult{OK: true}
}

func (s *GameSession) ResumeClient(teamName, clientID string) ActionResult {
	t := s.Team(teamName)
	if t == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown team %s", teamName))
	}
	if v := s.CanOnboardClient(t, clientID); !v.OK {
		return fromValidation(v)
	}
	return s.OnboardClient(teamName, clientID)
}

// SetFilteringPolicy adjusts a destination's per-ESP filtering mode during
// planning.
func (s *GameSession) SetFilteringPolicy(destName, espName, mode string) ActionResult {
	if s.CurrentPhase != PhasePlanning {
		return actionFail(protocol.ErrWrongPhase, "policies can only change during planning")
	}
	d := s.Destination(destName)
	if d == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown destination %s", destName))
	}
	if s.Team(espName) == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown team %s", espName))
	}
	switch mode {
	case PolicyNormal, PolicyStrict, PolicyLenient:
	default:
		return actionFail(protocol.ErrBadRequest, fmt.Sprintf("unknown policy mode %q", mode))
	}
	d.FilteringPolicies[espName] = FilteringPolicy{Mode: mode}
	s.event("policy_set", map[string]any{"destination": destName, "esp": espName, "mode": mode})
	return ActionResult{OK: true}
}

// StartInvestigationVote opens a destination-side vote against an ESP.
// Requires an owned tool that enables investigations.
func (s *GameSession) StartInvestigationVote(destName, espName string) ActionResult {
	d := s.Destination(destName)
	if d == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown destination %s", destName))
	}
	if s.Team(espName) == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown team %s", espName))
	}
	enabled := false
	for _, toolID := range d.OwnedTools {
		if tool, ok := s.cats.Tools.ByID[toolID]; ok && tool.EnablesInvestigation {
			enabled = true
			break
		}
	}
	if !enabled {
		return actionFail(protocol.ErrMissingTech, "no owned tool enables investigations")
	}
	d.PendingInvestigationVote = &InvestigationVote{ESPName: espName}
	s.event("investigation_vote", map[string]any{"destination": destName, "esp": espName})
	return ActionResult{OK: true}
}

// LockIn finalizes a team's planning decisions for the round. Pending
// incident choices are settled first: an unconfirmed choice blocks the
// lock rather than silently taking the default.
func (s *GameSession) LockIn(teamName string) ActionResult {
	t := s.Team(teamName)
	if t == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown team %s", teamName))
	}
	if v := s.CanLockIn(t); !v.OK {
		return fromValidation(v)
	}
	if res := s.ApplyPendingChoiceEffects(t); !res.OK {
		return ActionResult{OK: false, Code: res.Code, Message: res.Message}
	}
	if t.LockedIn {
		// Already locked; absorbed, the state machine is the real guard.
		return ActionResult{OK: true}
	}
	t.LockedIn = true
	s.event("locked_in", map[string]any{"team": teamName})
	return ActionResult{OK: true}
}

func (s *GameSession) LockInDestination(destName string) ActionResult {
	d := s.Destination(destName)
	if d == nil {
		return actionFail(protocol.ErrNotFound, fmt.Sprintf("unknown destination %s", destName))
	}
	if v := s.CanLockInDestination(d); !v.OK {
		return fromValidation(v)
	}
	if d.LockedIn {
		return ActionResult{OK: true}
	}
	d.LockedIn = true
	s.event("locked_in", map[string]any{"destination": destName})
	return ActionResult{OK: true}
}

// cloneTeam deep-copies a team so pure operations can return fresh values.
func cloneTeam(t *ESPTeam) *ESPTeam {
	next := &ESPTeam{
		Name:            t.Name,
		Credits:         t.Credits,
		LockedIn:        t.LockedIn,
		PendingAutoLock: t.PendingAutoLock,
		PlayerCount:     t.PlayerCount,
	}
	next.Reputation = make(map[string]float64, len(t.Reputation))
	for k, v := range t.Reputation {
		next.Reputation[k] = v
	}
	next.ActiveClients = append([]string(nil), t.ActiveClients...)
	next.AvailableClients = append([]catalogs.ClientProfile(nil), t.AvailableClients...)
	next.OwnedTechUpgrades = append([]string(nil), t.OwnedTechUpgrades...)
	next.ClientStates = make(map[string]*ClientState, len(t.ClientStates))
	for id, cs := range t.ClientStates {
		cp := &ClientState{Status: cs.Status}
		if cs.FirstActiveRound != nil {
			r := *cs.FirstActiveRound
			cp.FirstActiveRound = &r
		}
		cp.VolumeModifiers = append([]Modifier(nil), cs.VolumeModifiers...)
		cp.SpamTrapModifiers = append([]Modifier(nil), cs.SpamTrapModifiers...)
		next.ClientStates[id] = cp
	}
	for _, pc := range t.PendingIncidentChoices {
		cp := *pc
		next.PendingIncidentChoices = append(next.PendingIncidentChoices, &cp)
	}
	return next
}
