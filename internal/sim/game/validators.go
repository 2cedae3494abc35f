package game

import (
	"fmt"

	"mailcraft.ai/internal/protocol"
	"mailcraft.ai/internal/sim/catalogs"
)

// ValidationResult is the outcome of a pure purchase/acquisition check.
// Checks run in a fixed priority order and stop at the first failure so a
// UI always has exactly one actionable reason. Missing carries the full
// unmet dependency set, not just the first one.
type ValidationResult struct {
	OK      bool
	Code    string
	Message string
	Missing []string
}

func valid() ValidationResult { return ValidationResult{OK: true} }

func invalid(code, message string) ValidationResult {
	return ValidationResult{OK: false, Code: code, Message: message}
}

// missingDeps computes required \ owned, preserving required order.
func missingDeps(required, owned []string) []string {
	var missing []string
	for _, req := range required {
		found := false
		for _, o := range owned {
			if o == req {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, req)
		}
	}
	return missing
}

// CanPurchaseTech checks an ESP tech upgrade purchase. Order:
// already-owned, unmet dependencies, insufficient credits.
func CanPurchaseTech(t *ESPTeam, up catalogs.TechUpgrade) ValidationResult {
	if t.OwnsUpgrade(up.ID) {
		return invalid(protocol.ErrAlreadyOwned, fmt.Sprintf("%s is already owned", up.ID))
	}
	if missing := missingDeps(up.Requires, t.OwnedTechUpgrades); len(missing) > 0 {
		r := invalid(protocol.ErrMissingDependencies, fmt.Sprintf("%s has unmet dependencies", up.ID))
		r.Missing = missing
		return r
	}
	if t.Credits < up.Cost {
		return invalid(protocol.ErrInsufficientCredits,
			fmt.Sprintf("%s costs %d, team has %d", up.ID, up.Cost, t.Credits))
	}
	return valid()
}

// CanPurchaseTool checks a destination tool purchase. Order: already-owned,
// unmet dependencies, kingdom availability, insufficient budget.
func CanPurchaseTool(d *Destination, tool catalogs.DestinationTool) ValidationResult {
	if d.OwnsTool(tool.ID) {
		return invalid(protocol.ErrAlreadyOwned, fmt.Sprintf("%s is already owned", tool.ID))
	}
	if missing := missingDeps(tool.Requires, d.OwnedTools); len(missing) > 0 {
		r := invalid(protocol.ErrMissingDependencies, fmt.Sprintf("%s has unmet dependencies", tool.ID))
		r.Missing = missing
		return r
	}
	for _, kingdom := range tool.UnavailableFor {
		if kingdom == d.Name {
			return invalid(protocol.ErrToolUnavailable,
				fmt.Sprintf("%s is not available for %s", tool.ID, d.Name))
		}
	}
	if d.Budget < tool.Cost {
		return invalid(protocol.ErrInsufficientBudget,
			fmt.Sprintf("%s costs %d, budget is %d", tool.ID, tool.Cost, d.Budget))
	}
	return valid()
}

// CanAcquireClient checks a marketplace acquisition. Order: existence in
// the marketplace, already on the roster, insufficient credits.
func CanAcquireClient(t *ESPTeam, clientID string) ValidationResult {
	var profile *catalogs.ClientProfile
	for i := range t.AvailableClients {
		if t.AvailableClients[i].ID == clientID {
			profile = &t.AvailableClients[i]
			break
		}
	}
	if profile == nil {
		return invalid(protocol.ErrClientNotFound, fmt.Sprintf("client %s is not in the marketplace", clientID))
	}
	if t.HasActiveClient(clientID) {
		return invalid(protocol.ErrClientAlreadyActive, fmt.Sprintf("client %s is already on the roster", clientID))
	}
	if t.Credits < profile.Cost {
		return invalid(protocol.ErrInsufficientCredits,
			fmt.Sprintf("client %s costs %d, team has %d", clientID, profile.Cost, t.Credits))
	}
	return valid()
}

// CanOnboardClient checks whether an acquired client may start sending.
// Order: existence on the roster, suspended, already active, reputation
// requirement against the kingdom-weighted blend.
func (s *GameSession) CanOnboardClient(t *ESPTeam, clientID string) ValidationResult {
	cs := t.ClientStates[clientID]
	if cs == nil {
		return invalid(protocol.ErrClientNotFound, fmt.Sprintf("client %s is not on the roster", clientID))
	}
	if cs.Status == ClientSuspended {
		return invalid(protocol.ErrClientSuspended, fmt.Sprintf("client %s is suspended", clientID))
	}
	if cs.Status == ClientActive {
		return invalid(protocol.ErrClientAlreadyActive, fmt.Sprintf("client %s is already sending", clientID))
	}
	profile, ok := s.cats.Clients.ByID[clientID]
	if ok && profile.MinReputation > 0 {
		if rep := s.WeightedReputation(t); rep < profile.MinReputation {
			return invalid(protocol.ErrInsufficientReputation,
				fmt.Sprintf("client %s requires reputation %.0f, team has %.0f", clientID, profile.MinReputation, rep))
		}
	}
	return valid()
}

// CanLockIn gates a team's lock-in: planning phase only, and a negative
// balance must be resolved first. Purchases never clamp credits; this is
// where a transiently negative balance becomes a hard stop.
func (s *GameSession) CanLockIn(t *ESPTeam) ValidationResult {
	if s.CurrentPhase != PhasePlanning {
		return invalid(protocol.ErrWrongPhase, "lock-in is only allowed during planning")
	}
	if t.Credits < 0 {
		return invalid(protocol.ErrNegativeCredits,
			fmt.Sprintf("credits are %d, resolve the deficit before locking in", t.Credits))
	}
	return valid()
}

func (s *GameSession) CanLockInDestination(d *Destination) ValidationResult {
	if s.CurrentPhase != PhasePlanning {
		return invalid(protocol.ErrWrongPhase, "lock-in is only allowed during planning")
	}
	if d.Budget < 0 {
		return invalid(protocol.ErrInsufficientBudget,
			fmt.Sprintf("budget is %d, resolve the deficit before locking in", d.Budget))
	}
	return valid()
}
