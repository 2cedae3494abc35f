package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Room routing/state.
	ErrRoomNotFound = "E_ROOM_NOT_FOUND"
	ErrRoomFull     = "E_ROOM_FULL"
	ErrWrongPhase   = "E_WRONG_PHASE"
	ErrNotAllowed   = "E_NOT_ALLOWED"

	// Purchase/acquisition validators.
	ErrInsufficientCredits    = "E_INSUFFICIENT_CREDITS"
	ErrInsufficientBudget     = "E_INSUFFICIENT_BUDGET"
	ErrMissingDependencies    = "E_MISSING_DEPENDENCIES"
	ErrAlreadyOwned           = "E_ALREADY_OWNED"
	ErrToolUnavailable        = "E_TOOL_UNAVAILABLE_FOR_KINGDOM"
	ErrClientNotFound         = "E_CLIENT_NOT_FOUND"
	ErrClientAlreadyActive    = "E_CLIENT_ALREADY_ACTIVE"
	ErrClientSuspended        = "E_CLIENT_SUSPENDED"
	ErrInsufficientReputation = "E_INSUFFICIENT_REPUTATION"
	ErrMissingTech            = "E_MISSING_TECH"
	ErrNegativeCredits        = "E_NEGATIVE_CREDITS"

	// Incident protocol.
	ErrIncidentNotFound   = "E_INCIDENT_NOT_FOUND"
	ErrWrongRound         = "E_WRONG_ROUND"
	ErrAlreadyTriggered   = "E_ALREADY_TRIGGERED"
	ErrNoActiveClients    = "E_NO_ACTIVE_CLIENTS"
	ErrNoPendingChoice    = "E_NO_PENDING_CHOICE"
	ErrInvalidChoice      = "E_INVALID_CHOICE"
	ErrChoiceNotConfirmed = "E_CHOICE_NOT_CONFIRMED"

	// General.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:        {},
	ErrRoomNotFound:           {},
	ErrRoomFull:               {},
	ErrWrongPhase:             {},
	ErrNotAllowed:             {},
	ErrInsufficientCredits:    {},
	ErrInsufficientBudget:     {},
	ErrMissingDependencies:    {},
	ErrAlreadyOwned:           {},
	ErrToolUnavailable:        {},
	ErrClientNotFound:         {},
	ErrClientAlreadyActive:    {},
	ErrClientSuspended:        {},
	ErrInsufficientReputation: {},
	ErrMissingTech:            {},
	ErrNegativeCredits:        {},
	ErrIncidentNotFound:       {},
	ErrWrongRound:             {},
	ErrAlreadyTriggered:       {},
	ErrNoActiveClients:        {},
	ErrNoPendingChoice:        {},
	ErrInvalidChoice:          {},
	ErrChoiceNotConfirmed:     {},
	ErrBadRequest:             {},
	ErrNotFound:               {},
	ErrInternal:               {},
}

// IsKnownCode reports whether code is in the registry. The empty string
// marks a successful result and is always accepted.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
