package protocol

// Event is a loosely-typed broadcast payload. Consumers route on "type".
type Event map[string]any

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoomCode        string `json:"room_code"`
	Role            string `json:"role"`
	TeamName        string `json:"team_name,omitempty"`
	PlayerName      string `json:"player_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	PlayerID        string         `json:"player_id"`
	RoomCode        string         `json:"room_code"`
	Role            string         `json:"role"`
	TeamName        string         `json:"team_name,omitempty"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	ClientsDigest   string `json:"clients_digest"`
	UpgradesDigest  string `json:"upgrades_digest"`
	ToolsDigest     string `json:"tools_digest"`
	IncidentsDigest string `json:"incidents_digest"`
}

// ACTION (client -> server). Op selects the engine operation; the remaining
// fields carry whatever that op needs.
type ActionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Op              string `json:"op"`

	UpgradeID  string `json:"upgrade_id,omitempty"`
	ToolID     string `json:"tool_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	IncidentID string `json:"incident_id,omitempty"`
	ChoiceID   string `json:"choice_id,omitempty"`
	TeamName   string `json:"team_name,omitempty"`
	ESPName    string `json:"esp_name,omitempty"`
	PolicyMode string `json:"policy_mode,omitempty"`
}

// Engine operations carried by ActionMsg.Op.
const (
	OpPurchaseTech     = "PURCHASE_TECH"
	OpPurchaseTool     = "PURCHASE_TOOL"
	OpAcquireClient    = "ACQUIRE_CLIENT"
	OpOnboardClient    = "ONBOARD_CLIENT"
	OpPauseClient      = "PAUSE_CLIENT"
	OpResumeClient     = "RESUME_CLIENT"
	OpSetPolicy        = "SET_POLICY"
	OpStartVote        = "START_VOTE"
	OpLockIn           = "LOCK_IN"
	OpSetChoice        = "SET_CHOICE"
	OpTriggerIncident  = "TRIGGER_INCIDENT"
	OpApplyIncident    = "APPLY_INCIDENT"
	OpForceEndPhase    = "FORCE_END_PHASE"
	OpAdvancePhase     = "ADVANCE_PHASE"
	OpPauseGame        = "PAUSE_GAME"
	OpResumeGame       = "RESUME_GAME"
)
