package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Catalogs holds the static configuration tables the engine reads at
// startup: client profiles, ESP tech upgrades, destination tools and
// incident cards. The engine never mutates them.
type Catalogs struct {
	Clients   ClientCatalog
	Upgrades  UpgradeCatalog
	Tools     ToolCatalog
	Incidents IncidentCatalog
}

type ClientCatalog struct {
	ByID   map[string]ClientProfile
	Order  []string // marketplace listing order (catalog file order)
	Digest string
}

// ClientProfile describes a marketplace client an ESP can acquire.
type ClientProfile struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Type          string  `json:"type"` // e.g. "newsletter","transactional","promotional","aggressive"
	Cost          int     `json:"cost"`
	Volume        float64 `json:"volume"`   // emails per round
	Revenue       float64 `json:"revenue"`  // credits per round
	SpamRate      float64 `json:"spam_rate"`
	Risk          float64 `json:"risk"` // 0..1
	MinReputation float64 `json:"min_reputation,omitempty"`
	Description   string  `json:"description,omitempty"`
}

type UpgradeCatalog struct {
	ByID   map[string]TechUpgrade
	Order  []string
	Digest string
}

type TechUpgrade struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Cost            int      `json:"cost"`
	Requires        []string `json:"requires,omitempty"`
	DeliveryBonus   float64  `json:"delivery_bonus,omitempty"`
	ReputationBonus float64  `json:"reputation_bonus,omitempty"`
	// Optional per-client modifiers granted by the upgrade, applied to
	// every roster client for the rest of the game.
	VolumeMultiplier   float64 `json:"volume_multiplier,omitempty"`
	SpamTrapMultiplier float64 `json:"spam_trap_multiplier,omitempty"`
	Description        string  `json:"description,omitempty"`
}

type ToolCatalog struct {
	ByID   map[string]DestinationTool
	Order  []string
	Digest string
}

type DestinationTool struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Cost                 int      `json:"cost"`
	Requires             []string `json:"requires,omitempty"`
	UnavailableFor       []string `json:"unavailable_for,omitempty"` // destination kingdoms
	AuthLevelBonus       int      `json:"auth_level_bonus,omitempty"`
	ActivatesSpamTrap    bool     `json:"activates_spam_trap,omitempty"`
	TrapAnnounced        bool     `json:"trap_announced,omitempty"`
	EnablesInvestigation bool     `json:"enables_investigation,omitempty"`
	Description          string   `json:"description,omitempty"`
}

type IncidentCatalog struct {
	ByID   map[string]IncidentDef
	Order  []string
	Digest string
}

// IncidentDef is an immutable incident card. Effects are externally
// authored content; unknown target/type strings survive loading and are
// skipped with a log line at application time.
type IncidentDef struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Rounds   []int         `json:"rounds"`
	Effects  []Effect      `json:"effects,omitempty"`
	Choice   *ChoiceConfig `json:"choice,omitempty"`
}

type ChoiceConfig struct {
	TargetTeams string         `json:"target_teams"` // "highest_reputation","lowest_reputation","all_esps"
	Prompt      string         `json:"prompt,omitempty"`
	Options     []ChoiceOption `json:"options"`
}

type ChoiceOption struct {
	ID        string   `json:"id"`
	Label     string   `json:"label,omitempty"`
	IsDefault bool     `json:"is_default,omitempty"`
	Effects   []Effect `json:"effects,omitempty"`
}

type EffectTarget string

const (
	TargetSelectedESP     EffectTarget = "selected_esp"
	TargetSelectedClient  EffectTarget = "selected_client"
	TargetConditionalESP  EffectTarget = "conditional_esp"
	TargetAllESPs         EffectTarget = "all_esps"
	TargetAllDestinations EffectTarget = "all_destinations"
	TargetNotification    EffectTarget = "notification"
)

type EffectType string

const (
	EffectReputation         EffectType = "reputation"
	EffectReputationSet      EffectType = "reputation_set"
	EffectCredits            EffectType = "credits"
	EffectBudget             EffectType = "budget"
	EffectVolumeMultiplier   EffectType = "client_volume_multiplier"
	EffectSpamTrapMultiplier EffectType = "client_spam_trap_multiplier"
	EffectAutoLock           EffectType = "auto_lock"
	EffectNotification       EffectType = "notification"
)

type EffectDuration string

const (
	DurationThisRound EffectDuration = "this_round"
	DurationNextRound EffectDuration = "next_round"
	DurationPermanent EffectDuration = "permanent"
)

// Condition gates an effect. Closed set: "has_tech"/"lacks_tech" check the
// team's owned upgrades; "has_list_hygiene" checks the selected client's
// modifiers.
type Condition struct {
	Type string `json:"type"`
	Tech string `json:"tech,omitempty"`
}

const (
	CondHasTech        = "has_tech"
	CondLacksTech      = "lacks_tech"
	CondHasListHygiene = "has_list_hygiene"
)

// Effect carries only the fields its target/type combination needs.
type Effect struct {
	Target      EffectTarget   `json:"target"`
	Type        EffectType     `json:"type"`
	Value       float64        `json:"value,omitempty"`
	Multiplier  float64        `json:"multiplier,omitempty"`
	Duration    EffectDuration `json:"duration,omitempty"`
	Condition   *Condition     `json:"condition,omitempty"`
	ClientTypes []string       `json:"client_types,omitempty"`
	Message     string         `json:"message,omitempty"`
}

func KnownEffectTarget(t EffectTarget) bool {
	switch t {
	case TargetSelectedESP, TargetSelectedClient, TargetConditionalESP,
		TargetAllESPs, TargetAllDestinations, TargetNotification:
		return true
	}
	return false
}

// IncidentsForRound filters the catalog to cards eligible for the round,
// in catalog order.
func (c *IncidentCatalog) IncidentsForRound(round int) []IncidentDef {
	var out []IncidentDef
	for _, id := range c.Order {
		def := c.ByID[id]
		for _, r := range def.Rounds {
			if r == round {
				out = append(out, def)
				break
			}
		}
	}
	return out
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadClients(filepath.Join(configDir, "clients.json"), &c.Clients); err != nil {
		return nil, err
	}
	if err := loadUpgrades(filepath.Join(configDir, "tech_upgrades.json"), &c.Upgrades); err != nil {
		return nil, err
	}
	if err := loadTools(filepath.Join(configDir, "destination_tools.json"), &c.Tools); err != nil {
		return nil, err
	}
	if err := loadIncidents(filepath.Join(configDir, "incidents"), &c.Incidents); err != nil {
		return nil, err
	}

	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadClients(path string, out *ClientCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ClientProfile
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("clients.json: %w", err)
	}
	out.ByID = map[string]ClientProfile{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("clients.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("clients.json: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}

func loadUpgrades(path string, out *UpgradeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []TechUpgrade
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("tech_upgrades.json: %w", err)
	}
	out.ByID = map[string]TechUpgrade{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("tech_upgrades.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("tech_upgrades.json: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	// Dependencies must resolve inside the catalog.
	for _, d := range out.ByID {
		for _, req := range d.Requires {
			if _, ok := out.ByID[req]; !ok {
				return fmt.Errorf("tech_upgrades.json: %s requires unknown %q", d.ID, req)
			}
		}
	}
	return nil
}

func loadTools(path string, out *ToolCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []DestinationTool
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("destination_tools.json: %w", err)
	}
	out.ByID = map[string]DestinationTool{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("destination_tools.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("destination_tools.json: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	for _, d := range out.ByID {
		for _, req := range d.Requires {
			if _, ok := out.ByID[req]; !ok {
				return fmt.Errorf("destination_tools.json: %s requires unknown %q", d.ID, req)
			}
		}
	}
	return nil
}

func loadIncidents(dir string, out *IncidentCatalog) error {
	out.ByID = map[string]IncidentDef{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Allow running without incident content.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var def IncidentDef
		if err := json.Unmarshal(b, &def); err != nil {
			return fmt.Errorf("incident %s: %w", filepath.Base(p), err)
		}
		if def.ID == "" {
			return fmt.Errorf("incident %s: missing id", filepath.Base(p))
		}
		if len(def.Rounds) == 0 {
			return fmt.Errorf("incident %s: no eligible rounds", def.ID)
		}
		if def.Choice != nil {
			if len(def.Choice.Options) == 0 {
				return fmt.Errorf("incident %s: choice with no options", def.ID)
			}
			seen := map[string]struct{}{}
			for _, opt := range def.Choice.Options {
				if opt.ID == "" {
					return fmt.Errorf("incident %s: choice option missing id", def.ID)
				}
				if _, dup := seen[opt.ID]; dup {
					return fmt.Errorf("incident %s: duplicate choice option %q", def.ID, opt.ID)
				}
				seen[opt.ID] = struct{}{}
			}
		}
		if _, dup := out.ByID[def.ID]; dup {
			return fmt.Errorf("incident %s: duplicate id", def.ID)
		}
		out.ByID[def.ID] = def
		out.Order = append(out.Order, def.ID)
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}
