package game

import (
	"math"
	"math/rand"
	"time"

	"mailcraft.ai/internal/sim/catalogs"
	"mailcraft.ai/internal/sim/tuning"
)

type Phase string

const (
	PhaseLobby              Phase = "lobby"
	PhaseResourceAllocation Phase = "resource_allocation"
	PhasePlanning           Phase = "planning"
	PhaseResolution         Phase = "resolution"
	PhaseConsequences       Phase = "consequences"
	PhaseFinished           Phase = "finished"
)

type ClientStatus string

const (
	ClientActive    ClientStatus = "active"
	ClientPaused    ClientStatus = "paused"
	ClientSuspended ClientStatus = "suspended"
)

// Config carries the tuning knobs the engine needs. Values come from
// tuning.yaml in production; tests use DefaultConfig.
type Config struct {
	Rounds            int
	StartingCredits   int
	StartingBudget    int
	DefaultReputation float64

	KingdomWeights map[string]float64
	Zones          []ZoneBand

	CleanSendBonus   float64
	RiskPenalty      float64
	TrapActiveFactor float64
	WarmupBonus      float64
	WarmupVolumeCap  float64

	SuspendComplaintRate float64

	SpamAnnoyanceFactor float64
	FalsePositiveFactor float64
	NeutralSatisfaction float64
}

// ZoneBand maps a reputation floor to a delivery success rate. Bands are
// ordered best first; the first band whose floor is met wins.
type ZoneBand struct {
	Name          string
	MinReputation float64
	SuccessRate   float64
}

func DefaultConfig() Config {
	return Config{
		Rounds:            4,
		StartingCredits:   500,
		StartingBudget:    300,
		DefaultReputation: 70,
		KingdomWeights: map[string]float64{
			"Gmail":   0.5,
			"Outlook": 0.3,
			"Yahoo":   0.2,
		},
		Zones: []ZoneBand{
			{Name: "excellent", MinReputation: 90, SuccessRate: 0.98},
			{Name: "good", MinReputation: 75, SuccessRate: 0.92},
			{Name: "warning", MinReputation: 60, SuccessRate: 0.80},
			{Name: "poor", MinReputation: 40, SuccessRate: 0.60},
			{Name: "blacklist", MinReputation: 0, SuccessRate: 0.25},
		},
		CleanSendBonus:       2.0,
		RiskPenalty:          40.0,
		TrapActiveFactor:     1.5,
		WarmupBonus:          1.5,
		WarmupVolumeCap:      50000,
		SuspendComplaintRate: 0.25,
		SpamAnnoyanceFactor:  2.0,
		FalsePositiveFactor:  0.5,
		NeutralSatisfaction:  70,
	}
}

func ConfigFromTuning(t tuning.Tuning) Config {
	cfg := DefaultConfig()
	if t.Rounds > 0 {
		cfg.Rounds = t.Rounds
	}
	if t.StartingCredits > 0 {
		cfg.StartingCredits = t.StartingCredits
	}
	if t.StartingBudget > 0 {
		cfg.StartingBudget = t.StartingBudget
	}
	if t.DefaultReputation > 0 {
		cfg.DefaultReputation = t.DefaultReputation
	}
	if len(t.KingdomWeights) > 0 {
		cfg.KingdomWeights = t.KingdomWeights
	}
	if len(t.Zones) > 0 {
		cfg.Zones = cfg.Zones[:0]
		for _, z := range t.Zones {
			cfg.Zones = append(cfg.Zones, ZoneBand{Name: z.Name, MinReputation: z.MinReputation, SuccessRate: z.SuccessRate})
		}
	}
	if t.Reputation.CleanSendBonus != 0 {
		cfg.CleanSendBonus = t.Reputation.CleanSendBonus
	}
	if t.Reputation.RiskPenalty != 0 {
		cfg.RiskPenalty = t.Reputation.RiskPenalty
	}
	if t.Reputation.TrapActiveFactor != 0 {
		cfg.TrapActiveFactor = t.Reputation.TrapActiveFactor
	}
	if t.Reputation.WarmupBonus != 0 {
		cfg.WarmupBonus = t.Reputation.WarmupBonus
	}
	if t.Reputation.WarmupVolumeCap != 0 {
		cfg.WarmupVolumeCap = t.Reputation.WarmupVolumeCap
	}
	if t.Complaints.SuspendRate != 0 {
		cfg.SuspendComplaintRate = t.Complaints.SuspendRate
	}
	if t.Satisfaction.SpamAnnoyanceFactor != 0 {
		cfg.SpamAnnoyanceFactor = t.Satisfaction.SpamAnnoyanceFactor
	}
	if t.Satisfaction.FalsePositiveFactor != 0 {
		cfg.FalsePositiveFactor = t.Satisfaction.FalsePositiveFactor
	}
	if t.Satisfaction.NeutralDefault != 0 {
		cfg.NeutralSatisfaction = t.Satisfaction.NeutralDefault
	}
	return cfg
}

// GameSession is the root aggregate for one room. All engine operations
// mutate it in place and must be serialized by the caller (one writer per
// room at a time); nothing inside the engine spawns goroutines.
type GameSession struct {
	RoomCode     string
	Teams        []*ESPTeam
	Destinations []*Destination

	CurrentRound int // 0..cfg.Rounds
	CurrentPhase Phase
	Paused       bool

	IncidentHistory   []IncidentRecord
	ResolutionHistory []*ResolutionResults

	cfg  Config
	cats *catalogs.Catalogs
	log  EventLogger
	rng  RNG
}

type ESPTeam struct {
	Name             string
	Credits          int
	Reputation       map[string]float64 // destination name -> 0..100
	ActiveClients    []string
	AvailableClients []catalogs.ClientProfile
	ClientStates     map[string]*ClientState
	OwnedTechUpgrades []string
	LockedIn         bool
	PendingAutoLock  bool
	PendingIncidentChoices []*PendingChoice
	PlayerCount      int
}

type ClientState struct {
	Status            ClientStatus
	FirstActiveRound  *int // nil until the client first becomes active; set once
	VolumeModifiers   []Modifier
	SpamTrapModifiers []Modifier
}

type Destination struct {
	Name                string
	Budget              int
	FilteringPolicies   map[string]FilteringPolicy // esp name -> policy
	OwnedTools          []string
	AuthenticationLevel int // 0..3
	SpamTrapActive      *SpamTrap
	PendingInvestigationVote *InvestigationVote
	LockedIn            bool
	PlayerCount         int
}

type FilteringPolicy struct {
	Mode string // "normal","strict","lenient"
}

const (
	PolicyNormal  = "normal"
	PolicyStrict  = "strict"
	PolicyLenient = "lenient"
)

type SpamTrap struct {
	Round     int
	Announced bool
}

type InvestigationVote struct {
	ESPName string
}

type PendingChoice struct {
	IncidentID     string
	ChoiceID       string
	Confirmed      bool
	EffectsApplied bool
}

type IncidentRecord struct {
	IncidentID     string
	Name           string
	Category       string
	RoundTriggered int
	TeamName       string
	SelectedClient string
	Timestamp      time.Time
}

// RNG is the injectable randomness source (client selection, name
// variance). Production uses math/rand; tests inject a fixed sequence.
type RNG interface {
	Intn(n int) int
}

func NewSession(roomCode string, cfg Config, cats *catalogs.Catalogs) *GameSession {
	return &GameSession{
		RoomCode:     roomCode,
		CurrentRound: 0,
		CurrentPhase: PhaseLobby,
		cfg:          cfg,
		cats:         cats,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *GameSession) SetEventLogger(l EventLogger) { s.log = l }
func (s *GameSession) SetRNG(r RNG) {
	if r != nil {
		s.rng = r
	}
}

func (s *GameSession) Config() Config               { return s.cfg }
func (s *GameSession) Catalogs() *catalogs.Catalogs { return s.cats }

// AddTeam registers an ESP team. The marketplace starts stocked with every
// catalog client, in catalog order.
func (s *GameSession) AddTeam(name string) *ESPTeam {
	if t := s.Team(name); t != nil {
		return t
	}
	t := &ESPTeam{
		Name:         name,
		Credits:      s.cfg.StartingCredits,
		Reputation:   map[string]float64{},
		ClientStates: map[string]*ClientState{},
	}
	if s.cats != nil {
		for _, id := range s.cats.Clients.Order {
			t.AvailableClients = append(t.AvailableClients, s.cats.Clients.ByID[id])
		}
	}
	s.Teams = append(s.Teams, t)
	s.event("team_joined", map[string]any{"team": name})
	return t
}

func (s *GameSession) AddDestination(name string) *Destination {
	if d := s.Destination(name); d != nil {
		return d
	}
	d := &Destination{
		Name:              name,
		Budget:            s.cfg.StartingBudget,
		FilteringPolicies: map[string]FilteringPolicy{},
	}
	s.Destinations = append(s.Destinations, d)
	s.event("destination_joined", map[string]any{"destination": name})
	return d
}

func (s *GameSession) Team(name string) *ESPTeam {
	for _, t := range s.Teams {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (s *GameSession) Destination(name string) *Destination {
	for _, d := range s.Destinations {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// ReputationAt returns the team's reputation at a destination, defaulting
// missing entries rather than materializing them.
func (s *GameSession) ReputationAt(t *ESPTeam, destination string) float64 {
	if v, ok := t.Reputation[destination]; ok {
		return v
	}
	return s.cfg.DefaultReputation
}

// MeanReputation is the unweighted mean across the session's destinations
// (incident choice targeting uses this, not the kingdom-weighted blend).
func (s *GameSession) MeanReputation(t *ESPTeam) float64 {
	if len(s.Destinations) == 0 {
		return s.cfg.DefaultReputation
	}
	var sum float64
	for _, d := range s.Destinations {
		sum += s.ReputationAt(t, d.Name)
	}
	return sum / float64(len(s.Destinations))
}

// WeightedReputation blends per-destination reputation by kingdom weight
// and rounds to a whole number for display.
func (s *GameSession) WeightedReputation(t *ESPTeam) float64 {
	var sum, wsum float64
	for _, d := range s.Destinations {
		w, ok := s.cfg.KingdomWeights[d.Name]
		if !ok {
			continue
		}
		sum += s.ReputationAt(t, d.Name) * w
		wsum += w
	}
	if wsum == 0 {
		return s.MeanReputation(t)
	}
	return math.Round(sum / wsum)
}

// ESPReputation is the destination's view of every team: the same numbers
// the teams carry, exposed from one source of truth.
func (s *GameSession) ESPReputation(d *Destination) map[string]float64 {
	out := make(map[string]float64, len(s.Teams))
	for _, t := range s.Teams {
		out[t.Name] = s.ReputationAt(t, d.Name)
	}
	return out
}

func (t *ESPTeam) OwnsUpgrade(id string) bool {
	for _, u := range t.OwnedTechUpgrades {
		if u == id {
			return true
		}
	}
	return false
}

func (t *ESPTeam) HasActiveClient(id string) bool {
	for _, c := range t.ActiveClients {
		if c == id {
			return true
		}
	}
	return false
}

func (d *Destination) OwnsTool(id string) bool {
	for _, t := range d.OwnedTools {
		if t == id {
			return true
		}
	}
	return false
}

func clampReputation(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
