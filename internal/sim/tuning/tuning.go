package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Rounds            int     `yaml:"rounds"`
	StartingCredits   int     `yaml:"starting_credits"`
	StartingBudget    int     `yaml:"starting_budget"`
	DefaultReputation float64 `yaml:"default_reputation"`

	// Weight of each destination kingdom in blended reputation/delivery.
	KingdomWeights map[string]float64 `yaml:"kingdom_weights"`

	// Reputation zones, best first. A team's reputation at a destination
	// falls into the first zone whose min_reputation it meets.
	Zones []Zone `yaml:"zones"`

	Reputation ReputationTuning `yaml:"reputation"`
	Complaints ComplaintTuning  `yaml:"complaints"`

	Satisfaction SatisfactionTuning `yaml:"satisfaction"`

	RoomInactivityMinutes int `yaml:"room_inactivity_minutes"`
}

type Zone struct {
	Name          string  `yaml:"name"`
	MinReputation float64 `yaml:"min_reputation"`
	SuccessRate   float64 `yaml:"success_rate"`
}

type ReputationTuning struct {
	CleanSendBonus   float64 `yaml:"clean_send_bonus"`
	RiskPenalty      float64 `yaml:"risk_penalty"`
	TrapActiveFactor float64 `yaml:"trap_active_factor"`
	WarmupBonus      float64 `yaml:"warmup_bonus"`
	WarmupVolumeCap  float64 `yaml:"warmup_volume_cap"`
}

type ComplaintTuning struct {
	SuspendRate float64 `yaml:"suspend_rate"`
}

type SatisfactionTuning struct {
	SpamAnnoyanceFactor float64 `yaml:"spam_annoyance_factor"`
	FalsePositiveFactor float64 `yaml:"false_positive_factor"`
	NeutralDefault      float64 `yaml:"neutral_default"`
}

// Defaults returns a zero-value Tuning; the engine substitutes its own
// built-in values for any knob left at zero.
func Defaults() Tuning {
	return Tuning{RoomInactivityMinutes: 60}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
