package game

// ResolutionResults is the immutable settlement of one round. Produced
// once by ExecuteResolution, folded into the session once by
// ApplyResolution, then archived in ResolutionHistory.
type ResolutionResults struct {
	Round              int
	ESPResults         map[string]*ESPRoundResult
	DestinationResults map[string]*DestinationRoundResult
}

// ESPRoundResult is the team-facing breakdown. It deliberately carries no
// satisfaction number: satisfaction is a destination-only metric and the
// visibility boundary is part of the game design.
type ESPRoundResult struct {
	Volume     VolumeResult
	Delivery   DeliveryResult
	Revenue    RevenueResult
	Reputation map[string]*ReputationDelta // destination -> delta breakdown
	Complaints ComplaintResult
}

type VolumeResult struct {
	Total     float64
	PerClient map[string]float64
}

type DeliveryResult struct {
	FinalRate      float64 // kingdom-weight blended
	Zone           string  // dominant zone label
	PerDestination map[string]DestinationDelivery
}

type DestinationDelivery struct {
	Rate float64
	Zone string
}

type RevenueResult struct {
	Actual    int
	PerClient map[string]float64
}

// ReputationDelta keeps the raw per-destination delta alongside the
// projected post-application value (add, then round, then clamp).
type ReputationDelta struct {
	TechBonus    float64
	ClientImpact float64
	WarmupBonus  float64
	Raw          float64
	Projected    float64
}

type ComplaintResult struct {
	Rate      float64
	PerClient map[string]float64
}

type DestinationRoundResult struct {
	Inbound                float64
	Delivered              float64
	Blocked                float64
	SpamDelivered          float64
	FalsePositives         float64
	AggregatedSatisfaction float64
}
