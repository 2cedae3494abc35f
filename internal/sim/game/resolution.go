package game

import "math"

// ExecuteResolution runs the round settlement pipeline and returns the
// results without touching the session. The phase machine is the only
// caller in production; it guarantees exactly one run per
// planning->resolution transition.
func (s *GameSession) ExecuteResolution() *ResolutionResults {
	results := &ResolutionResults{
		Round:              s.CurrentRound,
		ESPResults:         make(map[string]*ESPRoundResult, len(s.Teams)),
		DestinationResults: make(map[string]*DestinationRoundResult, len(s.Destinations)),
	}
	for _, t := range s.Teams {
		results.ESPResults[t.Name] = s.resolveTeam(t)
	}
	s.aggregateDestinations(results)
	return results
}

// resolveTeam computes one team's round, in pipeline order:
// volume -> delivery -> revenue -> reputation -> complaints.
func (s *GameSession) resolveTeam(t *ESPTeam) *ESPRoundResult {
	r := &ESPRoundResult{
		Volume:     VolumeResult{PerClient: map[string]float64{}},
		Delivery:   DeliveryResult{PerDestination: map[string]DestinationDelivery{}},
		Revenue:    RevenueResult{PerClient: map[string]float64{}},
		Reputation: map[string]*ReputationDelta{},
		Complaints: ComplaintResult{PerClient: map[string]float64{}},
	}

	// 1. Volume: active clients only, base volume times every applicable
	// volume modifier.
	for _, clientID := range t.ActiveClients {
		cs := t.ClientStates[clientID]
		if cs == nil || cs.Status != ClientActive {
			continue
		}
		profile, ok := s.cats.Clients.ByID[clientID]
		if !ok {
			continue
		}
		vol := profile.Volume * modifierProduct(cs.VolumeModifiers, s.CurrentRound, cs.FirstActiveRound)
		r.Volume.PerClient[clientID] = vol
		r.Volume.Total += vol
	}

	// 2. Delivery: zone-banded base rate per destination, plus the
	// authentication bonus from owned tech, adjusted by the destination's
	// filtering policy toward this team.
	authBonus := 0.0
	for _, upID := range t.OwnedTechUpgrades {
		if up, ok := s.cats.Upgrades.ByID[upID]; ok {
			authBonus += up.DeliveryBonus
		}
	}
	zoneWeight := map[string]float64{}
	var rateSum, weightSum float64
	for _, d := range s.Destinations {
		rep := s.ReputationAt(t, d.Name)
		band := s.zoneFor(rep)
		rate := band.SuccessRate + authBonus
		switch d.FilteringPolicies[t.Name].Mode {
		case PolicyStrict:
			rate *= 0.90
		case PolicyLenient:
			rate *= 1.05
		}
		if rate > 0.995 {
			rate = 0.995
		}
		if rate < 0 {
			rate = 0
		}
		r.Delivery.PerDestination[d.Name] = DestinationDelivery{Rate: rate, Zone: band.Name}

		w := s.kingdomWeight(d.Name)
		rateSum += rate * w
		weightSum += w
		zoneWeight[band.Name] += w
	}
	if weightSum > 0 {
		r.Delivery.FinalRate = rateSum / weightSum
	}
	r.Delivery.Zone = s.dominantZone(zoneWeight)

	// 3. Revenue: client revenue times the volume modifier product. Not
	// scaled by delivery rate: delivery feeds reputation and complaints,
	// payment terms do not flex per round. Preserved design decision.
	var revenueSum float64
	for _, clientID := range t.ActiveClients {
		cs := t.ClientStates[clientID]
		if cs == nil || cs.Status != ClientActive {
			continue
		}
		profile, ok := s.cats.Clients.ByID[clientID]
		if !ok {
			continue
		}
		rev := profile.Revenue * modifierProduct(cs.VolumeModifiers, s.CurrentRound, cs.FirstActiveRound)
		r.Revenue.PerClient[clientID] = rev
		revenueSum += rev
	}
	r.Revenue.Actual = int(math.Round(revenueSum))

	// 4. Reputation: per destination, tech bonus + volume-weighted client
	// impact + warmup bonus. Raw delta is kept alongside the projected
	// post-application value.
	techRep := 0.0
	for _, upID := range t.OwnedTechUpgrades {
		if up, ok := s.cats.Upgrades.ByID[upID]; ok {
			techRep += up.ReputationBonus
		}
	}
	warmup := s.warmupBonus(t, r.Volume.Total)
	for _, d := range s.Destinations {
		impact := s.clientImpact(t, d, r.Volume)
		raw := techRep + impact + warmup
		old := s.ReputationAt(t, d.Name)
		r.Reputation[d.Name] = &ReputationDelta{
			TechBonus:    techRep,
			ClientImpact: impact,
			WarmupBonus:  warmup,
			Raw:          raw,
			Projected:    clampReputation(math.Round(old + raw)),
		}
	}

	// 5. Complaints: spam rate attenuated by spam-trap modifiers,
	// volume-weighted to a team rate.
	var complaintSum float64
	for clientID, vol := range r.Volume.PerClient {
		cs := t.ClientStates[clientID]
		profile := s.cats.Clients.ByID[clientID]
		adjusted := profile.SpamRate * modifierProduct(cs.SpamTrapModifiers, s.CurrentRound, cs.FirstActiveRound)
		r.Complaints.PerClient[clientID] = adjusted
		if r.Volume.Total > 0 {
			complaintSum += adjusted * vol / r.Volume.Total
		}
	}
	r.Complaints.Rate = complaintSum

	return r
}

// clientImpact is the volume-weighted sum of each active client's effect
// on one destination: a flat clean-send bonus minus a risk and spam-rate
// penalty, amplified by spam-trap exposure.
func (s *GameSession) clientImpact(t *ESPTeam, d *Destination, vol VolumeResult) float64 {
	if vol.Total <= 0 {
		return 0
	}
	var impact float64
	for clientID, v := range vol.PerClient {
		cs := t.ClientStates[clientID]
		profile := s.cats.Clients.ByID[clientID]
		trap := modifierProduct(cs.SpamTrapModifiers, s.CurrentRound, cs.FirstActiveRound)
		if d.SpamTrapActive != nil {
			trap *= s.cfg.TrapActiveFactor
		}
		per := s.cfg.CleanSendBonus - profile.Risk*profile.SpamRate*s.cfg.RiskPenalty*trap
		impact += per * v / vol.Total
	}
	return impact
}

// warmupBonus rewards teams still ramping a fresh client under the warmup
// volume cap.
func (s *GameSession) warmupBonus(t *ESPTeam, totalVolume float64) float64 {
	if totalVolume > s.cfg.WarmupVolumeCap {
		return 0
	}
	for _, clientID := range t.ActiveClients {
		cs := t.ClientStates[clientID]
		if cs == nil || cs.Status != ClientActive || cs.FirstActiveRound == nil {
			continue
		}
		if *cs.FirstActiveRound == s.CurrentRound {
			return s.cfg.WarmupBonus
		}
	}
	return 0
}

func (s *GameSession) zoneFor(reputation float64) ZoneBand {
	for _, z := range s.cfg.Zones {
		if reputation >= z.MinReputation {
			return z
		}
	}
	if len(s.cfg.Zones) > 0 {
		return s.cfg.Zones[len(s.cfg.Zones)-1]
	}
	return ZoneBand{Name: "good", SuccessRate: 0.9}
}

// dominantZone picks the zone holding the most kingdom weight; ties go to
// the better band.
func (s *GameSession) dominantZone(zoneWeight map[string]float64) string {
	best := ""
	bestW := -1.0
	for _, z := range s.cfg.Zones {
		if w, ok := zoneWeight[z.Name]; ok && w > bestW {
			best = z.Name
			bestW = w
		}
	}
	return best
}

func (s *GameSession) kingdomWeight(destination string) float64 {
	if w, ok := s.cfg.KingdomWeights[destination]; ok {
		return w
	}
	if len(s.Destinations) > 0 {
		return 1.0 / float64(len(s.Destinations))
	}
	return 1.0
}

// aggregateDestinations computes each destination's satisfaction from the
// teams' delivered, blocked and false-positive volumes at that kingdom.
// ESP-facing results never see these numbers.
func (s *GameSession) aggregateDestinations(results *ResolutionResults) {
	for _, d := range s.Destinations {
		share := s.kingdomWeight(d.Name)
		agg := &DestinationRoundResult{}
		for _, t := range s.Teams {
			res := results.ESPResults[t.Name]
			if res == nil {
				continue
			}
			inbound := res.Volume.Total * share
			if inbound <= 0 {
				continue
			}
			rate := res.Delivery.PerDestination[d.Name].Rate
			delivered := inbound * rate
			spam := delivered * res.Complaints.Rate
			blocked := inbound - delivered
			// Better sender authentication sharpens filtering: fewer
			// legitimate messages caught in the block.
			falsePos := blocked * (1 - res.Complaints.Rate) * (1 - 0.2*float64(d.AuthenticationLevel))
			if falsePos < 0 {
				falsePos = 0
			}
			agg.Inbound += inbound
			agg.Delivered += delivered
			agg.Blocked += blocked
			agg.SpamDelivered += spam
			agg.FalsePositives += falsePos
		}
		if agg.Inbound <= 0 {
			agg.AggregatedSatisfaction = s.cfg.NeutralSatisfaction
		} else {
			good := agg.Delivered - agg.SpamDelivered
			score := 100 * (good - s.cfg.SpamAnnoyanceFactor*agg.SpamDelivered - s.cfg.FalsePositiveFactor*agg.FalsePositives) / agg.Inbound
			agg.AggregatedSatisfaction = clampReputation(math.Round(score))
		}
		results.DestinationResults[d.Name] = agg
	}
}
