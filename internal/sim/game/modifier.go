package game

// RoundScope says which rounds a modifier applies to. The external data
// format encodes "first active round only" as a [-1] round list; that
// sentinel is decoded here, once, at construction.
type RoundScope struct {
	FirstActiveRoundOnly bool
	Rounds               []int
}

// Modifier is a time-scoped multiplicative adjustment to a client's volume
// or spam-trap exposure. Modifiers are append-only; applicability is
// re-evaluated from the scope every round, never from elapsed-time
// bookkeeping.
type Modifier struct {
	ID         string
	Source     string
	Multiplier float64
	Scope      RoundScope
}

// NewModifier decodes the external round-list encoding: [-1] means "only
// the round the client first became active".
func NewModifier(id, source string, multiplier float64, rounds []int) Modifier {
	m := Modifier{ID: id, Source: source, Multiplier: multiplier}
	if len(rounds) == 1 && rounds[0] == -1 {
		m.Scope.FirstActiveRoundOnly = true
		return m
	}
	m.Scope.Rounds = append(m.Scope.Rounds, rounds...)
	return m
}

// EncodeRounds is the inverse of NewModifier, used when persisting.
func (m Modifier) EncodeRounds() []int {
	if m.Scope.FirstActiveRoundOnly {
		return []int{-1}
	}
	out := make([]int, len(m.Scope.Rounds))
	copy(out, m.Scope.Rounds)
	return out
}

// AppliesTo reports whether the modifier is in force for the given round.
// firstActiveRound is the client's (nil if never activated).
func (m Modifier) AppliesTo(round int, firstActiveRound *int) bool {
	if m.Scope.FirstActiveRoundOnly {
		return firstActiveRound != nil && *firstActiveRound == round
	}
	for _, r := range m.Scope.Rounds {
		if r == round {
			return true
		}
	}
	return false
}

// modifierProduct multiplies every applicable modifier for the round.
func modifierProduct(mods []Modifier, round int, firstActiveRound *int) float64 {
	p := 1.0
	for _, m := range mods {
		if m.AppliesTo(round, firstActiveRound) {
			p *= m.Multiplier
		}
	}
	return p
}

func (cs *ClientState) hasModifierFromSource(source string) bool {
	for _, m := range cs.VolumeModifiers {
		if m.Source == source {
			return true
		}
	}
	for _, m := range cs.SpamTrapModifiers {
		if m.Source == source {
			return true
		}
	}
	return false
}
