package game

import "time"

// EventLogger receives structured game events. Implementations live in
// internal/persistence; the engine never blocks on or inspects the result.
type EventLogger interface {
	WriteEvent(e GameEvent) error
}

type GameEvent struct {
	Room   string         `json:"room"`
	Round  int            `json:"round"`
	Phase  string         `json:"phase"`
	Type   string         `json:"type"`
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (s *GameSession) event(typ string, fields map[string]any) {
	if s.log == nil {
		return
	}
	_ = s.log.WriteEvent(GameEvent{
		Room:   s.RoomCode,
		Round:  s.CurrentRound,
		Phase:  string(s.CurrentPhase),
		Type:   typ,
		At:     time.Now().UTC(),
		Fields: fields,
	})
}
