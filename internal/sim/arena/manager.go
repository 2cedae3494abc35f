package arena

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"mailcraft.ai/internal/sim/catalogs"
	"mailcraft.ai/internal/sim/game"
)

// ErrSessionNotFound is the terminal error for a missing room: callers
// surface it directly, there are no retry semantics.
var ErrSessionNotFound = errors.New("session_not_found")

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Room pairs one session with its lock and its subscriber set. Every
// engine call for the room runs under the mutex, which gives the engine
// the single-writer discipline it documents.
type Room struct {
	mu           sync.Mutex
	session      *game.GameSession
	lastActivity time.Time
	subscribers  map[string]chan []byte
}

// Manager is the room-code-keyed registry of live sessions.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	cfg    game.Config
	cats   *catalogs.Catalogs
	logger game.EventLogger
	expiry time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewManager(cfg game.Config, cats *catalogs.Catalogs, logger game.EventLogger, expiry time.Duration) *Manager {
	m := &Manager{
		rooms:  map[string]*Room{},
		cfg:    cfg,
		cats:   cats,
		logger: logger,
		expiry: expiry,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:   make(chan struct{}),
	}
	return m
}

// Start runs the inactivity sweep until Close.
func (m *Manager) Start() {
	if m.expiry <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.sweep(time.Now())
			}
		}
	}()
}

func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, r := range m.rooms {
		r.mu.Lock()
		idle := now.Sub(r.lastActivity)
		empty := len(r.subscribers) == 0
		r.mu.Unlock()
		if empty && idle > m.expiry {
			delete(m.rooms, code)
		}
	}
}

// CreateRoom allocates a fresh session under a new room code.
func (m *Manager) CreateRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		code := m.newCode(5)
		if _, taken := m.rooms[code]; taken {
			continue
		}
		sess := game.NewSession(code, m.cfg, m.cats)
		if m.logger != nil {
			sess.SetEventLogger(m.logger)
		}
		m.rooms[code] = &Room{
			session:      sess,
			lastActivity: time.Now(),
			subscribers:  map[string]chan []byte{},
		}
		return code
	}
}

func (m *Manager) newCode(n int) string {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = roomCodeAlphabet[m.rng.Intn(len(roomCodeAlphabet))]
	}
	return string(b)
}

func (m *Manager) room(code string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[code]
}

// Exists reports whether a room code is live.
func (m *Manager) Exists(code string) bool {
	return m.room(code) != nil
}

// Touch refreshes the room's activity clock.
func (m *Manager) Touch(code string) {
	r := m.room(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

// Delete drops a room and closes its subscriber channels.
func (m *Manager) Delete(code string) {
	m.mu.Lock()
	r := m.rooms[code]
	delete(m.rooms, code)
	m.mu.Unlock()
	if r == nil {
		return
	}
	r.mu.Lock()
	for _, ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = map[string]chan []byte{}
	r.mu.Unlock()
}

// With runs fn with exclusive access to the room's session, refreshing
// activity. The room lock serializes every engine call for the room.
func (m *Manager) With(code string, fn func(*game.GameSession) error) error {
	r := m.room(code)
	if r == nil {
		return ErrSessionNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now()
	return fn(r.session)
}

// Subscribe registers an outbound channel for a connected player.
func (m *Manager) Subscribe(code, playerID string) (chan []byte, error) {
	r := m.room(code)
	if r == nil {
		return nil, ErrSessionNotFound
	}
	ch := make(chan []byte, 64)
	r.mu.Lock()
	r.subscribers[playerID] = ch
	r.lastActivity = time.Now()
	r.mu.Unlock()
	return ch, nil
}

func (m *Manager) Unsubscribe(code, playerID string) {
	r := m.room(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	if ch, ok := r.subscribers[playerID]; ok {
		delete(r.subscribers, playerID)
		close(ch)
	}
	r.mu.Unlock()
}

// Broadcast fans a payload out to every subscriber in the room. Slow
// consumers are skipped, never waited on: fan-out must not block or
// reorder the engine.
func (m *Manager) Broadcast(code string, payload any) {
	r := m.room(code)
	if r == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- b:
		default:
		}
	}
}

// Subscribers lists the player IDs currently subscribed to the room.
func (m *Manager) Subscribers(code string) []string {
	r := m.room(code)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subscribers))
	for id := range r.subscribers {
		out = append(out, id)
	}
	return out
}

// Send delivers a payload to one subscriber only.
func (m *Manager) Send(code, playerID string, payload any) {
	r := m.room(code)
	if r == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subscribers[playerID]; ok {
		select {
		case ch <- b:
		default:
		}
	}
}

// RoomCount is for diagnostics endpoints.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Codes lists live room codes.
func (m *Manager) Codes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		out = append(out, code)
	}
	return out
}

func (m *Manager) String() string {
	return fmt.Sprintf("arena(%d rooms)", m.RoomCount())
}
