package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mailcraft.ai/internal/protocol"
	"mailcraft.ai/internal/sim/arena"
	"mailcraft.ai/internal/sim/catalogs"
	"mailcraft.ai/internal/sim/game"
)

type Server struct {
	arena *arena.Manager
	cats  *catalogs.Catalogs
	log   *log.Logger
	index Index

	upgrader websocket.Upgrader

	// Role per subscriber, for role-filtered state broadcasts.
	mu    sync.Mutex
	roles map[string]map[string]string // room code -> player id -> role
}

// SetIndex attaches the optional secondary index.
func (s *Server) SetIndex(idx Index) { s.index = idx }

func NewServer(a *arena.Manager, cats *catalogs.Catalogs, logger *log.Logger) *Server {
	s := &Server{
		arena: a,
		cats:  cats,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		roles: map[string]map[string]string{},
	}
	return s
}

func (s *Server) setRole(code, playerID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm := s.roles[code]
	if rm == nil {
		rm = map[string]string{}
		s.roles[code] = rm
	}
	rm[playerID] = role
}

func (s *Server) dropRole(code, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rm := s.roles[code]; rm != nil {
		delete(rm, playerID)
		if len(rm) == 0 {
			delete(s.roles, code)
		}
	}
}

func (s *Server) roleOf(code, playerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[code][playerID]
}

// conn state established during handshake.
type client struct {
	playerID string
	roomCode string
	role     string
	teamName string
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c, out := s.handshake(conn)
		if c == nil {
			return
		}
		defer s.leave(c)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeAction {
				continue
			}
			var act protocol.ActionMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				continue
			}
			s.dispatch(c, act)
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*client, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil, nil
	}
	code := strings.ToUpper(strings.TrimSpace(hello.RoomCode))
	if !s.arena.Exists(code) {
		closeWith(conn, protocol.ErrRoomNotFound)
		return nil, nil
	}

	role := hello.Role
	switch role {
	case protocol.RoleESP, protocol.RoleDestination, protocol.RoleFacilitator, protocol.RoleObserver:
	default:
		closeWith(conn, protocol.ErrProtoBadRequest)
		return nil, nil
	}
	if (role == protocol.RoleESP || role == protocol.RoleDestination) && hello.TeamName == "" {
		closeWith(conn, protocol.ErrProtoBadRequest)
		return nil, nil
	}

	c := &client{
		playerID: uuid.NewString(),
		roomCode: code,
		role:     role,
		teamName: hello.TeamName,
	}

	joinErr := s.arena.With(code, func(sess *game.GameSession) error {
		switch role {
		case protocol.RoleESP:
			t := sess.Team(c.teamName)
			if t == nil {
				t = sess.AddTeam(c.teamName)
			}
			t.PlayerCount++
		case protocol.RoleDestination:
			d := sess.Destination(c.teamName)
			if d == nil {
				d = sess.AddDestination(c.teamName)
			}
			d.PlayerCount++
		}
		return nil
	})
	if joinErr != nil {
		closeWith(conn, protocol.ErrRoomNotFound)
		return nil, nil
	}

	out, err := s.arena.Subscribe(code, c.playerID)
	if err != nil {
		return nil, nil
	}
	s.setRole(code, c.playerID, role)

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        c.playerID,
		RoomCode:        code,
		Role:            role,
		TeamName:        c.teamName,
		Catalogs: protocol.CatalogDigests{
			ClientsDigest:   s.cats.Clients.Digest,
			UpgradesDigest:  s.cats.Upgrades.Digest,
			ToolsDigest:     s.cats.Tools.Digest,
			IncidentsDigest: s.cats.Incidents.Digest,
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.dropRole(code, c.playerID)
		s.arena.Unsubscribe(code, c.playerID)
		return nil, nil
	}

	s.broadcastState(code)
	return c, out
}

func (s *Server) leave(c *client) {
	s.dropRole(c.roomCode, c.playerID)
	s.arena.Unsubscribe(c.roomCode, c.playerID)
	_ = s.arena.With(c.roomCode, func(sess *game.GameSession) error {
		switch c.role {
		case protocol.RoleESP:
			if t := sess.Team(c.teamName); t != nil && t.PlayerCount > 0 {
				t.PlayerCount--
			}
		case protocol.RoleDestination:
			if d := sess.Destination(c.teamName); d != nil && d.PlayerCount > 0 {
				d.PlayerCount--
			}
		}
		return nil
	})
	s.broadcastState(c.roomCode)
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
