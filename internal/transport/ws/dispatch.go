package ws

import (
	"mailcraft.ai/internal/protocol"
	"mailcraft.ai/internal/sim/arena"
	"mailcraft.ai/internal/sim/game"
)

// Index receives settled rounds and triggered incidents for offline
// inspection. Implemented by indexdb.SQLiteIndex; nil disables indexing.
type Index interface {
	RecordResolution(room string, results *game.ResolutionResults)
	RecordIncident(room string, rec game.IncidentRecord)
}

// actionResult is the per-connection reply to an ACTION message.
type actionResult struct {
	Type    string   `json:"type"`
	Event   string   `json:"event"`
	ID      string   `json:"id"`
	Op      string   `json:"op"`
	OK      bool     `json:"ok"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

func (s *Server) dispatch(c *client, act protocol.ActionMsg) {
	res := actionResult{Type: protocol.TypeEvent, Event: "ACTION_RESULT", ID: act.ID, Op: act.Op}

	var settled *game.ResolutionResults
	var triggered *game.IncidentRecord

	err := s.arena.With(c.roomCode, func(sess *game.GameSession) error {
		if sess.Paused && act.Op != protocol.OpResumeGame {
			res.Code = protocol.ErrNotAllowed
			res.Message = "game is paused"
			return nil
		}
		switch act.Op {
		// ESP team operations.
		case protocol.OpPurchaseTech:
			if !s.requireRole(c, &res, protocol.RoleESP) {
				return nil
			}
			fill(&res, sess.PurchaseTech(c.teamName, act.UpgradeID))
		case protocol.OpAcquireClient:
			if !s.requireRole(c, &res, protocol.RoleESP) {
				return nil
			}
			fill(&res, sess.AcquireClientForTeam(c.teamName, act.ClientID))
		case protocol.OpOnboardClient:
			if !s.requireRole(c, &res, protocol.RoleESP) {
				return nil
			}
			fill(&res, sess.OnboardClient(c.teamName, act.ClientID))
		case protocol.OpPauseClient:
			if !s.requireRole(c, &res, protocol.RoleESP) {
				return nil
			}
			fill(&res, sess.PauseClient(c.teamName, act.ClientID))
		case protocol.OpResumeClient:
			if !s.requireRole(c, &res, protocol.RoleESP) {
				return nil
			}
			fill(&res, sess.ResumeClient(c.teamName, act.ClientID))
		case protocol.OpSetChoice:
			if !s.requireRole(c, &res, protocol.RoleESP) {
				return nil
			}
			ch := sess.SetPendingChoice(c.teamName, act.IncidentID, act.ChoiceID)
			res.OK, res.Code, res.Message = ch.OK, ch.Code, ch.Message

		// Destination operations.
		case protocol.OpPurchaseTool:
			if !s.requireRole(c, &res, protocol.RoleDestination) {
				return nil
			}
			fill(&res, sess.PurchaseTool(c.teamName, act.ToolID))
		case protocol.OpSetPolicy:
			if !s.requireRole(c, &res, protocol.RoleDestination) {
				return nil
			}
			fill(&res, sess.SetFilteringPolicy(c.teamName, act.ESPName, act.PolicyMode))
		case protocol.OpStartVote:
			if !s.requireRole(c, &res, protocol.RoleDestination) {
				return nil
			}
			fill(&res, sess.StartInvestigationVote(c.teamName, act.ESPName))

		// Shared lock-in: routed by role.
		case protocol.OpLockIn:
			switch c.role {
			case protocol.RoleESP:
				fill(&res, sess.LockIn(c.teamName))
			case protocol.RoleDestination:
				fill(&res, sess.LockInDestination(c.teamName))
			default:
				res.Code = protocol.ErrNotAllowed
				res.Message = "lock-in requires a team role"
			}

		// Facilitator operations.
		case protocol.OpTriggerIncident:
			if !s.requireRole(c, &res, protocol.RoleFacilitator) {
				return nil
			}
			tr := sess.TriggerIncident(act.IncidentID, act.TeamName)
			res.OK, res.Code, res.Message = tr.OK, tr.Code, tr.Message
			if tr.OK {
				rec := tr.Record
				triggered = &rec
			}
		case protocol.OpApplyIncident:
			if !s.requireRole(c, &res, protocol.RoleFacilitator) {
				return nil
			}
			// The trigger's recorded team and client are binding; the
			// message's echo of them is ignored.
			rec, ok := sess.IncidentRecordFor(act.IncidentID)
			if !ok {
				res.Code = protocol.ErrIncidentNotFound
				res.Message = "incident has not been triggered"
				return nil
			}
			er := sess.ApplyIncidentEffects(act.IncidentID, rec.TeamName, rec.SelectedClient)
			res.OK = er.Success
			if !er.Success {
				res.Code = protocol.ErrInternal
				res.Message = er.Error
			}
		case protocol.OpAdvancePhase, protocol.OpForceEndPhase:
			if !s.requireRole(c, &res, protocol.RoleFacilitator) {
				return nil
			}
			pr := sess.AdvancePhase(act.Op == protocol.OpForceEndPhase)
			res.OK, res.Code, res.Message = pr.OK, pr.Code, pr.Message
			settled = pr.Results
		case protocol.OpPauseGame, protocol.OpResumeGame:
			if !s.requireRole(c, &res, protocol.RoleFacilitator) {
				return nil
			}
			sess.SetPaused(act.Op == protocol.OpPauseGame)
			res.OK = true

		default:
			res.Code = protocol.ErrProtoBadRequest
			res.Message = "unknown op: " + act.Op
		}
		return nil
	})
	if err == arena.ErrSessionNotFound {
		res.Code = protocol.ErrRoomNotFound
		res.Message = "room is gone"
	}

	if s.index != nil {
		if triggered != nil {
			s.index.RecordIncident(c.roomCode, *triggered)
		}
		if settled != nil {
			s.index.RecordResolution(c.roomCode, settled)
		}
	}

	s.arena.Send(c.roomCode, c.playerID, res)
	if res.OK {
		s.broadcastState(c.roomCode)
	}
}

func fill(res *actionResult, r game.ActionResult) {
	res.OK, res.Code, res.Message, res.Missing = r.OK, r.Code, r.Message, r.Missing
}

func (s *Server) requireRole(c *client, res *actionResult, role string) bool {
	if c.role == role {
		return true
	}
	res.Code = protocol.ErrNotAllowed
	res.Message = "op requires role " + role
	return false
}
