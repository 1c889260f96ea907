package identity

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NWB-044/movietime-gather/internal/session"
	"github.com/NWB-044/movietime-gather/pkg/response"
)

// AdminLoginRequest is the body for POST /auth/admin.
type AdminLoginRequest struct {
	Nickname string `json:"nickname" binding:"required"`
	Passcode string `json:"passcode" binding:"required"`
}

// ViewerLoginRequest is the body for POST /auth/viewer.
type ViewerLoginRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Nickname  string `json:"nickname" binding:"required"`
}

// Handler issues participant tokens. The admin path runs the credential
// gate and creates (or returns) the admin's session; the viewer path only
// needs a live session and a display name.
type Handler struct {
	manager  *session.Manager
	verifier Verifier
	tokens   *TokenService
	store    Store
	log      *zap.Logger
}

// NewHandler creates an identity handler.
func NewHandler(manager *session.Manager, verifier Verifier, tokens *TokenService, store Store, log *zap.Logger) *Handler {
	return &Handler{manager: manager, verifier: verifier, tokens: tokens, store: store, log: log}
}

// AdminLogin handles POST /auth/admin.
func (h *Handler) AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.verifier.VerifyAdmin(req.Nickname, req.Passcode); err != nil {
		h.log.Warn("admin login rejected", zap.String("nickname", req.Nickname))
		response.Unauthorized(c, "invalid credentials")
		return
	}

	ctx := c.Request.Context()
	rec, err := h.store.FindAdmin(ctx, req.Nickname)
	if err != nil {
		response.Internal(c, "identity store unavailable")
		return
	}
	if rec != nil {
		if _, alive := h.manager.Get(rec.SessionID); !alive {
			// The record outlived its session; drop it before re-issuing.
			_ = h.store.Delete(ctx, rec.ParticipantID)
			rec = nil
		}
	}
	if rec == nil {
		// A live session may still exist even when the record expired first.
		sess, ok := h.manager.FindByAdminName(req.Nickname)
		if !ok {
			sess = h.manager.Create(req.Nickname)
		}
		rec = &Record{
			ParticipantID: uuid.New(),
			SessionID:     sess.ID,
			Role:          session.RoleAdmin,
			DisplayName:   req.Nickname,
		}
		if err := h.store.Save(ctx, *rec); err != nil {
			if !ok {
				sess.Close("identity store unavailable")
			}
			response.Internal(c, "identity store unavailable")
			return
		}
	}

	token, err := h.tokens.Issue(*rec)
	if err != nil {
		response.Internal(c, "token issue failed")
		return
	}
	response.OK(c, gin.H{
		"token":          token,
		"session_id":     rec.SessionID,
		"participant_id": rec.ParticipantID,
	})
}

// ViewerLogin handles POST /auth/viewer.
func (h *Handler) ViewerLogin(c *gin.Context) {
	var req ViewerLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if _, ok := h.manager.Get(sessionID); !ok {
		response.NotFound(c, "session not found")
		return
	}

	rec := Record{
		ParticipantID: uuid.New(),
		SessionID:     sessionID,
		Role:          session.RoleViewer,
		DisplayName:   req.Nickname,
	}
	if err := h.store.Save(c.Request.Context(), rec); err != nil {
		response.Internal(c, "identity store unavailable")
		return
	}
	token, err := h.tokens.Issue(rec)
	if err != nil {
		response.Internal(c, "token issue failed")
		return
	}
	response.OK(c, gin.H{
		"token":          token,
		"session_id":     rec.SessionID,
		"participant_id": rec.ParticipantID,
	})
}
