package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/research-chat/internal/chat"
	"github.com/suPer8Hu/research-chat/internal/common"
	"github.com/suPer8Hu/research-chat/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

type sessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"message_count"`
	InFlight     bool      `json:"in_flight"`
}

func (h *Handler) ListSessions(c *gin.Context) {
	sessions := h.ChatSvc.Store().ListSessions()
	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{
			ID:           s.ID,
			Title:        s.Title,
			UpdatedAt:    s.UpdatedAt,
			MessageCount: len(s.Messages),
			InFlight:     h.ChatSvc.InFlight(s.ID),
		})
	}
	common.OK(c, gin.H{
		"active_session_id": h.ChatSvc.Store().ActiveSessionID(),
		"sessions":          out,
	})
}

func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.ChatSvc.Store().CreateSession(c.Request.Context())
	common.OK(c, gin.H{"session": sess})
}

func (h *Handler) GetSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	sess, ok := h.ChatSvc.Store().Session(sessionID)
	if !ok {
		common.Fail(c, http.StatusNotFound, 40404, "session not found")
		return
	}
	common.OK(c, gin.H{
		"session":   sess,
		"in_flight": h.ChatSvc.InFlight(sessionID),
		"active":    h.ChatSvc.Store().ActiveSessionID() == sessionID,
	})
}

func (h *Handler) SelectSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if !h.ChatSvc.Store().SelectSession(sessionID) {
		common.Fail(c, http.StatusNotFound, 40404, "session not found")
		return
	}
	common.OK(c, gin.H{"active_session_id": sessionID})
}

func (h *Handler) SessionStatus(c *gin.Context) {
	sessionID := c.Param("session_id")
	if _, ok := h.ChatSvc.Store().Session(sessionID); !ok {
		common.Fail(c, http.StatusNotFound, 40404, "session not found")
		return
	}
	common.OK(c, gin.H{
		"session_id": sessionID,
		"state":      h.ChatSvc.State(sessionID),
		"in_flight":  h.ChatSvc.InFlight(sessionID),
	})
}

type sendMessageReq struct {
	Message string `json:"message"`
}

// SendToSession sends to the session in the path.
func (h *Handler) SendToSession(c *gin.Context) {
	h.send(c, c.Param("session_id"))
}

// SendToActive sends to the active session.
func (h *Handler) SendToActive(c *gin.Context) {
	h.send(c, h.ChatSvc.Store().ActiveSessionID())
}

func (h *Handler) send(c *gin.Context, sessionID string) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	res, err := h.ChatSvc.SendTo(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		h.sendError(c, sessionID, err)
		return
	}
	common.OK(c, gin.H{"result": res})
}

func (h *Handler) sendError(c *gin.Context, sessionID string, err error) {
	if chat.IsNotFound(err) {
		common.Fail(c, http.StatusNotFound, 40404, "session not found")
		return
	}
	h.Log.Error("send failed",
		zap.String("session_id", sessionID),
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.Error(err),
	)
	common.Fail(c, http.StatusInternalServerError, 50001, "failed to send message")
}

// SendToSessionStream streams reply deltas as server-sent events and ends
// with a "done" event carrying the send result.
func (h *Handler) SendToSessionStream(c *gin.Context) {
	sessionID := c.Param("session_id")

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if _, ok := h.ChatSvc.Store().Session(sessionID); !ok {
		common.Fail(c, http.StatusNotFound, 40404, "session not found")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, 50003, "streaming not supported")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	res, err := h.ChatSvc.SendTo(c.Request.Context(), sessionID, req.Message, chat.WithOnChunk(func(delta string) {
		writeJSON("chunk", gin.H{"type": "chunk", "delta": delta})
	}))
	if err != nil {
		h.Log.Warn("stream send failed", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON("error", gin.H{"type": "error", "message": err.Error()})
		return
	}
	writeJSON("done", gin.H{"type": "done", "result": res})
}
