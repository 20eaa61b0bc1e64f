package handlers

import (
	"github.com/suPer8Hu/research-chat/internal/chat"
	"go.uber.org/zap"
)

type Handler struct {
	ChatSvc *chat.Service
	Log     *zap.Logger
}

func NewHandler(svc *chat.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{ChatSvc: svc, Log: log}
}
