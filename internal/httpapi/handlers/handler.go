package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/nisheshk/durable-chatbot/internal/common"
	"github.com/nisheshk/durable-chatbot/internal/config"
	"github.com/nisheshk/durable-chatbot/internal/queue"
	"github.com/nisheshk/durable-chatbot/internal/store"
)

// SubmitQueue is the publish side of the submit transport.
type SubmitQueue interface {
	PublishSubmission(ctx context.Context, sub queue.Submission) error
}

type Handler struct {
	Cfg     config.Config
	Gateway *store.Gateway
	Queue   SubmitQueue
}

func NewHandler(cfg config.Config, gw *store.Gateway, pub SubmitQueue) *Handler {
	return &Handler{Cfg: cfg, Gateway: gw, Queue: pub}
}

func (h *Handler) Ping(c *gin.Context) {
	common.Ok(c, gin.H{"pong": true})
}
