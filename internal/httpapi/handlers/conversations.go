package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nisheshk/durable-chatbot/internal/common"
	"github.com/nisheshk/durable-chatbot/internal/queue"
)

const (
	maxConversationIDLen = 64
	maxMessageLen        = 8192
)

// Message is intentionally not required: an empty message is a valid
// submission and gets the clarification reply downstream.
type submitMessageReq struct {
	Message string `json:"message"`
}

// SubmitMessage enqueues one user message (fire-and-observe). The reply is
// retrieved by polling the turn list; a submit never blocks on the model.
func (h *Handler) SubmitMessage(c *gin.Context) {
	conversationID := strings.TrimSpace(c.Param("conversation_id"))
	if conversationID == "" || len(conversationID) > maxConversationIDLen {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid conversation_id")
		return
	}

	var req submitMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if len(req.Message) > maxMessageLen {
		common.Fail(c, http.StatusBadRequest, 10003, "message too long")
		return
	}

	submitID, err := common.NewULID()
	if err != nil {
		log.Printf("[SubmitMessage] NewULID failed conversation_id=%s err=%v", conversationID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	sub := queue.Submission{
		SubmitID:       submitID,
		ConversationID: conversationID,
		Text:           req.Message,
	}
	if err := h.Queue.PublishSubmission(c.Request.Context(), sub); err != nil {
		log.Printf("[SubmitMessage] publish failed conversation_id=%s submit_id=%s err=%v", conversationID, submitID, err)
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}

	common.Ok(c, gin.H{
		"submit_id":       submitID,
		"conversation_id": conversationID,
		"status":          "enqueued",
	})
}

// ListTurns is the poll read path: turns with seq > since, ascending. Callers
// re-poll until an assistant turn past their last-seen seq appears.
func (h *Handler) ListTurns(c *gin.Context) {
	conversationID := strings.TrimSpace(c.Param("conversation_id"))
	if conversationID == "" || len(conversationID) > maxConversationIDLen {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid conversation_id")
		return
	}

	var since uint64
	if v := c.Query("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, "invalid since")
			return
		}
		since = n
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	turns, err := h.Gateway.ListTurnsSince(c.Request.Context(), conversationID, since, limit)
	if err != nil {
		log.Printf("[ListTurns] conversation_id=%s err=%v", conversationID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to list turns")
		return
	}

	nextSince := since
	if len(turns) > 0 {
		nextSince = turns[len(turns)-1].Seq
	}
	common.Ok(c, gin.H{
		"turns":      turns,
		"next_since": nextSince,
	})
}

// GetSummary exposes the rolling summary for a conversation.
func (h *Handler) GetSummary(c *gin.Context) {
	conversationID := strings.TrimSpace(c.Param("conversation_id"))
	if conversationID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid conversation_id")
		return
	}

	summary, found, err := h.Gateway.LoadSummary(c.Request.Context(), conversationID)
	if err != nil {
		log.Printf("[GetSummary] conversation_id=%s err=%v", conversationID, err)
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to load summary")
		return
	}
	if !found {
		common.Fail(c, http.StatusNotFound, 40401, "summary not found")
		return
	}
	common.Ok(c, gin.H{
		"conversation_id": conversationID,
		"summary":         summary,
	})
}
