package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nisheshk/durable-chatbot/internal/common"
	"github.com/nisheshk/durable-chatbot/internal/config"
	"github.com/nisheshk/durable-chatbot/internal/httpapi/handlers"
	"github.com/nisheshk/durable-chatbot/internal/httpapi/middleware"
	"github.com/nisheshk/durable-chatbot/internal/queue"
	"github.com/nisheshk/durable-chatbot/internal/store"
)

func NewRouter(cfg config.Config, gw *store.Gateway, pub *queue.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(cfg, gw, pub)

	r.GET("/ping", h.Ping)

	r.POST("/conversations/:conversation_id/messages", h.SubmitMessage)
	r.GET("/conversations/:conversation_id/turns", h.ListTurns)
	r.GET("/conversations/:conversation_id/summary", h.GetSummary)

	return r
}
