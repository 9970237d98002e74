package httpapi

import (
	"github.com/gin-gonic/gin"

	"reception-agent-go/internal/auth"
	"reception-agent-go/internal/logger"
)

// NewRouter wires the public and token-protected routes.
func NewRouter(h Handlers, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.MaxMultipartMemory = MaxUploadBytes

	r.GET("/healthz", h.Health)
	r.POST("/login", h.Login)

	v1 := r.Group("/v1", auth.RequireToken(h.Gate))
	{
		v1.POST("/sessions", h.CreateSession)
		v1.GET("/sessions/:id", h.GetSession)
		v1.POST("/sessions/:id/retry", h.RetrySession)
		v1.PATCH("/sessions/:id/draft", h.EditDraft)
		v1.POST("/sessions/:id/confirm", h.ConfirmSession)
		v1.DELETE("/sessions/:id", h.DiscardSession)

		v1.GET("/calls", h.ListCalls)
		v1.GET("/calls/stats", h.Stats)
		v1.GET("/calls/export", h.Export)
		v1.GET("/calls/:id", h.GetCall)
		v1.DELETE("/calls/:id", h.DeleteCall)
	}
	return r
}
