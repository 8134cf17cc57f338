package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/lineage-engine/api/handlers"
	"github.com/feichai0017/lineage-engine/api/middleware"
)

// SetupRoutes wires all HTTP routes.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	v1.POST("/documents", h.Lineage.IngestDocument)

	lineage := v1.Group("/lineage")
	{
		lineage.POST("/detect/:documentId", h.Lineage.DetectCandidate)
		lineage.POST("/candidates/:candidateId/confirm", h.Lineage.ConfirmCandidate)
		lineage.POST("/candidates/:candidateId/dismiss", h.Lineage.DismissCandidate)
		lineage.POST("/link", h.Lineage.ManualLink)
		lineage.GET("/diff/:oldId/:newId", h.Lineage.GetDiff)
		lineage.GET("/chain/:documentId", h.Lineage.GetVersionChain)
		lineage.GET("/tasks/:taskId", h.Lineage.GetTaskStatus)
	}
}
