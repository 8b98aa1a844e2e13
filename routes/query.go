package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seehafer/fda-guidance-navigator/internal/logger"
	"github.com/seehafer/fda-guidance-navigator/models"
	"github.com/seehafer/fda-guidance-navigator/services"
	"github.com/seehafer/fda-guidance-navigator/utils"
)

// SetupQueryRoutes wires question answering and session inspection.
func SetupQueryRoutes(router *gin.Engine, answer *services.AnswerService, sessions *services.SessionService) {
	api := router.Group("/api")

	// Synchronous query, the full answer in one response
	api.POST("/query", func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		resp, err := answer.AnswerSync(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	// Streaming query over SSE. Frames arrive as data: {json} records, one
	// sources frame first, then text fragments, then done or error.
	api.POST("/query/stream", func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			utils.RespondWithInternalError(c, "streaming unsupported", nil)
			return
		}

		started := false
		emit := func(event models.StreamEvent) error {
			if !started {
				c.Header("Content-Type", "text/event-stream")
				c.Header("Cache-Control", "no-cache")
				c.Header("Connection", "keep-alive")
				c.Header("X-Accel-Buffering", "no")
				c.Status(http.StatusOK)
				started = true
			}

			payload, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		if err := answer.Answer(c.Request.Context(), req, emit); err != nil {
			// Nothing was streamed yet, a plain JSON error is still possible
			utils.RespondWithDomainError(c, err)
			return
		}
	})

	// Full session transcript
	api.GET("/sessions/:id", func(c *gin.Context) {
		session, err := sessions.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		turns, err := sessions.Transcript(c.Request.Context(), session.ID)
		if err != nil {
			logger.Error("Failed to load transcript", "session_id", session.ID, "error", err)
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session": session,
			"turns":   turns,
		})
	})
}
