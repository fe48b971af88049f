package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/inkwise/inkwise/internal/generation/domain"
)

type GenerateRequest struct {
	Prompt string `json:"prompt"`
	PostID string `json:"post_id"`
}

type GenerateFastResponse struct {
	Content string `json:"content"`
}

// Generate streams the completion as plain text, one fragment per flush.
// Errors before the first byte map to a JSON status; once the stream has
// started the body is the only channel left, so upstream failures arrive
// in-band and the response simply ends.
func (s *Server) Generate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	genReq := generationdomain.Request{UserID: userID, Prompt: req.Prompt}
	if req.PostID != "" {
		postID, err := parseID(req.PostID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		genReq.TranscriptID = &postID
	}

	wrote := false
	result, err := s.generationSvc.GenerateStream(c.Request.Context(), genReq, func(fragment string) error {
		if !wrote {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			wrote = true
		}
		if _, werr := c.Writer.WriteString(fragment); werr != nil {
			return werr
		}
		c.Writer.Flush()
		return nil
	})

	if err != nil && !wrote {
		AbortWithError(c, err)
		return
	}
	if result != nil && !wrote {
		// Upstream finished without emitting anything.
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Status(http.StatusOK)
	}
}

func (s *Server) GenerateFast(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.generationSvc.GenerateOnce(c.Request.Context(), generationdomain.Request{
		UserID: userID,
		Prompt: req.Prompt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, GenerateFastResponse{Content: result.Content})
}
