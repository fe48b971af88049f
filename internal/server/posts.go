package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	transcriptdomain "github.com/inkwise/inkwise/internal/transcript/domain"
)

type PostSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PostMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type PostDetail struct {
	PostSummary
	Messages []PostMessage `json:"messages"`
}

func postSummary(t transcriptdomain.Transcript) PostSummary {
	return PostSummary{
		ID:        t.ID.String(),
		Title:     t.Title,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (s *Server) ListPosts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	transcripts, err := s.transcriptSvc.List(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]PostSummary, 0, len(transcripts))
	for _, t := range transcripts {
		out = append(out, postSummary(t))
	}
	c.JSON(http.StatusOK, gin.H{"posts": out})
}

func (s *Server) GetPost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	postID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	transcript, msgs, err := s.transcriptSvc.Get(c.Request.Context(), postID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	detail := PostDetail{
		PostSummary: postSummary(*transcript),
		Messages:    make([]PostMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, PostMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) DeletePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	postID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.transcriptSvc.Delete(c.Request.Context(), postID, userID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
