package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type DashboardResponse struct {
	Message string       `json:"message"`
	Account UserResponse `json:"account"`
}

type UpdateProfileRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) GetProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.userSvc.GetByID(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, userResponse(user))
}

// Dashboard greets the account and summarizes its plan and balance.
func (s *Server) Dashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.userSvc.GetByID(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, DashboardResponse{
		Message: fmt.Sprintf("Welcome to your dashboard, %s", user.Email),
		Account: userResponse(user),
	})
}

// UpdateProfile changes email and, when provided, the password.
func (s *Server) UpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user, err := s.userSvc.UpdateProfile(c.Request.Context(), userID, req.Email, req.Password)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, userResponse(user))
}
