package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"CVTailor/internal/domain"
)

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// statusFor maps the error kind carried by err to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, domain.ErrTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch domain.KindOf(err) {
	case domain.KindInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindCollaborator:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	respondErrorStatus(c, statusFor(err), err)
}

func respondErrorStatus(c *gin.Context, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorEnvelope{
		Error: apiError{
			Message: msg,
			Code:    string(domain.KindOf(err)),
			Stage:   string(domain.StageOf(err)),
		},
	})
}

func badRequest(c *gin.Context, err error) {
	respondErrorStatus(c, http.StatusBadRequest, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
}
