package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spigell/placement-engine/internal/logger"
	"github.com/spigell/placement-engine/internal/placement"
)

type errorDetail struct {
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Current *placement.Application `json:"current,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func statusFor(err error) int {
	switch placement.KindOf(err) {
	case placement.KindValidation:
		return http.StatusBadRequest
	case placement.KindNotFound:
		return http.StatusNotFound
	case placement.KindConflict:
		return http.StatusConflict
	case placement.KindExtraction:
		return http.StatusUnprocessableEntity
	case placement.KindJudge:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case placement.KindSchema:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)

	detail := errorDetail{Kind: string(placement.KindOf(err)), Message: err.Error()}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", logger.ErrorFields(err)...)
		detail = errorDetail{Kind: "internal", Message: "internal server error"}
	}
	if status == http.StatusConflict {
		detail.Current = placement.CurrentOf(err)
	}

	c.AbortWithStatusJSON(status, errorBody{Error: detail})
}

func (s *Server) badRequest(c *gin.Context, op string, err error) {
	s.fail(c, placement.Errorf(placement.KindValidation, op, "%v", err))
}
