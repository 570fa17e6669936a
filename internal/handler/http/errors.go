package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/service"
)

// HandleServiceError 把业务错误映射为 HTTP 状态码。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound), errors.Is(err, service.ErrPlayerNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRoomCode), errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidConfiguration), errors.Is(err, service.ErrInvalidVote),
		errors.Is(err, service.ErrInvalidTransition):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNameTaken), errors.Is(err, service.ErrRoomFull),
		errors.Is(err, service.ErrGameInProgress):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrReconnectExpired):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
