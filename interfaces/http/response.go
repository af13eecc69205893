package http

import (
	"errors"
	"net/http"
	"strconv"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"

	"github.com/gin-gonic/gin"
)

func respond(ctx *gin.Context, status int, message string, data interface{}) {
	ctx.JSON(status, dto.Res{ResponseCode: strconv.Itoa(status), ResponseMessage: message, Data: data})
}

func respondError(ctx *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	respond(ctx, status, message, nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrCredentialNotFound), errors.Is(err, model.ErrNotConnected):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrOAuthNotConfigured), errors.Is(err, model.ErrPlatformUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, model.ErrCredentialExpired):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func platformParam(ctx *gin.Context) (model.Platform, bool) {
	p, ok := model.ParsePlatform(ctx.Param("platform"))
	if !ok {
		respond(ctx, http.StatusBadRequest, "unknown platform "+ctx.Param("platform"), nil)
	}
	return p, ok
}

func userID(ctx *gin.Context) (string, bool) {
	id := ctx.GetString("user_id")
	if id == "" {
		respond(ctx, http.StatusUnauthorized, "unauthorized: missing user_id", nil)
	}
	return id, id != ""
}
