package http

import (
	"net/http"

	"social-publisher/domain/dto"
	"social-publisher/infrastructure/logger"
	"social-publisher/usecase"

	"github.com/gin-gonic/gin"
)

type IConnectionHandler interface {
	Connect(ctx *gin.Context)
	Callback(ctx *gin.Context)
	ConnectSimulated(ctx *gin.Context)
	Disconnect(ctx *gin.Context)
	List(ctx *gin.Context)
}

type ConnectionHandler struct {
	connectionUsecase usecase.IConnectionUsecase
	simulatedEnabled  bool
	// successRedirect, when set, receives the browser after a callback
	// instead of a JSON body.
	successRedirect string
}

func NewConnectionHandler(uc usecase.IConnectionUsecase, simulatedEnabled bool, successRedirect string) IConnectionHandler {
	return &ConnectionHandler{connectionUsecase: uc, simulatedEnabled: simulatedEnabled, successRedirect: successRedirect}
}

func (h *ConnectionHandler) Connect(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	p, ok := platformParam(ctx)
	if !ok {
		return
	}
	authURL, state, err := h.connectionUsecase.Connect(ctx.Request.Context(), uid, p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, "Success", dto.ConnectResponse{AuthURL: authURL, State: state})
}

func (h *ConnectionHandler) Callback(ctx *gin.Context) {
	p, ok := platformParam(ctx)
	if !ok {
		return
	}
	if e := ctx.Query("error"); e != "" {
		respond(ctx, http.StatusBadRequest, "authorization denied: "+e, nil)
		return
	}
	summary, err := h.connectionUsecase.CompleteAuth(ctx.Request.Context(), p, ctx.Query("code"), ctx.Query("state"))
	if err != nil {
		logger.GetLogger().WithField("platform", p).WithField("error", err.Error()).Warn("OAuth callback failed")
		respondError(ctx, err)
		return
	}
	if h.successRedirect != "" {
		ctx.Redirect(http.StatusFound, h.successRedirect+"?platform="+string(p))
		return
	}
	respond(ctx, http.StatusOK, "Connected", summary)
}

func (h *ConnectionHandler) ConnectSimulated(ctx *gin.Context) {
	if !h.simulatedEnabled {
		respond(ctx, http.StatusNotFound, "simulated connections are disabled", nil)
		return
	}
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	p, ok := platformParam(ctx)
	if !ok {
		return
	}
	summary, err := h.connectionUsecase.ConnectSimulated(ctx.Request.Context(), uid, p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	respond(ctx, http.StatusCreated, "Connected", summary)
}

func (h *ConnectionHandler) Disconnect(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	p, ok := platformParam(ctx)
	if !ok {
		return
	}
	if err := h.connectionUsecase.Disconnect(ctx.Request.Context(), uid, p); err != nil {
		respondError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, "Disconnected", nil)
}

func (h *ConnectionHandler) List(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	list, err := h.connectionUsecase.ListConnections(ctx.Request.Context(), uid)
	if err != nil {
		respondError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, "Success", list)
}
