package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"
	"social-publisher/usecase"

	"github.com/gin-gonic/gin"
)

type IPublishHandler interface {
	Publish(ctx *gin.Context)
	Progress(ctx *gin.Context)
	History(ctx *gin.Context)
	Stream(ctx *gin.Context)
}

// EventStreamer serves the per-user SSE stream.
type EventStreamer interface {
	Serve(c *gin.Context)
}

type PublishHandler struct {
	publishUsecase usecase.IPublishUsecase
	streamer       EventStreamer
	timeout        time.Duration
}

func NewPublishHandler(uc usecase.IPublishUsecase, streamer EventStreamer, timeout time.Duration) IPublishHandler {
	return &PublishHandler{publishUsecase: uc, streamer: streamer, timeout: timeout}
}

func (h *PublishHandler) Publish(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	var req dto.PublishRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respond(ctx, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	asset, platforms, msg := toDomain(req)
	if msg != "" {
		respond(ctx, http.StatusBadRequest, msg, nil)
		return
	}

	runCtx := ctx.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, h.timeout)
		defer cancel()
	}
	if req.Instruction != "" {
		h.publishUsecase.PrepareCaptions(runCtx, asset, req.Instruction, platforms)
	}
	if async, _ := strconv.ParseBool(ctx.Query("async")); async || req.Async {
		runID, err := h.publishUsecase.PublishAsync(runCtx, uid, asset, platforms)
		if err != nil {
			logger.GetLogger().WithField("user_id", uid).WithField("error", err.Error()).Warn("publish request failed")
			respond(ctx, http.StatusBadRequest, err.Error(), nil)
			return
		}
		respond(ctx, http.StatusAccepted, "Accepted", dto.PublishAccepted{
			RunID:       runID,
			ProgressURL: "/api/publish/" + runID + "/progress",
		})
		return
	}
	report, err := h.publishUsecase.PublishAll(runCtx, uid, asset, platforms)
	if err != nil {
		logger.GetLogger().WithField("user_id", uid).WithField("error", err.Error()).Warn("publish request failed")
		respond(ctx, http.StatusBadRequest, err.Error(), nil)
		return
	}
	message := "Success"
	if report.Failed > 0 {
		message = "Completed with failures"
	}
	respond(ctx, http.StatusOK, message, report)
}

func toDomain(req dto.PublishRequest) (*model.Asset, []model.Platform, string) {
	assetType, ok := model.ParseAssetType(req.Asset.Type)
	if !ok {
		return nil, nil, "unknown asset type " + req.Asset.Type
	}
	platforms := make([]model.Platform, 0, len(req.Platforms))
	for _, name := range req.Platforms {
		p, ok := model.ParsePlatform(name)
		if !ok {
			return nil, nil, "unknown platform " + name
		}
		platforms = append(platforms, p)
	}
	asset := &model.Asset{
		ID:          req.Asset.ID,
		Type:        assetType,
		SourceURL:   req.Asset.SourceURL,
		Items:       req.Asset.Items,
		Title:       req.Asset.Title,
		Description: req.Asset.Description,
		Tags:        req.Asset.Tags,
		MimeType:    req.Asset.MimeType,
	}
	for k, v := range req.Asset.Captions {
		if p, ok := model.ParsePlatform(k); ok {
			if asset.Captions == nil {
				asset.Captions = map[model.Platform]string{}
			}
			asset.Captions[p] = v
		}
	}
	return asset, platforms, ""
}

func (h *PublishHandler) Progress(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	progress, found := h.publishUsecase.Progress(uid, ctx.Param("runId"))
	if !found {
		respond(ctx, http.StatusNotFound, "run not found", nil)
		return
	}
	respond(ctx, http.StatusOK, "Success", progress)
}

func (h *PublishHandler) History(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(ctx.DefaultQuery("limit", "20"), 10, 64)
	reports, err := h.publishUsecase.History(ctx.Request.Context(), uid, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, "Success", reports)
}

func (h *PublishHandler) Stream(ctx *gin.Context) {
	if h.streamer == nil {
		respond(ctx, http.StatusNotImplemented, "event stream not configured", nil)
		return
	}
	h.streamer.Serve(ctx)
}
