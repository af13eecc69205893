package resumable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// ChunkGranularity is the unit every non-final chunk must be a multiple of.
	ChunkGranularity int64 = 256 * 1024
	DefaultChunkSize int64 = 5 * 1024 * 1024

	statusResumeIncomplete = 308
	sniffLen               = 3072
)

// NormalizeChunkSize rounds n down to a multiple of 256 KiB. Zero or negative
// values fall back to the default, anything smaller than 256 KiB becomes 256 KiB.
func NormalizeChunkSize(n int64) int64 {
	if n <= 0 {
		return DefaultChunkSize
	}
	n -= n % ChunkGranularity
	if n < ChunkGranularity {
		return ChunkGranularity
	}
	return n
}

// MaxRequestsFor is the default bound on chunk requests for a payload.
func MaxRequestsFor(total, chunk int64) int {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	n := (total + chunk - 1) / chunk
	return int(2*n + 4)
}

type Config struct {
	ChunkSize    int64
	MaxRequests  int
	InitTimeout  time.Duration
	ChunkTimeout time.Duration
}

// Engine runs the init then chunked PUT protocol shared by resumable upload APIs.
type Engine struct {
	client *http.Client
	cfg    Config
}

func NewEngine(client *http.Client, cfg Config) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	cfg.ChunkSize = NormalizeChunkSize(cfg.ChunkSize)
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 30 * time.Second
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = 120 * time.Second
	}
	return &Engine{client: client, cfg: cfg}
}

// ChunkSize returns the effective chunk size.
func (e *Engine) ChunkSize() int64 { return e.cfg.ChunkSize }

// Request describes one upload.
type Request struct {
	Platform    model.Platform
	InitURL     string
	AccessToken string
	Metadata    []byte
	Payload     *model.Payload
	MaxBytes    int64
	Progress    model.ProgressFunc
}

// Upload transfers the payload and returns the body of the final 200/201
// response. The session URL is never reused after a failure.
func (e *Engine) Upload(ctx context.Context, req Request) ([]byte, error) {
	p := req.Platform
	if req.Payload == nil || req.Payload.Data == nil || req.Payload.Size <= 0 {
		return nil, model.NewPublishError(model.KindEmptyAsset, p, "validate", nil)
	}
	total := req.Payload.Size
	if req.MaxBytes > 0 && total > req.MaxBytes {
		return nil, model.NewPublishError(model.KindAssetTooLarge, p, "validate",
			fmt.Errorf("%d bytes exceeds limit of %d", total, req.MaxBytes))
	}
	contentType := e.checkContentType(req)

	req.Progress.Report(model.StateInitiating, 0, total)
	session, err := e.initiate(ctx, req, contentType)
	if err != nil {
		return nil, err
	}

	maxRequests := e.cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = MaxRequestsFor(total, e.cfg.ChunkSize)
	}
	req.Progress.Report(model.StateTransferring, 0, total)

	log := logger.GetLogger().WithFields(map[string]interface{}{"platform": p, "total": total})
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, model.NewPublishError(model.KindCancelled, p, "chunk", ctx.Err())
		}
		if attempt > maxRequests {
			return nil, model.NewPublishError(model.KindChunkUploadFailed, p, "chunk",
				fmt.Errorf("exceeded %d chunk requests at offset %d", maxRequests, session.Offset))
		}
		body, done, err := e.sendChunk(ctx, req, session, contentType)
		if err != nil {
			log.WithField("offset", session.Offset).WithError(err).Warn("Chunk upload failed")
			return nil, err
		}
		req.Progress.Report(model.StateTransferring, session.Offset, total)
		if done {
			log.WithField("requests", attempt).Info("Resumable upload completed")
			return body, nil
		}
	}
}

// checkContentType sniffs the payload head. A mismatch with the declared type
// is only logged.
func (e *Engine) checkContentType(req Request) string {
	declared := strings.TrimSpace(req.Payload.ContentType)
	head := io.NewSectionReader(req.Payload.Data, 0, min(req.Payload.Size, sniffLen))
	detected, err := mimetype.DetectReader(head)
	if err != nil {
		if declared == "" {
			return "application/octet-stream"
		}
		return declared
	}
	if declared == "" {
		return detected.String()
	}
	if !detected.Is(declared) && topLevel(detected.String()) != topLevel(declared) {
		logger.GetLogger().WithFields(map[string]interface{}{
			"platform": req.Platform,
			"declared": declared,
			"detected": detected.String(),
		}).Warn("Payload content type does not match its bytes")
	}
	return declared
}

func topLevel(ct string) string {
	if i := strings.IndexByte(ct, '/'); i > 0 {
		return ct[:i]
	}
	return ct
}

func (e *Engine) initiate(ctx context.Context, req Request, contentType string) (*model.UploadSession, error) {
	p := req.Platform
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.InitTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, req.InitURL, bytes.NewReader(req.Metadata))
	if err != nil {
		return nil, model.NewPublishError(model.KindUploadInitFailed, p, "init", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Upload-Content-Length", strconv.FormatInt(req.Payload.Size, 10))
	httpReq.Header.Set("X-Upload-Content-Type", contentType)

	res, err := e.client.Do(httpReq)
	if err != nil {
		return nil, e.callError(ctx, model.KindUploadInitFailed, p, "init", 0, err)
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, e.callError(ctx, model.KindUploadInitFailed, p, "init", res.StatusCode, errors.New(truncate(string(body), 500)))
	}
	loc := strings.TrimSpace(res.Header.Get("Location"))
	if loc == "" {
		return nil, model.NewPublishError(model.KindUploadInitFailed, p, "init", errors.New("missing Location header"))
	}
	sessionURL, err := resolveLocation(req.InitURL, loc)
	if err != nil {
		return nil, model.NewPublishError(model.KindUploadInitFailed, p, "init", err)
	}
	return &model.UploadSession{SessionURL: sessionURL, TotalBytes: req.Payload.Size}, nil
}

func resolveLocation(initURL, loc string) (string, error) {
	ref, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("invalid Location %q: %w", loc, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(initURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// sendChunk PUTs the next span and advances the session offset. Once every
// byte is acknowledged but no final response arrived, it sends a status query.
func (e *Engine) sendChunk(ctx context.Context, req Request, s *model.UploadSession, contentType string) ([]byte, bool, error) {
	p := req.Platform
	start := s.Offset
	end := start + min(e.cfg.ChunkSize, s.Remaining())

	var buf []byte
	contentRange := fmt.Sprintf("bytes */%d", s.TotalBytes)
	if end > start {
		buf = make([]byte, end-start)
		n, err := req.Payload.Data.ReadAt(buf, start)
		if int64(n) < end-start {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return nil, false, model.NewPublishError(model.KindChunkUploadFailed, p, "read chunk",
				fmt.Errorf("short read at %d: got %d of %d bytes: %w", start, n, end-start, err))
		}
		contentRange = fmt.Sprintf("bytes %d-%d/%d", start, end-1, s.TotalBytes)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ChunkTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPut, s.SessionURL, bytes.NewReader(buf))
	if err != nil {
		return nil, false, model.NewPublishError(model.KindChunkUploadFailed, p, "chunk", err)
	}
	httpReq.ContentLength = int64(len(buf))
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Content-Range", contentRange)

	res, err := e.client.Do(httpReq)
	if err != nil {
		return nil, false, e.callError(ctx, model.KindChunkUploadFailed, p, "chunk", 0, err)
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	_ = res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK || res.StatusCode == http.StatusCreated:
		s.Offset = s.TotalBytes
		return body, true, nil
	case res.StatusCode == statusResumeIncomplete:
		next, ok := parseRange(res.Header.Get("Range"))
		if !ok {
			next = end
		}
		if next <= start && end > start {
			return nil, false, model.NewPublishError(model.KindChunkUploadFailed, p, "chunk",
				fmt.Errorf("no progress acknowledged after span %d-%d", start, end-1))
		}
		if next > s.TotalBytes {
			return nil, false, model.NewPublishError(model.KindChunkUploadFailed, p, "chunk",
				fmt.Errorf("acknowledged offset %d beyond total %d", next, s.TotalBytes))
		}
		s.Offset = next
		return nil, false, nil
	default:
		return nil, false, e.callError(ctx, model.KindChunkUploadFailed, p, "chunk", res.StatusCode, errors.New(truncate(string(body), 500)))
	}
}

// parseRange reads "bytes=0-N" and returns N+1.
func parseRange(h string) (int64, bool) {
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "bytes=") {
		return 0, false
	}
	parts := strings.SplitN(strings.TrimPrefix(h, "bytes="), "-", 2)
	if len(parts) != 2 {
		return 0, false
	}
	last, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || last < 0 {
		return 0, false
	}
	return last + 1, true
}

// callError maps a failed call to its kind, preferring Cancelled when the
// caller gave up rather than the per-call timeout firing.
func (e *Engine) callError(parent context.Context, kind model.ErrorKind, p model.Platform, op string, status int, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return model.NewPublishError(model.KindCancelled, p, op, parent.Err())
	}
	pe := model.NewPublishError(kind, p, op, err)
	pe.StatusCode = status
	return pe
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
