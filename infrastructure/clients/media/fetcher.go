package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"

	"github.com/gabriel-vasile/mimetype"
)

// spoolThreshold is the size above which downloads go to a temp file.
const spoolThreshold = 32 << 20

// Fetcher resolves the bytes behind an asset: inline data first, then a
// download of SourceURL.
type Fetcher struct {
	client  *http.Client
	tempDir string
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client}
}

func (f *Fetcher) Fetch(ctx context.Context, asset *model.Asset, maxBytes int64) (*model.Payload, error) {
	if asset == nil {
		return nil, model.NewPublishError(model.KindEmptyAsset, "", "fetch", errors.New("no asset"))
	}
	if len(asset.Data) > 0 {
		if maxBytes > 0 && int64(len(asset.Data)) > maxBytes {
			return nil, model.NewPublishError(model.KindAssetTooLarge, "", "fetch",
				fmt.Errorf("%d bytes exceeds limit of %d", len(asset.Data), maxBytes))
		}
		ct := asset.MimeType
		if ct == "" {
			ct = mimetype.Detect(asset.Data).String()
		}
		return &model.Payload{Data: bytes.NewReader(asset.Data), Size: int64(len(asset.Data)), ContentType: ct}, nil
	}
	src := strings.TrimSpace(asset.SourceURL)
	if src == "" {
		return nil, model.NewPublishError(model.KindEmptyAsset, "", "fetch", errors.New("asset has neither data nor source url"))
	}
	return f.download(ctx, src, asset.MimeType, maxBytes)
}

func (f *Fetcher) download(ctx context.Context, src, declared string, maxBytes int64) (*model.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, model.NewPublishError(model.KindInternal, "", "fetch", err)
	}
	res, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.NewPublishError(model.KindCancelled, "", "fetch", ctx.Err())
		}
		return nil, model.NewPublishError(model.KindInternal, "", "fetch", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		pe := model.NewPublishError(model.KindInternal, "", "fetch", fmt.Errorf("download %s returned %d", src, res.StatusCode))
		pe.StatusCode = res.StatusCode
		return nil, pe
	}
	if maxBytes > 0 && res.ContentLength > maxBytes {
		return nil, model.NewPublishError(model.KindAssetTooLarge, "", "fetch",
			fmt.Errorf("%d bytes exceeds limit of %d", res.ContentLength, maxBytes))
	}

	limit := int64(-1)
	body := io.Reader(res.Body)
	if maxBytes > 0 {
		limit = maxBytes
		body = io.LimitReader(res.Body, maxBytes+1)
	}

	var payload *model.Payload
	if res.ContentLength >= 0 && res.ContentLength <= spoolThreshold {
		payload, err = readInMemory(body)
	} else {
		payload, err = f.spool(body)
	}
	if err != nil {
		return nil, model.NewPublishError(model.KindInternal, "", "fetch", err)
	}
	if limit >= 0 && payload.Size > limit {
		_ = payload.Close()
		return nil, model.NewPublishError(model.KindAssetTooLarge, "", "fetch",
			fmt.Errorf("download exceeds limit of %d bytes", limit))
	}
	if payload.Size == 0 {
		_ = payload.Close()
		return nil, model.NewPublishError(model.KindEmptyAsset, "", "fetch", fmt.Errorf("download %s returned no bytes", src))
	}
	payload.ContentType = contentType(declared, res.Header.Get("Content-Type"), payload)
	logger.GetLogger().WithFields(map[string]interface{}{
		"size":        payload.Size,
		"contentType": payload.ContentType,
	}).Debug("Media fetched")
	return payload, nil
}

func readInMemory(r io.Reader) (*model.Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &model.Payload{Data: bytes.NewReader(data), Size: int64(len(data))}, nil
}

type tempFile struct{ *os.File }

func (t tempFile) Close() error {
	err := t.File.Close()
	_ = os.Remove(t.File.Name())
	return err
}

func (f *Fetcher) spool(r io.Reader) (*model.Payload, error) {
	file, err := os.CreateTemp(f.tempDir, "publish-media-*")
	if err != nil {
		return nil, err
	}
	tf := tempFile{file}
	n, err := io.Copy(file, r)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}
	return &model.Payload{Data: file, Size: n, Closer: tf}, nil
}

// contentType prefers the declared type, then the server header unless it is
// generic, then sniffing.
func contentType(declared, header string, p *model.Payload) string {
	if declared != "" {
		return declared
	}
	header = strings.TrimSpace(strings.Split(header, ";")[0])
	if header != "" && header != "application/octet-stream" && header != "binary/octet-stream" {
		return header
	}
	mt, err := mimetype.DetectReader(io.NewSectionReader(p.Data, 0, min(p.Size, 3072)))
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
