package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"
)

// Form bodies sent to the Graph API.
type containerForm struct {
	ImageURL       string `url:"image_url,omitempty"`
	Caption        string `url:"caption,omitempty"`
	IsCarouselItem bool   `url:"is_carousel_item,omitempty"`
	MediaType      string `url:"media_type,omitempty"`
	Children       string `url:"children,omitempty"`
}

type mediaPublishForm struct {
	CreationID string `url:"creation_id"`
}

type photoForm struct {
	URL       string `url:"url"`
	Published bool   `url:"published"`
}

type feedForm struct {
	Message string `url:"message,omitempty"`
	Link    string `url:"link,omitempty"`
}

type videoForm struct {
	FileURL     string `url:"file_url"`
	Title       string `url:"title,omitempty"`
	Description string `url:"description,omitempty"`
}

type permalinkParams struct {
	Fields string `url:"fields"`
}

// Options configure the container adapter.
type Options struct {
	// ContainerDelay is waited between creating containers and publishing them.
	ContainerDelay time.Duration
	// MaxCarouselItems caps the number of children of one carousel.
	MaxCarouselItems int
}

// Adapter implements the container based publish flow for one Graph platform
// (Instagram or Facebook).
type Adapter struct {
	platform model.Platform
	client   *Client
	opts     Options
}

func NewInstagramAdapter(client *Client, opts Options) *Adapter {
	return newAdapter(model.PlatformInstagram, client, opts)
}

func NewFacebookAdapter(client *Client, opts Options) *Adapter {
	return newAdapter(model.PlatformFacebook, client, opts)
}

func newAdapter(p model.Platform, client *Client, opts Options) *Adapter {
	if opts.MaxCarouselItems <= 0 {
		opts.MaxCarouselItems = 10
	}
	return &Adapter{platform: p, client: client, opts: opts}
}

func (a *Adapter) Platform() model.Platform { return a.platform }

func (a *Adapter) Publish(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
	if asset == nil || !model.IsCompatible(asset.Type, a.platform) {
		return nil, model.NewPublishError(model.KindIncompatibleAsset, a.platform, "validate", nil)
	}
	if cred == nil || cred.AccessToken == "" {
		return nil, model.NewPublishError(model.KindNotConnected, a.platform, "validate", nil)
	}
	progress.Report(model.StateInitiating, 0, 0)

	if a.platform == model.PlatformInstagram {
		return a.publishInstagram(ctx, asset, cred, progress)
	}
	switch asset.Type {
	case model.AssetImage:
		return a.publishFacebookPhotos(ctx, asset, cred, progress)
	case model.AssetVideo:
		return a.publishFacebookVideo(ctx, asset, cred, progress)
	default:
		return a.publishFacebookFeed(ctx, asset, cred, progress)
	}
}

func (a *Adapter) publishInstagram(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
	p := a.platform
	igUser := cred.Meta(model.MetaIGUserID)
	if igUser == "" {
		igUser = cred.PlatformUserID
	}
	if igUser == "" {
		return nil, model.NewPublishError(model.KindNotConnected, p, "validate", errors.New("no instagram business account linked"))
	}
	images := a.limit(asset.MediaURLs())
	if len(images) == 0 {
		return nil, model.NewPublishError(model.KindEmptyAsset, p, "validate", errors.New("no image url"))
	}
	caption := asset.CaptionFor(p)
	mediaPath := "/" + url.PathEscape(igUser) + "/media"
	total := int64(len(images))

	progress.Report(model.StateTransferring, 0, total)
	var creationID string
	if len(images) == 1 {
		id, err := a.client.Post(ctx, mediaPath, cred.AccessToken, containerForm{ImageURL: images[0], Caption: caption})
		if err != nil {
			return nil, publishError(ctx, p, "create container", err)
		}
		creationID = id
	} else {
		children := make([]string, 0, len(images))
		for i, img := range images {
			id, err := a.client.Post(ctx, mediaPath, cred.AccessToken, containerForm{ImageURL: img, IsCarouselItem: true})
			if err != nil {
				return nil, publishError(ctx, p, fmt.Sprintf("create carousel item %d", i), err)
			}
			children = append(children, id)
			progress.Report(model.StateTransferring, int64(i+1), total)
		}
		id, err := a.client.Post(ctx, mediaPath, cred.AccessToken, containerForm{
			MediaType: "CAROUSEL",
			Children:  strings.Join(children, ","),
			Caption:   caption,
		})
		if err != nil {
			return nil, publishError(ctx, p, "create carousel", err)
		}
		creationID = id
	}
	if creationID == "" {
		return nil, model.NewPublishError(model.KindPublishFailed, p, "create container", errors.New("missing container id"))
	}

	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	progress.Report(model.StateVerifying, total, total)
	mediaID, err := a.client.Post(ctx, "/"+url.PathEscape(igUser)+"/media_publish", cred.AccessToken, mediaPublishForm{CreationID: creationID})
	if err != nil {
		return nil, publishError(ctx, p, "media_publish", err)
	}

	res := model.SuccessResult(p, mediaID, a.permalink(ctx, mediaID, cred.AccessToken))
	res.BytesSent, res.TotalBytes = total, total
	return res, nil
}

// permalink is best effort; failures leave the result URL empty.
func (a *Adapter) permalink(ctx context.Context, mediaID, token string) string {
	var out struct {
		Permalink string `json:"permalink"`
	}
	if err := a.client.Get(ctx, "/"+url.PathEscape(mediaID), token, permalinkParams{Fields: "permalink"}, &out); err != nil {
		logger.GetLogger().WithField("mediaId", mediaID).WithError(err).Warn("Permalink lookup failed")
		return ""
	}
	return out.Permalink
}

func (a *Adapter) pageID(cred *model.Credential) (string, error) {
	page := cred.Meta(model.MetaPageID)
	if page == "" {
		page = cred.PlatformUserID
	}
	if page == "" {
		return "", model.NewPublishError(model.KindNotConnected, a.platform, "validate", errors.New("no facebook page selected"))
	}
	return page, nil
}

func (a *Adapter) publishFacebookPhotos(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
	p := a.platform
	page, err := a.pageID(cred)
	if err != nil {
		return nil, err
	}
	images := a.limit(asset.MediaURLs())
	if len(images) == 0 {
		return nil, model.NewPublishError(model.KindEmptyAsset, p, "validate", errors.New("no image url"))
	}
	total := int64(len(images))
	progress.Report(model.StateTransferring, 0, total)

	photoIDs := make([]string, 0, len(images))
	for i, img := range images {
		id, err := a.client.Post(ctx, "/"+url.PathEscape(page)+"/photos", cred.AccessToken, photoForm{URL: img, Published: false})
		if err != nil {
			return nil, publishError(ctx, p, fmt.Sprintf("upload photo %d", i), err)
		}
		photoIDs = append(photoIDs, id)
		progress.Report(model.StateTransferring, int64(i+1), total)
	}

	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	progress.Report(model.StateVerifying, total, total)

	form, err := encode(feedForm{Message: asset.CaptionFor(p)})
	if err != nil {
		return nil, model.NewPublishError(model.KindInternal, p, "encode", err)
	}
	for i, id := range photoIDs {
		ref, _ := json.Marshal(map[string]string{"media_fbid": id})
		form.Set("attached_media["+strconv.Itoa(i)+"]", string(ref))
	}
	postID, err := a.client.Post(ctx, "/"+url.PathEscape(page)+"/feed", cred.AccessToken, form)
	if err != nil {
		return nil, publishError(ctx, p, "feed", err)
	}
	res := model.SuccessResult(p, postID, postURL(postID))
	res.BytesSent, res.TotalBytes = total, total
	return res, nil
}

func (a *Adapter) publishFacebookFeed(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
	p := a.platform
	page, err := a.pageID(cred)
	if err != nil {
		return nil, err
	}
	message := asset.CaptionFor(p)
	link := ""
	if strings.HasPrefix(asset.SourceURL, "http://") || strings.HasPrefix(asset.SourceURL, "https://") {
		link = asset.SourceURL
	}
	if message == "" && link == "" {
		return nil, model.NewPublishError(model.KindEmptyAsset, p, "validate", errors.New("nothing to post"))
	}
	progress.Report(model.StateTransferring, 0, 1)
	postID, err := a.client.Post(ctx, "/"+url.PathEscape(page)+"/feed", cred.AccessToken, feedForm{Message: message, Link: link})
	if err != nil {
		return nil, publishError(ctx, p, "feed", err)
	}
	progress.Report(model.StateVerifying, 1, 1)
	return model.SuccessResult(p, postID, postURL(postID)), nil
}

func (a *Adapter) publishFacebookVideo(ctx context.Context, asset *model.Asset, cred *model.Credential, progress model.ProgressFunc) (*model.UploadResult, error) {
	p := a.platform
	page, err := a.pageID(cred)
	if err != nil {
		return nil, err
	}
	if asset.SourceURL == "" {
		return nil, model.NewPublishError(model.KindEmptyAsset, p, "validate", errors.New("no video url"))
	}
	progress.Report(model.StateTransferring, 0, 1)
	videoID, err := a.client.Post(ctx, "/"+url.PathEscape(page)+"/videos", cred.AccessToken, videoForm{
		FileURL:     asset.SourceURL,
		Title:       asset.Title,
		Description: asset.CaptionFor(p),
	})
	if err != nil {
		return nil, publishError(ctx, p, "videos", err)
	}
	progress.Report(model.StateVerifying, 1, 1)
	return model.SuccessResult(p, videoID, postURL(videoID)), nil
}

// wait sleeps the container delay unless the caller cancels first.
func (a *Adapter) wait(ctx context.Context) error {
	if a.opts.ContainerDelay <= 0 {
		return nil
	}
	t := time.NewTimer(a.opts.ContainerDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return model.NewPublishError(model.KindCancelled, a.platform, "wait", ctx.Err())
	case <-t.C:
		return nil
	}
}

func (a *Adapter) limit(urls []string) []string {
	if len(urls) > a.opts.MaxCarouselItems {
		return urls[:a.opts.MaxCarouselItems]
	}
	return urls
}

func postURL(id string) string {
	if id == "" {
		return ""
	}
	return "https://www.facebook.com/" + id
}
