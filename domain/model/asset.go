package model

import "strings"

// AssetType is the kind of generated media being published.
type AssetType string

const (
	AssetImage   AssetType = "image"
	AssetVideo   AssetType = "video"
	AssetContent AssetType = "content"
)

// ParseAssetType accepts "text" as an alias for content.
func ParseAssetType(s string) (AssetType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image":
		return AssetImage, true
	case "video":
		return AssetVideo, true
	case "content", "text":
		return AssetContent, true
	}
	return "", false
}

// Asset is a generated piece of media to publish.
type Asset struct {
	ID          string              `json:"id"`
	Type        AssetType           `json:"type"`
	SourceURL   string              `json:"source_url"`
	Items       []string            `json:"items,omitempty"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Tags        []string            `json:"tags,omitempty"`
	MimeType    string              `json:"mime_type,omitempty"`
	Captions    map[Platform]string `json:"captions,omitempty"`
	Data        []byte              `json:"-"`
}

// MediaURLs returns every media URL of the asset; SourceURL first.
func (a *Asset) MediaURLs() []string {
	out := make([]string, 0, len(a.Items)+1)
	if a.SourceURL != "" {
		out = append(out, a.SourceURL)
	}
	for _, it := range a.Items {
		if it != "" && it != a.SourceURL {
			out = append(out, it)
		}
	}
	return out
}

// CaptionFor prefers the generated per-platform caption, then the description,
// then the title.
func (a *Asset) CaptionFor(p Platform) string {
	if c := strings.TrimSpace(a.Captions[p]); c != "" {
		return c
	}
	if d := strings.TrimSpace(a.Description); d != "" {
		return d
	}
	return strings.TrimSpace(a.Title)
}

var compatibility = map[AssetType][]Platform{
	AssetVideo:   {PlatformYouTube, PlatformFacebook},
	AssetImage:   {PlatformInstagram, PlatformFacebook},
	AssetContent: {PlatformTwitter, PlatformLinkedIn, PlatformFacebook},
}

// IsCompatible applies the asset/platform policy table.
func IsCompatible(t AssetType, p Platform) bool {
	for _, allowed := range compatibility[t] {
		if allowed == p {
			return true
		}
	}
	return false
}
