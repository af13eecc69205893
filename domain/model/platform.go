package model

import "strings"

// Platform identifies a third-party social network.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
)

// AllPlatforms lists every platform known to the service, in display order.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformYouTube,
		PlatformInstagram,
		PlatformFacebook,
		PlatformTwitter,
		PlatformLinkedIn,
		PlatformTikTok,
	}
}

// ParsePlatform normalizes a user supplied platform name.
func ParsePlatform(s string) (Platform, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "x" {
		v = string(PlatformTwitter)
	}
	for _, p := range AllPlatforms() {
		if string(p) == v {
			return p, true
		}
	}
	return "", false
}

func (p Platform) String() string { return string(p) }

// DisplayName is used in user facing messages.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformYouTube:
		return "YouTube"
	case PlatformInstagram:
		return "Instagram"
	case PlatformFacebook:
		return "Facebook"
	case PlatformTwitter:
		return "X (Twitter)"
	case PlatformLinkedIn:
		return "LinkedIn"
	case PlatformTikTok:
		return "TikTok"
	default:
		return string(p)
	}
}
