package services

import (
	"regexp"
	"strings"
)

type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
)

type linkPattern struct {
	platform Platform
	re       *regexp.Regexp
}

// First match wins, so the order below is part of the contract.
// vt.tiktok.com short links only redirect and never match.
var linkPatterns = []linkPattern{
	{PlatformYouTube, regexp.MustCompile(`(?:^|//)(?:www\.)?youtube\.com/shorts/([a-zA-Z0-9_-]+)`)},
	{PlatformYouTube, regexp.MustCompile(`(?:^|//)(?:www\.|m\.)?youtube\.com/watch\?(?:[^#]*&)?v=([a-zA-Z0-9_-]+)`)},
	{PlatformYouTube, regexp.MustCompile(`(?:^|//)(?:www\.)?youtu\.be/([a-zA-Z0-9_-]+)`)},
	{PlatformTikTok, regexp.MustCompile(`(?:^|//)(?:www\.|m\.)?tiktok\.com/@[^/]+/video/(\d+)`)},
	{PlatformInstagram, regexp.MustCompile(`(?:^|//)(?:www\.)?instagram\.com/(?:reel|p|tv)/([a-zA-Z0-9_-]+)/?`)},
}

// VideoLink is a pasted link resolved to a platform video id.
type VideoLink struct {
	URL      string   `json:"url"`
	Platform Platform `json:"platform"`
	VideoID  string   `json:"video_id"`
}

// ParseVideoID returns the video id of the first pattern that matches raw,
// or ErrNoVideoID. A miss is permanent for that input.
func ParseVideoID(raw string) (string, error) {
	link, err := ParseLink(raw)
	if err != nil {
		return "", err
	}
	return link.VideoID, nil
}

func ParseLink(raw string) (VideoLink, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return VideoLink{}, ErrNoVideoID
	}
	for _, p := range linkPatterns {
		if m := p.re.FindStringSubmatch(raw); len(m) > 1 && m[1] != "" {
			return VideoLink{URL: raw, Platform: p.platform, VideoID: m[1]}, nil
		}
	}
	return VideoLink{}, ErrNoVideoID
}
