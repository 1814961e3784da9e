package services

import (
	"context"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"

	yt "github.com/kkdai/youtube/v2"
)

// VideoPreview is what can be shown for a link before analysis starts.
type VideoPreview struct {
	Platform        Platform `json:"platform"`
	VideoID         string   `json:"video_id"`
	Title           string   `json:"title,omitempty"`
	Author          string   `json:"author,omitempty"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
	ThumbnailURL    string   `json:"thumbnail_url,omitempty"`
	EmbedURL        string   `json:"embed_url,omitempty"`
}

type YouTubeService struct {
	httpClient *http.Client
	ytClient   *yt.Client
}

func NewYouTubeService() *YouTubeService {
	return &YouTubeService{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		ytClient:   &yt.Client{},
	}
}

// Preview resolves a pasted link. Only YouTube videos are looked up; other
// platforms get an id-only preview without an embed.
func (s *YouTubeService) Preview(ctx context.Context, rawURL string) (*VideoPreview, error) {
	link, err := ParseLink(rawURL)
	if err != nil {
		return nil, err
	}

	p := &VideoPreview{Platform: link.Platform, VideoID: link.VideoID}
	if link.Platform != PlatformYouTube {
		return p, nil
	}
	p.EmbedURL = "https://www.youtube.com/embed/" + link.VideoID
	p.ThumbnailURL = fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", link.VideoID)

	video, err := s.ytClient.GetVideoContext(ctx, link.VideoID)
	if err == nil {
		p.Title = video.Title
		p.Author = video.Author
		p.DurationSeconds = int(video.Duration.Seconds())
		if best := bestThumbnail(video.Thumbnails); best != "" {
			p.ThumbnailURL = best
		}
		return p, nil
	}

	log.Printf("Preview: metadata lookup for %s failed, falling back to watch page: %v", link.VideoID, err)
	meta, err := s.watchPageMetadata(ctx, link.VideoID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video metadata: %w", err)
	}
	p.Title = meta.Title
	p.Author = meta.Author
	p.DurationSeconds = meta.DurationSeconds
	return p, nil
}

func bestThumbnail(thumbs yt.Thumbnails) string {
	var best yt.Thumbnail
	for _, t := range thumbs {
		if t.Width*t.Height >= best.Width*best.Height {
			best = t
		}
	}
	return best.URL
}

func (s *YouTubeService) watchPageMetadata(ctx context.Context, videoID string) (*VideoPreview, error) {
	pageURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	return parseWatchPage(string(body)), nil
}

var (
	titleRe    = regexp.MustCompile(`<title>(.*?) - YouTube</title>`)
	channelRe  = regexp.MustCompile(`"ownerChannelName":"(.*?)"`)
	durationRe = regexp.MustCompile(`"lengthSeconds":"(\d+)"`)
)

func parseWatchPage(page string) *VideoPreview {
	p := &VideoPreview{}
	if m := titleRe.FindStringSubmatch(page); len(m) > 1 {
		p.Title = html.UnescapeString(m[1])
	}
	if m := channelRe.FindStringSubmatch(page); len(m) > 1 {
		p.Author = m[1]
	}
	if m := durationRe.FindStringSubmatch(page); len(m) > 1 {
		p.DurationSeconds, _ = strconv.Atoi(m[1])
	}
	return p
}
