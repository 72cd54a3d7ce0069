package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kkdai/youtube/v2"
)

const ProviderYouTube = "youtube"

// YouTube is the secondary extractor: a native YouTube client that only
// understands plain video URLs.
type YouTube struct {
	client *youtube.Client
}

func NewYouTube(httpClient *http.Client) *YouTube {
	return &YouTube{client: &youtube.Client{HTTPClient: httpClient}}
}

// Extract resolves a YouTube watch, short or youtu.be URL.
func (y *YouTube) Extract(ctx context.Context, target string) (*Track, error) {
	if !IsYouTubeURL(target) {
		return nil, ErrNotYouTube
	}
	video, err := y.client.GetVideoContext(ctx, target)
	if err != nil {
		return nil, err
	}

	t := &Track{
		URL:      WatchURL(video.ID),
		Title:    firstNonEmpty(video.Title, target),
		Artist:   video.Author,
		Duration: video.Duration,
		Provider: ProviderYouTube,
	}
	if n := len(video.Thumbnails); n > 0 {
		t.Thumbnail = video.Thumbnails[n-1].URL
	}

	best, yf := y.selectFormat(ctx, video)
	if best != nil {
		t.Format = best
		t.StreamURL = best.URL
		t.PreferLowCPU = best.Opus()
	}
	t.Opener = &youtubeOpener{y: y, page: t.URL, video: video, format: yf}
	return t, nil
}

// selectFormat maps the audio-carrying formats to candidates, deciphering
// URLs where the player response only carries a signature cipher.
func (y *YouTube) selectFormat(ctx context.Context, video *youtube.Video) (*Format, *youtube.Format) {
	formats := video.Formats.WithAudioChannels()
	candidates := make([]Format, 0, len(formats))
	byURL := make(map[string]*youtube.Format, len(formats))

	for i := range formats {
		f := &formats[i]
		u := f.URL
		if u == "" {
			resolved, err := y.client.GetStreamURLContext(ctx, video, f)
			if err != nil {
				continue
			}
			u = resolved
		}
		c := formatFromMime(f.MimeType)
		c.URL = u
		c.Bitrate = float64(f.Bitrate)
		c.ABR = float64(f.AverageBitrate)
		c.Note = fmt.Sprintf("%d - %s", f.ItagNo, f.MimeType)
		candidates = append(candidates, c)
		byURL[u] = f
	}

	best := SelectBest(candidates)
	if best == nil {
		return nil, nil
	}
	return best, byURL[best.URL]
}

// formatFromMime turns `audio/webm; codecs="opus"` into container and codec fields.
func formatFromMime(mime string) Format {
	var f Format
	kind, params, _ := strings.Cut(mime, ";")
	kind = strings.TrimSpace(kind)
	if _, sub, ok := strings.Cut(kind, "/"); ok {
		f.Ext = sub
	}
	codecs := ""
	if _, c, ok := strings.Cut(params, "codecs="); ok {
		codecs = strings.Trim(strings.TrimSpace(c), `"`)
	}
	if strings.HasPrefix(kind, "audio/") {
		f.VCodec = "none"
		f.ACodec = codecs
		return f
	}
	// Muxed video formats list "video, audio".
	parts := strings.Split(codecs, ",")
	f.VCodec = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		f.ACodec = strings.TrimSpace(parts[1])
	}
	return f
}

type youtubeOpener struct {
	y      *YouTube
	page   string
	video  *youtube.Video
	format *youtube.Format
}

// Open hands out the opus format URL for low-CPU playback and otherwise
// streams the selected format through the client.
func (o *youtubeOpener) Open(ctx context.Context, preferLowCPU bool) (*Stream, error) {
	if o.video == nil {
		video, err := o.y.client.GetVideoContext(ctx, o.page)
		if err != nil {
			return nil, err
		}
		o.video = video
		_, o.format = o.y.selectFormat(ctx, video)
	}
	if o.format == nil {
		return nil, ErrNoResults
	}
	mimeFormat := formatFromMime(o.format.MimeType)
	if preferLowCPU && mimeFormat.Opus() {
		u, err := o.y.client.GetStreamURLContext(ctx, o.video, o.format)
		if err != nil {
			return nil, err
		}
		return &Stream{URL: u}, nil
	}
	rc, _, err := o.y.client.GetStreamContext(ctx, o.video, o.format)
	if err != nil {
		return nil, err
	}
	return &Stream{Reader: rc}, nil
}
