package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/leeineian/jukebox/sys"
	"github.com/lrstanley/go-ytdlp"
)

const (
	ProviderYtdlp = "yt-dlp"

	formatLowCPU  = "bestaudio[ext=webm]/bestaudio"
	formatGeneric = "bestaudio"

	MsgYtdlpStreamStart = "yt-dlp streaming %s (format %s, pid %d)"
)

var errNoYtdlpInfo = errors.New("yt-dlp returned no metadata")

// Ytdlp is the primary extractor. It shells out to yt-dlp through go-ytdlp for
// metadata (`--dump-json --skip-download`) and for piped downloads (`-o -`).
type Ytdlp struct {
	// Executable overrides the yt-dlp binary lookup when set.
	Executable string
}

func (y *Ytdlp) command() *ytdlp.Command {
	cmd := ytdlp.New().NoWarnings().IgnoreConfig()
	if y.Executable != "" {
		cmd = cmd.SetExecutable(y.Executable)
	}
	return cmd
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// extractedTrack maps go-ytdlp's extracted info to a track. A playlist
// result is unwrapped to its first entry.
func extractedTrack(infos []*ytdlp.ExtractedInfo, target string) (*Track, error) {
	if len(infos) == 0 || infos[0] == nil {
		return nil, errNoYtdlpInfo
	}
	info := infos[0]
	if len(info.Entries) > 0 && info.Entries[0] != nil {
		info = info.Entries[0]
	}

	t := &Track{
		URL:          firstNonEmpty(str(info.WebpageURL), str(info.URL), target),
		Title:        firstNonEmpty(str(info.Title), target),
		Artist:       firstNonEmpty(str(info.Uploader), str(info.Artist)),
		Album:        str(info.Album),
		Thumbnail:    str(info.Thumbnail),
		Duration:     time.Duration(num(info.Duration) * float64(time.Second)),
		Provider:     ProviderYtdlp,
		PreferLowCPU: true,
	}
	if n := len(info.Thumbnails); n > 0 && info.Thumbnails[n-1] != nil && info.Thumbnails[n-1].URL != "" {
		t.Thumbnail = info.Thumbnails[n-1].URL
	}

	formats := make([]Format, 0, len(info.Formats))
	for _, f := range info.Formats {
		if f == nil {
			continue
		}
		formats = append(formats, Format{
			URL:    f.URL,
			Ext:    str(f.Extension),
			ACodec: str(f.ACodec),
			VCodec: str(f.VCodec),
			Note:   str(f.Format),
			TBR:    num(f.TBR),
			ABR:    num(f.ABR),
		})
	}
	if best := SelectBest(formats); best != nil {
		t.Format = best
		t.StreamURL = best.URL
	}
	return t, nil
}

// Extract resolves a URL or a yt-dlp search token such as "ytsearch1:query".
func (y *Ytdlp) Extract(ctx context.Context, target string) (*Track, error) {
	res, err := y.command().DumpJSON().SkipDownload().NoPlaylist().Run(ctx, target)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return nil, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(res.Stderr))
		}
		return nil, err
	}
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, err
	}
	t, err := extractedTrack(infos, target)
	if err != nil {
		return nil, err
	}
	t.Opener = &ytdlpOpener{y: y, page: t.URL, streamURL: t.StreamURL}
	return t, nil
}

// Stream starts a yt-dlp download of page to stdout. The returned reader owns the process.
func (y *Ytdlp) Stream(ctx context.Context, page string, preferLowCPU bool) (*ProcessStream, error) {
	format := formatGeneric
	if preferLowCPU {
		format = formatLowCPU
	}
	cmd := y.command().
		Format(format).
		Output("-").
		NoPart().
		NoPlaylist().
		NoCheckFormats().
		BuildCommand(ctx, page)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")

	ps, err := StartProcess(cmd)
	if err != nil {
		return nil, err
	}
	sys.LogSourceDebug(MsgYtdlpStreamStart, page, format, ps.Pid())
	return ps, nil
}

// ytdlpOpener returns the direct media URL when resolution found one, and
// otherwise pipes a yt-dlp download. With enrich set it first re-runs
// metadata extraction to look for a direct URL.
type ytdlpOpener struct {
	y         *Ytdlp
	page      string
	streamURL string
	enrich    bool
}

func (o *ytdlpOpener) Open(ctx context.Context, preferLowCPU bool) (*Stream, error) {
	if o.streamURL != "" {
		return &Stream{URL: o.streamURL}, nil
	}
	if o.enrich {
		if t, err := o.y.Extract(ctx, o.page); err == nil && t.StreamURL != "" {
			return &Stream{URL: t.StreamURL}, nil
		}
	}
	ps, err := o.y.Stream(ctx, o.page, preferLowCPU)
	if err != nil {
		return nil, err
	}
	return &Stream{Reader: ps}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
