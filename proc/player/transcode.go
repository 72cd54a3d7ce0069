package player

import (
	"context"
	"io"
	"os/exec"
	"time"

	"github.com/leeineian/jukebox/proc/source"
	"github.com/leeineian/jukebox/sys"
)

const MsgTranscodeStart = "ffmpeg transcoding %s (pid %d)"

// Transcoder turns a compressed stream into s16le, 48 kHz, stereo PCM.
// Closing the returned reader must release everything it started.
type Transcoder interface {
	Transcode(ctx context.Context, in *source.Stream) (io.ReadCloser, error)
}

// FFmpeg transcodes through an ffmpeg subprocess that lives exactly as long
// as the returned reader, or until ctx is canceled.
type FFmpeg struct {
	Path string
}

func ffmpegArgs(input string, remote bool) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-analyzeduration", "0"}
	if remote {
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
	}
	return append(args, "-i", input, "-vn", "-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1")
}

func (f *FFmpeg) Transcode(ctx context.Context, in *source.Stream) (io.ReadCloser, error) {
	path := f.Path
	if path == "" {
		path = sys.DefaultFFmpegPath
	}

	var cmd *exec.Cmd
	var extra []io.Closer
	var label string
	if in.Reader != nil {
		cmd = exec.CommandContext(ctx, path, ffmpegArgs("pipe:0", false)...)
		cmd.Stdin = in.Reader
		extra = append(extra, in.Reader)
		label = "pipe"
	} else {
		cmd = exec.CommandContext(ctx, path, ffmpegArgs(in.URL, true)...)
		label = in.URL
	}
	cmd.WaitDelay = 5 * time.Second

	ps, err := source.StartProcess(cmd, extra...)
	if err != nil {
		return nil, err
	}
	sys.LogDebug(MsgTranscodeStart, label, ps.Pid())
	return ps, nil
}
