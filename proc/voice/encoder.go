package voice

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/leeineian/jukebox/proc/player"
)

const (
	sampleRate   = 48000
	frameSamples = 960
	opusBitRate  = 192000
)

var (
	errNoAudio   = errors.New("no audio stream")
	errNoDecoder = errors.New("no decoder")
	errNoEncoder = errors.New("no opus encoder")
	errNoFormat  = errors.New("s16le demuxer unavailable")
	errNoSeek    = errors.New("seek not supported")
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// encoder turns a player resource into 20 ms opus frames. Inputs that
// already are 48 kHz opus are passed through packet by packet.
type encoder struct {
	input       *astiav.FormatContext
	ioCtx       *astiav.IOContext
	decoder     *astiav.CodecContext
	opus        *astiav.CodecContext
	stream      int
	passthrough bool

	packet    *astiav.Packet
	frame     *astiav.Frame
	resampled *astiav.Frame
	resampler *astiav.SoftwareResampleContext
	fifo      *astiav.AudioFifo
	pts       int64

	reader io.Reader
	emit   func([]byte) bool
}

func newEncoder() *encoder {
	return &encoder{
		packet:    astiav.AllocPacket(),
		frame:     astiav.AllocFrame(),
		resampled: astiav.AllocFrame(),
		stream:    -1,
	}
}

func (e *encoder) open(res *player.Resource) error {
	e.input = astiav.AllocFormatContext()
	if e.input == nil {
		return errors.New("failed to alloc format context")
	}

	switch res.Kind {
	case player.KindURL:
		var opts *astiav.Dictionary
		if strings.HasPrefix(res.URL, "http") {
			opts = astiav.NewDictionary()
			defer opts.Free()
			opts.Set("reconnect", "1", 0)
			opts.Set("reconnect_streamed", "1", 0)
			opts.Set("reconnect_delay_max", "30", 0)
			opts.Set("timeout", "30000000", 0)
		}
		if err := e.input.OpenInput(res.URL, nil, opts); err != nil {
			return err
		}
	case player.KindEncoded, player.KindPCM:
		if err := e.attachReader(res.Reader); err != nil {
			return err
		}
		opts := astiav.NewDictionary()
		defer opts.Free()
		var format *astiav.InputFormat
		if res.Kind == player.KindPCM {
			format = astiav.FindInputFormat("s16le")
			if format == nil {
				return errNoFormat
			}
			opts.Set("sample_rate", "48000", 0)
			opts.Set("ch_layout", "stereo", 0)
		} else {
			opts.Set("probesize", "10000000", 0)
			opts.Set("analyzeduration", "10000000", 0)
		}
		if err := e.input.OpenInput("", format, opts); err != nil {
			return err
		}
	default:
		return errNoAudio
	}

	if err := e.input.FindStreamInfo(nil); err != nil {
		return err
	}
	for _, s := range e.input.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			e.stream = s.Index()
			break
		}
	}
	if e.stream < 0 {
		return errNoAudio
	}

	params := e.input.Streams()[e.stream].CodecParameters()
	if params.CodecID() == astiav.CodecIDOpus && params.SampleRate() == sampleRate {
		e.passthrough = true
		return nil
	}
	if err := e.setupDecoder(params); err != nil {
		return err
	}
	return e.setupEncoder()
}

func (e *encoder) attachReader(r io.Reader) error {
	if r == nil {
		return errNoAudio
	}
	e.reader = r
	seek := func(offset int64, whence int) (int64, error) {
		return 0, errNoSeek
	}
	if s, ok := r.(io.Seeker); ok {
		seek = s.Seek
	}
	ioCtx, err := astiav.AllocIOContext(16*1024, false, func(b []byte) (int, error) {
		return e.reader.Read(b)
	}, seek, nil)
	if err != nil {
		return err
	}
	e.ioCtx = ioCtx
	e.input.SetPb(ioCtx)
	e.input.SetFlags(e.input.Flags().Add(astiav.FormatContextFlagCustomIo))
	return nil
}

func (e *encoder) setupDecoder(params *astiav.CodecParameters) error {
	d := astiav.FindDecoder(params.CodecID())
	if d == nil {
		return errNoDecoder
	}
	e.decoder = astiav.AllocCodecContext(d)
	if err := params.ToCodecContext(e.decoder); err != nil {
		return err
	}
	return e.decoder.Open(d, nil)
}

func (e *encoder) setupEncoder() error {
	c := astiav.FindEncoderByName("libopus")
	if c == nil {
		c = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if c == nil {
		return errNoEncoder
	}
	e.opus = astiav.AllocCodecContext(c)
	e.opus.SetBitRate(opusBitRate)
	e.opus.SetSampleRate(sampleRate)
	e.opus.SetChannelLayout(astiav.ChannelLayoutStereo)
	e.opus.SetSampleFormat(astiav.SampleFormatS16)
	e.opus.SetTimeBase(astiav.NewRational(1, sampleRate))
	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("compression_level", "10", 0)
	o.Set("frame_size", "20", 0)
	if err := e.opus.Open(c, o); err != nil {
		return err
	}
	e.resampler = astiav.AllocSoftwareResampleContext()
	if e.resampler == nil {
		return errors.New("failed to allocate resampler")
	}
	e.fifo = astiav.AllocAudioFifo(e.opus.SampleFormat(), e.opus.ChannelLayout().Channels(), frameSamples*2)
	return nil
}

// run reads the input to the end, handing every opus frame to emit. It stops
// early when ctx is done or emit refuses a frame.
func (e *encoder) run(ctx context.Context, emit func([]byte) bool) error {
	e.emit = emit
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.input.ReadFrame(e.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return err
		}
		if e.packet.StreamIndex() != e.stream {
			e.packet.Unref()
			continue
		}
		if e.passthrough {
			ok := e.send(e.packet.Data())
			e.packet.Unref()
			if !ok {
				return ctx.Err()
			}
			continue
		}
		if err := e.decoder.SendPacket(e.packet); err != nil {
			e.packet.Unref()
			return err
		}
		e.packet.Unref()
		if err := e.drainDecoder(); err != nil {
			return err
		}
	}

	if e.passthrough {
		return nil
	}
	_ = e.decoder.SendPacket(nil)
	if err := e.drainDecoder(); err != nil {
		return err
	}
	if err := e.flushFifo(); err != nil {
		return err
	}
	_ = e.opus.SendFrame(nil)
	return e.receivePackets()
}

func (e *encoder) drainDecoder() error {
	for {
		if err := e.decoder.ReceiveFrame(e.frame); err != nil {
			return nil
		}
		nb := int(astiav.RescaleQ(int64(e.frame.NbSamples()), astiav.NewRational(1, e.frame.SampleRate()), astiav.NewRational(1, sampleRate)))
		if nb > 0 {
			e.prepare(nb)
			if err := e.resampler.ConvertFrame(e.frame, e.resampled); err == nil {
				_, _ = e.fifo.Write(e.resampled)
			}
		}
		e.frame.Unref()
		for e.fifo.Size() >= frameSamples {
			if err := e.encodeFromFifo(frameSamples); err != nil {
				return err
			}
		}
	}
}

func (e *encoder) flushFifo() error {
	for e.fifo.Size() > 0 {
		if err := e.encodeFromFifo(min(e.fifo.Size(), frameSamples)); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) prepare(samples int) {
	e.resampled.Unref()
	e.resampled.SetNbSamples(samples)
	e.resampled.SetChannelLayout(e.opus.ChannelLayout())
	e.resampled.SetSampleFormat(e.opus.SampleFormat())
	e.resampled.SetSampleRate(e.opus.SampleRate())
	_ = e.resampled.AllocBuffer(0)
}

func (e *encoder) encodeFromFifo(samples int) error {
	e.prepare(samples)
	_, _ = e.fifo.Read(e.resampled)
	e.resampled.SetPts(e.pts)
	e.pts += int64(samples)
	if err := e.opus.SendFrame(e.resampled); err != nil {
		return err
	}
	return e.receivePackets()
}

func (e *encoder) receivePackets() error {
	for {
		p := astiav.AllocPacket()
		if e.opus.ReceivePacket(p) != nil {
			p.Free()
			return nil
		}
		ok := e.send(p.Data())
		p.Free()
		if !ok {
			return context.Canceled
		}
	}
}

func (e *encoder) send(data []byte) bool {
	if e.emit == nil || len(data) == 0 {
		return true
	}
	f := make([]byte, len(data))
	copy(f, data)
	return e.emit(f)
}

func (e *encoder) close() {
	if e.fifo != nil {
		e.fifo.Free()
	}
	if e.resampler != nil {
		e.resampler.Free()
	}
	if e.resampled != nil {
		e.resampled.Free()
	}
	if e.packet != nil {
		e.packet.Free()
	}
	if e.frame != nil {
		e.frame.Free()
	}
	if e.decoder != nil {
		e.decoder.Free()
	}
	if e.opus != nil {
		e.opus.Free()
	}
	if e.input != nil {
		e.input.CloseInput()
		e.input.Free()
	}
	if e.ioCtx != nil {
		e.ioCtx.Free()
	}
}
