// Package audioconv decodes recorded utterances into the mono float PCM the
// transcriber expects.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// Rate is the sample rate whisper models are trained on.
const Rate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

type Format int

const (
	Unknown Format = iota
	WAV
	MP3
	Ogg
)

func (f Format) String() string {
	switch f {
	case WAV:
		return "wav"
	case MP3:
		return "mp3"
	case Ogg:
		return "ogg"
	default:
		return "unknown"
	}
}

type Options struct {
	// Rate of the output; 0 means Rate.
	Rate int
	// MaxSamples truncates the output when positive.
	MaxSamples int
}

// pcm is decoded audio before downmix and resampling.
type pcm struct {
	samples  []float32
	channels int
	rate     int
}

// DecodeFile reads path and returns mono samples at opt.Rate.
func DecodeFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format := byExtension(path)
	if format == Unknown {
		if format, err = Sniff(f); err != nil {
			return nil, err
		}
	}
	return Decode(ctx, f, format, opt)
}

// Decode reads r as format.
func Decode(ctx context.Context, r io.ReadSeeker, format Format, opt Options) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		p   pcm
		err error
	)
	switch format {
	case WAV:
		p, err = decodeWAV(r)
	case MP3:
		p, err = decodeMP3(r)
	case Ogg:
		// Vorbis first, then Opus in the same container
		p, err = decodeVorbis(r)
		if err != nil {
			if _, serr := r.Seek(0, io.SeekStart); serr != nil {
				return nil, serr
			}
			var oerr error
			if p, oerr = decodeOpus(r); oerr != nil {
				return nil, fmt.Errorf("ogg: vorbis: %v, opus: %w", err, oerr)
			}
			err = nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", format, err)
	}

	return finish(p, opt), nil
}

// Sniff identifies the container from its magic bytes and rewinds r.
func Sniff(r io.ReadSeeker) (Format, error) {
	magic, _ := bufio.NewReader(r).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Unknown, err
	}

	switch {
	case string(magic) == "RIFF":
		return WAV, nil
	case string(magic) == "OggS":
		return Ogg, nil
	case len(magic) >= 3 && string(magic[:3]) == "ID3",
		len(magic) >= 2 && magic[0] == 0xFF && magic[1]&0xE0 == 0xE0:
		return MP3, nil
	}
	return Unknown, ErrUnsupported
}

func byExtension(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return WAV
	case ".mp3":
		return MP3
	case ".ogg", ".oga", ".opus":
		return Ogg
	}
	return Unknown
}

func finish(p pcm, opt Options) []float32 {
	rate := opt.Rate
	if rate <= 0 {
		rate = Rate
	}

	x := downmix(p.samples, p.channels)
	x = resample(x, p.rate, rate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}

func decodeWAV(r io.ReadSeeker) (pcm, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return pcm{}, errors.New("invalid header")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm{}, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return pcm{}, errors.New("no samples")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	p := pcm{
		samples:  intsToFloat(buf.Data, depth),
		channels: int(dec.NumChans),
		rate:     int(dec.SampleRate),
	}
	if buf.Format != nil {
		p.channels = buf.Format.NumChannels
		p.rate = buf.Format.SampleRate
	}
	return p, nil
}

func decodeMP3(r io.Reader) (pcm, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return pcm{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return pcm{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(&raw, binary.LittleEndian, ints); err != nil {
		return pcm{}, err
	}
	// go-mp3 always emits interleaved stereo
	return pcm{samples: int16sToFloat(ints), channels: 2, rate: dec.SampleRate()}, nil
}

func decodeVorbis(r io.Reader) (pcm, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return pcm{}, err
	}
	if format == nil {
		return pcm{}, errors.New("missing stream header")
	}
	return pcm{samples: samples, channels: format.Channels, rate: format.SampleRate}, nil
}

func decodeOpus(r io.ReadSeeker) (pcm, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return pcm{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// opus always decodes at 48 kHz
	var out []float32
	buf := make([]int16, 24000*ch)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, int16sToFloat(buf[:n*ch])...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return pcm{}, err
		}
	}
	return pcm{samples: out, channels: ch, rate: 48000}, nil
}

func intsToFloat(data []int, depth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(depth-1))
	for i, v := range data {
		out[i] = float32(math.Max(-1, math.Min(1, float64(v)*scale)))
	}
	return out
}

func int16sToFloat(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

// downmix averages interleaved channels into mono.
func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += in[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resample converts between rates by linear interpolation.
func resample(in []float32, from, to int) []float32 {
	if from <= 0 || from == to || len(in) == 0 {
		return in
	}
	ratio := float64(to) / float64(from)
	out := make([]float32, int(math.Ceil(float64(len(in))*ratio)))
	last := len(in) - 1
	for i := range out {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= last {
			out[i] = in[last]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i0+1]*a
	}
	return out
}
