// Package audio converts provider-native artifacts into the canonical WAV
// encoding served to clients.
package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/hajimehoshi/go-mp3"

	"github.com/voxcache/voxcache/internal/tts"
)

// Source encodings produced by the provider.
const (
	FormatMP3 = "mp3"
	FormatPCM = "pcm"
)

// DefaultPCMSampleRate is Polly's default rate for pcm output.
const DefaultPCMSampleRate = 16000

// Converter turns a provider artifact into a WAV file.
type Converter struct {
	format     string
	sampleRate int
	logger     *log.Logger
}

// NewConverter returns a converter for the given source format. sampleRate
// only applies to pcm sources; zero means DefaultPCMSampleRate.
func NewConverter(format string, sampleRate int) (*Converter, error) {
	switch format {
	case FormatMP3, FormatPCM:
	default:
		return nil, fmt.Errorf("unsupported source format %q", format)
	}
	if sampleRate <= 0 {
		sampleRate = DefaultPCMSampleRate
	}
	return &Converter{
		format:     format,
		sampleRate: sampleRate,
		logger:     log.Default().WithPrefix("audio"),
	}, nil
}

// Format returns the source format this converter expects.
func (c *Converter) Format() string {
	return c.format
}

// Convert reads src and writes a WAV file to dst. The file appears at dst
// only once it is complete.
func (c *Converter) Convert(ctx context.Context, src, dst string) error {
	start := time.Now()

	in, err := os.Open(src)
	if err != nil {
		return conversionError("open source", err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return conversionError("create output", err)
	}
	defer os.Remove(tmp)

	var size int64
	switch c.format {
	case FormatMP3:
		size, err = c.decodeMP3(ctx, in, out)
	case FormatPCM:
		size, err = c.wrapPCM(ctx, in, out)
	}
	if err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return conversionError("sync output", err)
	}
	if err := out.Close(); err != nil {
		return conversionError("close output", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return conversionError("rename output", err)
	}

	c.logger.Debug("Converted audio",
		"format", c.format,
		"size", humanize.Bytes(uint64(size)),
		"took", time.Since(start))
	return nil
}

// decodeMP3 writes a placeholder header, streams decoded PCM and patches
// the sizes once the stream length is known.
func (c *Converter) decodeMP3(ctx context.Context, in io.Reader, out *os.File) (int64, error) {
	dec, err := mp3.NewDecoder(bufio.NewReader(in))
	if err != nil {
		return 0, conversionError("decode mp3", err)
	}

	// go-mp3 always yields 16-bit little-endian stereo.
	h := Header{SampleRate: dec.SampleRate(), Channels: 2, BitsPerSample: 16}
	if _, err := h.WriteTo(out); err != nil {
		return 0, conversionError("write header", err)
	}

	n, err := io.Copy(out, &ctxReader{ctx: ctx, r: dec})
	if err != nil {
		return 0, conversionError("decode mp3", err)
	}
	if n == 0 {
		return 0, conversionError("decode mp3", errors.New("no audio frames"))
	}

	h.DataSize = int(n)
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return 0, conversionError("rewrite header", err)
	}
	if _, err := h.WriteTo(out); err != nil {
		return 0, conversionError("rewrite header", err)
	}
	return HeaderSize + n, nil
}

func (c *Converter) wrapPCM(ctx context.Context, in io.Reader, out io.Writer) (int64, error) {
	pcm, err := io.ReadAll(&ctxReader{ctx: ctx, r: in})
	if err != nil {
		return 0, conversionError("read pcm", err)
	}
	if len(pcm) == 0 {
		return 0, conversionError("read pcm", errors.New("empty pcm stream"))
	}
	if len(pcm)%2 != 0 {
		return 0, conversionError("read pcm", fmt.Errorf("odd pcm length %d", len(pcm)))
	}

	wav := WrapPCM(pcm, c.sampleRate, 1)
	if _, err := out.Write(wav); err != nil {
		return 0, conversionError("write output", err)
	}
	return int64(len(wav)), nil
}

func conversionError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return tts.NewError(tts.ErrorCodeConversionFailed, op, fmt.Errorf("%w: %v", tts.ErrTimeout, err))
	}
	return tts.NewError(tts.ErrorCodeConversionFailed, op, err)
}

// ctxReader stops a long decode once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

var _ tts.Converter = (*Converter)(nil)
