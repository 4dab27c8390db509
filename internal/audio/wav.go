package audio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// HeaderSize is the size of a canonical 44-byte PCM WAV header.
const HeaderSize = 44

// Header describes a 16-bit PCM WAV stream.
type Header struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataSize      int
}

// ByteRate returns bytes per second of audio.
func (h Header) ByteRate() int {
	return h.SampleRate * h.Channels * h.BitsPerSample / 8
}

// BlockAlign returns bytes per sample frame.
func (h Header) BlockAlign() int {
	return h.Channels * h.BitsPerSample / 8
}

// WriteTo writes the RIFF/WAVE header.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, HeaderSize)
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+h.DataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	le.PutUint16(buf[20:22], 1)  // PCM
	le.PutUint16(buf[22:24], uint16(h.Channels))
	le.PutUint32(buf[24:28], uint32(h.SampleRate))
	le.PutUint32(buf[28:32], uint32(h.ByteRate()))
	le.PutUint16(buf[32:34], uint16(h.BlockAlign()))
	le.PutUint16(buf[34:36], uint16(h.BitsPerSample))

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(h.DataSize))

	n, err := w.Write(buf)
	return int64(n), err
}

// WrapPCM returns pcm prefixed with a WAV header.
func WrapPCM(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(pcm))
	h := Header{SampleRate: sampleRate, Channels: channels, BitsPerSample: 16, DataSize: len(pcm)}
	_, _ = h.WriteTo(&buf)
	buf.Write(pcm)
	return buf.Bytes()
}

// ParseHeader reads a canonical header back. ok is false when data is not
// a 44-byte-header PCM WAV.
func ParseHeader(data []byte) (Header, bool) {
	if len(data) < HeaderSize ||
		string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" ||
		string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return Header{}, false
	}
	le := binary.LittleEndian
	return Header{
		Channels:      int(le.Uint16(data[22:24])),
		SampleRate:    int(le.Uint32(data[24:28])),
		BitsPerSample: int(le.Uint16(data[34:36])),
		DataSize:      int(le.Uint32(data[40:44])),
	}, true
}
