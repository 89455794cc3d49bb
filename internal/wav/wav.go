// Package wav writes 16-bit PCM RIFF/WAVE files incrementally.
package wav

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/omnicapture/agent/internal/audio"
)

// HeaderSize is the length of the canonical 44-byte PCM header.
const HeaderSize = 44

// maxDataSize keeps the RIFF chunk size (data plus 36 header bytes) within
// 32 bits. At 44.1 kHz 16-bit stereo that is a little over 6.7 hours.
const maxDataSize = math.MaxUint32 - (HeaderSize - 8)

var (
	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("wav writer closed")

	// ErrTooLarge is returned by a write that would overflow the header sizes.
	// Nothing from that write reaches the file.
	ErrTooLarge = errors.New("wav data exceeds 4 GiB")
)

// Format describes the PCM layout of the file.
type Format struct {
	Channels      int
	BitsPerSample int
	SampleRate    int
}

// DefaultFormat matches the blocks produced by the audio package.
var DefaultFormat = Format{Channels: audio.Channels, BitsPerSample: 16, SampleRate: audio.SampleRate}

func (f Format) blockAlign() int { return f.Channels * f.BitsPerSample / 8 }
func (f Format) byteRate() int   { return f.SampleRate * f.blockAlign() }

// Writer streams samples to disk and fixes the chunk sizes on Close.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	format  Format
	data    uint32
	scratch []byte
	closed  bool
}

// Create truncates path and writes a header with zero sizes.
func Create(path string, format Format) (*Writer, error) {
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav format %+v", format)
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bits per sample %d", format.BitsPerSample)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}
	w := &Writer{f: f, w: bufio.NewWriterSize(f, 64*1024), format: format}
	if _, err := w.w.Write(header(format, 0)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return w, nil
}

// header builds the RIFF, fmt and data chunk headers for dataSize bytes of PCM.
func header(format Format, dataSize uint32) []byte {
	le := binary.LittleEndian
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], 36+dataSize)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], 1) // PCM
	le.PutUint16(buf[22:24], uint16(format.Channels))
	le.PutUint32(buf[24:28], uint32(format.SampleRate))
	le.PutUint32(buf[28:32], uint32(format.byteRate()))
	le.PutUint16(buf[32:34], uint16(format.blockAlign()))
	le.PutUint16(buf[34:36], uint16(format.BitsPerSample))
	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], dataSize)
	return buf
}

// Quantize converts a float sample to int16. Values outside [-1, 1] wrap
// around instead of saturating.
func Quantize(s float32) int16 {
	return int16(int32(s * 32767))
}

// WriteBlock appends the block's samples.
func (w *Writer) WriteBlock(b audio.Block) error {
	if b.Channels != 0 && b.Channels != w.format.Channels {
		return fmt.Errorf("block has %d channels, file has %d", b.Channels, w.format.Channels)
	}
	return w.WriteSamples(b.Samples)
}

// WriteSamples appends interleaved samples.
func (w *Writer) WriteSamples(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	n := len(samples) * 2
	if uint64(w.data)+uint64(n) > maxDataSize {
		return ErrTooLarge
	}
	if cap(w.scratch) < n {
		w.scratch = make([]byte, n)
	}
	buf := w.scratch[:n]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(Quantize(s)))
	}
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	w.data += uint32(n)
	return nil
}

// DataSize is the number of PCM bytes written so far.
func (w *Writer) DataSize() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.data
}

// Close flushes buffered data, patches the RIFF and data sizes and closes
// the file. Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush wav: %w", err))
	}
	if _, err := w.f.WriteAt(header(w.format, w.data), 0); err != nil {
		errs = append(errs, fmt.Errorf("patch wav header: %w", err))
	}
	if err := w.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close wav: %w", err))
	}
	return errors.Join(errs...)
}
