// Package protocol implements the lobby wire format: length-prefixed JSON frames
// with optional raw byte streams following a frame.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// headerSize is the length of the big-endian frame length prefix
const headerSize = 4

// initialBuffer caps the up-front allocation for a declared size; the buffer
// grows past it only as bytes arrive
const initialBuffer = 64 << 10

var (
	// ErrTruncated means the stream closed partway through a frame or raw transfer
	ErrTruncated = errors.New("protocol: stream closed mid-message")
	// ErrFrameTooLarge means a frame or transfer exceeded the configured limit
	ErrFrameTooLarge = errors.New("protocol: message exceeds size limit")
	// ErrMalformed means a frame body could not be decoded
	ErrMalformed = errors.New("protocol: malformed message")
)

// WriteFrame writes the length prefix and payload as a single write
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame with no size limit.
// It returns io.EOF only when the stream ends cleanly before a new frame starts.
func ReadFrame(r io.Reader) ([]byte, error) {
	return ReadFrameLimit(r, 0)
}

// ReadFrameLimit reads one frame, rejecting frames larger than limit bytes (0 = no limit)
func ReadFrameLimit(r io.Reader, limit int64) ([]byte, error) {
	var header [headerSize]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, truncated(err)
	}

	size := int64(binary.BigEndian.Uint32(header[:]))
	if limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrFrameTooLarge, size)
	}

	return readN(r, size)
}

// ReadRaw reads exactly n out-of-band bytes following a frame
func ReadRaw(r io.Reader, n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative transfer size", ErrMalformed)
	}
	return readN(r, n)
}

// readN reads exactly n bytes without trusting n for the allocation size
func readN(r io.Reader, n int64) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(min(n, initialBuffer)))
	if _, err := io.CopyN(&buf, r, n); err != nil {
		return nil, truncated(err)
	}
	return buf.Bytes(), nil
}

// WriteRaw writes out-of-band bytes with no framing
func WriteRaw(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

// truncated maps short reads to ErrTruncated while keeping other I/O errors visible
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
