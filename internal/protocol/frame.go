package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/mcoot/wordquizzle/internal/model"
)

// PrefixSize is the length of the response length header
const PrefixSize = 4

// Prefix returns the big-endian length header for a payload of n bytes
func Prefix(n int) []byte {
	prefix := make([]byte, PrefixSize)
	binary.BigEndian.PutUint32(prefix, uint32(n))
	return prefix
}

// WriteFrame writes the length header followed by the payload
func WriteFrame(w io.Writer, payload []byte) error {
	bufs := net.Buffers{Prefix(len(payload)), payload}
	_, err := bufs.WriteTo(w)
	return err
}

// ReadFrame reads one length-prefixed response. Frames larger than max are
// rejected.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if max > 0 && int(n) > max {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit %d", n, max)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ReadLine reads one '\n' terminated request of at most max bytes, not
// counting the terminator or a trailing '\r'. A longer line is consumed up to
// its terminator and reported as model.ErrMalformedRequest. A partial line
// at EOF is dropped and io.EOF returned.
func ReadLine(r *bufio.Reader, max int) (string, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(line) > max+2 {
				tooLong = true
				line = nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return "", err
		}
		break
	}
	if tooLong {
		return "", model.ErrMalformedRequest
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) > max {
		return "", model.ErrMalformedRequest
	}
	return string(line), nil
}
