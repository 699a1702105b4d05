package aiprovider

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const maxFrameSize = 4 << 20

// sseReader splits an event stream into frames separated by a blank line and
// yields the data payload of each frame.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	s.Split(splitFrames)
	return &sseReader{scanner: s}
}

// Next returns the data of the next frame that has any. ok is false at the
// end of the stream; err reports a read failure.
func (r *sseReader) Next() (data string, ok bool, err error) {
	for r.scanner.Scan() {
		if data, has := frameData(r.scanner.Text()); has {
			return data, true, nil
		}
	}
	return "", false, r.scanner.Err()
}

// splitFrames is a bufio.SplitFunc that cuts at "\n\n", tolerating CRLF.
func splitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		return i + 4, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// frameData joins the data: lines of a frame. Other fields are ignored.
func frameData(frame string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		parts = append(parts, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}
