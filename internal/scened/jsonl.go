package scened

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DefaultMaxRequestBytes bounds a single request line read by the server.
const DefaultMaxRequestBytes = 1 << 20

// ErrLineTooLong is returned by a lineReader whose limit was exceeded. The
// rest of the offending line is left unread.
var ErrLineTooLong = errors.New("message exceeds size limit")

// lineReader splits a stream into newline-delimited JSON messages.
type lineReader struct {
	r   *bufio.Reader
	max int // 0: unbounded
	buf []byte
}

func newLineReader(r io.Reader, max int) *lineReader {
	return &lineReader{r: bufio.NewReader(r), max: max}
}

// next returns the next non-blank message with surrounding space trimmed.
// A final message without a trailing newline is accepted. The slice is only
// valid until the following call.
func (lr *lineReader) next() ([]byte, error) {
	for {
		line, err := lr.readLine()
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			return nil, err
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (lr *lineReader) readLine() ([]byte, error) {
	lr.buf = lr.buf[:0]
	for {
		frag, err := lr.r.ReadSlice('\n')
		lr.buf = append(lr.buf, frag...)
		if lr.max > 0 && len(bytes.TrimRight(lr.buf, "\r\n")) > lr.max {
			return nil, ErrLineTooLong
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return lr.buf, err
		}
	}
}

// writeLine encodes v as one line and flushes it.
func writeLine(w *bufio.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return err
	}
	return w.Flush()
}
