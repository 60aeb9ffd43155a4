// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"io"
	"strings"
)

// MaxLineLength is the longest line kept while waiting for a terminator.
// Probe frames are well under 128 bytes.
const MaxLineLength = 1024

// LineReader assembles newline-terminated lines from a non-blocking reader
type LineReader struct {
	r         io.Reader
	buf       []byte
	pending   []byte
	overflows uint64
}

// NewLineReader creates a line assembler over r
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:       r,
		buf:     make([]byte, 256),
		pending: make([]byte, 0, MaxLineLength),
	}
}

// ReadLine returns the next complete line without its terminator.
//
// At most one Read is issued on the underlying reader. ok is false when no
// complete line is available yet. Any read error is returned as-is; bytes
// already buffered stay available for subsequent calls.
func (l *LineReader) ReadLine() (line string, ok bool, err error) {
	if line, ok := l.next(); ok {
		return line, true, nil
	}

	n, err := l.r.Read(l.buf)
	if n > 0 {
		l.pending = append(l.pending, l.buf[:n]...)
	}
	if err != nil {
		return "", false, err
	}

	if line, ok := l.next(); ok {
		return line, true, nil
	}

	if len(l.pending) > MaxLineLength {
		l.pending = l.pending[:0]
		l.overflows++
	}
	return "", false, nil
}

// Overflows returns how many unterminated runs were discarded
func (l *LineReader) Overflows() uint64 {
	return l.overflows
}

// Buffered returns the number of bytes waiting for a line terminator
func (l *LineReader) Buffered() int {
	return len(l.pending)
}

func (l *LineReader) next() (string, bool) {
	i := bytes.IndexByte(l.pending, '\n')
	if i < 0 {
		return "", false
	}

	// Invalid UTF-8 from line noise is dropped rather than rejected
	line := strings.ToValidUTF8(string(bytes.TrimRight(l.pending[:i], "\r")), "")
	l.pending = append(l.pending[:0], l.pending[i+1:]...)
	return line, true
}
