// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package logging provides trace log files and their line formats.
package logging

import (
	"bufio"
	"io"
	"os"
	"sync"
)

const traceBufferSize = 4096

// GetLogFile opens a trace log destination. An empty name discards output,
// "stdout" and "stderr" select the process streams, anything else is created
// as a buffered file that is flushed on Close.
func GetLogFile(file string) (io.WriteCloser, error) {
	switch file {
	case "":
		return nopCloser{io.Discard}, nil
	case "stdout":
		return nopCloser{os.Stdout}, nil
	case "stderr":
		return nopCloser{os.Stderr}, nil
	}

	fd, err := os.Create(file) //nolint:gosec // Path comes from the operator
	if err != nil {
		return nil, err
	}

	return &fileCloser{
		f:   fd,
		buf: bufio.NewWriterSize(fd, traceBufferSize),
	}, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// fileCloser is safe for concurrent writers; trace lines arrive from the
// sampling goroutine and the transport read loop.
type fileCloser struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
}

func (f *fileCloser) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.buf.Write(p)
}

func (f *fileCloser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.buf.Flush(); err != nil {
		_ = f.f.Close()

		return err
	}

	return f.f.Close()
}
