// Package ffkit is a small ffmpeg subprocess kit: it builds and runs one
// ffmpeg invocation with raw frames on stdin and the encoded container on
// stdout, parses machine-readable progress, and keeps the last stderr lines
// for error reporting.
package ffkit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Cmd describes one ffmpeg run. Input is consumed on stdin, Output receives
// the muxed container. Args are everything between the global flags and the
// output target.
type Cmd struct {
	// Path to the ffmpeg binary.
	Path string

	// Args is the full argument list except the implicit global flags
	// (-nostdin is omitted since stdin carries frames; -hide_banner and
	// -nostats are always set, and -progress pipe:2 when ProgressFn is set).
	Args []string

	Input  io.Reader
	Output io.Writer

	// ProgressFn receives parsed progress blocks as ffmpeg emits them.
	ProgressFn func(Progress)

	Logger *slog.Logger

	stderr *stderrSink
}

// Run executes ffmpeg and waits for it to exit. On failure the returned
// error carries the last stderr lines, which is where ffmpeg explains
// itself.
func (c *Cmd) Run(ctx context.Context) error {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}

	args := []string{"-hide_banner", "-nostats"}
	if c.ProgressFn != nil {
		args = append(args, "-progress", "pipe:2")
	}
	args = append(args, c.Args...)

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stdin = c.Input
	cmd.Stdout = c.Output
	c.stderr = newStderrSink(c.ProgressFn)
	cmd.Stderr = c.stderr

	log.Debug("ffkit: running ffmpeg", "path", c.Path, "args", strings.Join(args, " "))

	err := cmd.Run()
	// A dying ffmpeg often leaves its actual complaint on an unterminated
	// final line; fold it in before the tail is read.
	c.stderr.Flush()
	if err != nil {
		return fmt.Errorf("ffkit: ffmpeg: %w: %s", err, c.stderr.Tail())
	}
	return nil
}

// StderrTail returns the last stderr lines of a finished run.
func (c *Cmd) StderrTail() string {
	if c.stderr == nil {
		return ""
	}
	return c.stderr.Tail()
}

// stderrSink splits ffmpeg's stderr into lines, routing -progress key=value
// lines to the progress parser and keeping a bounded tail of everything else
// for error messages.
type stderrSink struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	lines    []string
	maxLines int
	progress Progress
	fn       func(Progress)
}

func newStderrSink(fn func(Progress)) *stderrSink {
	return &stderrSink{maxLines: 40, fn: fn}
}

func (s *stderrSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Write(p)
	for {
		raw := s.buf.Bytes()
		nl := bytes.IndexByte(raw, '\n')
		if nl < 0 {
			break
		}
		line := strings.TrimRight(string(raw[:nl]), "\r")
		s.buf.Next(nl + 1)
		s.line(line)
	}
	return len(p), nil
}

func (s *stderrSink) line(line string) {
	if s.fn != nil && strings.Contains(line, "=") {
		if done := ParseProgress(&s.progress, line); done {
			s.fn(s.progress)
			s.progress = Progress{}
		}
		if isProgressKey(line) {
			return
		}
	}
	s.lines = append(s.lines, line)
	if len(s.lines) > s.maxLines {
		s.lines = s.lines[1:]
	}
}

// Flush processes any final unterminated line.
func (s *stderrSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() > 0 {
		s.line(s.buf.String())
		s.buf.Reset()
	}
}

func (s *stderrSink) Tail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}
