package logger

import (
	"bytes"
	"strings"
	"sync"
)

// Memory captures everything a logger writes, split by channel. It is used by
// tests across the module to assert on command output.
type Memory struct {
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// NewMemory returns a logger at LevelInfo that writes into a Memory.
func NewMemory() (*Logger, *Memory) {
	m := &Memory{}
	return New(&memoryWriter{m: m, buf: &m.stdout}, &memoryWriter{m: m, buf: &m.stderr}), m
}

// Stdout returns the lines written to the standard output channel.
func (m *Memory) Stdout() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lines(m.stdout.String())
}

// Stderr returns the lines written to the standard error channel.
func (m *Memory) Stderr() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lines(m.stderr.String())
}

// Reset drops everything captured so far.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stdout.Reset()
	m.stderr.Reset()
}

type memoryWriter struct {
	m   *Memory
	buf *bytes.Buffer
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	return w.buf.Write(p)
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}
