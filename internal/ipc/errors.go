package ipc

import (
	"fmt"
	"unicode/utf8"
)

// MaxExcerpt caps how much raw engine output is embedded in a ProtocolError.
const MaxExcerpt = 256

// WorkerError is a failure reported by the engine itself, either as a
// structured {"error": ...} document or as stderr text on a non-zero exit.
type WorkerError struct {
	Message  string
	ExitCode int
}

func (e *WorkerError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("engine error (exit %d): %s", e.ExitCode, e.Message)
	}
	return "engine error: " + e.Message
}

// ProtocolError means stdout matched neither known shape.
type ProtocolError struct {
	Diagnostic string
	Excerpt    string // bounded prefix of the raw output
	Size       int    // full size of the raw output in bytes
}

func (e *ProtocolError) Error() string {
	if e.Size == 0 {
		return "protocol error: " + e.Diagnostic
	}
	return fmt.Sprintf("protocol error: %s (%d bytes, begins %q)", e.Diagnostic, e.Size, e.Excerpt)
}

// NewProtocolError builds a ProtocolError carrying at most MaxExcerpt bytes of raw.
func NewProtocolError(diagnostic string, raw []byte) *ProtocolError {
	return &ProtocolError{
		Diagnostic: diagnostic,
		Excerpt:    Excerpt(raw, MaxExcerpt),
		Size:       len(raw),
	}
}

// Excerpt returns the first max bytes of raw, cut back to a rune boundary.
func Excerpt(raw []byte, maxBytes int) string {
	if len(raw) <= maxBytes {
		return string(raw)
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return string(raw[:cut])
}
