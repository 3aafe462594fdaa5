package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// CancelToken asks a running engine to stop. It may be written at any
	// time after the request frame while stdin is still open.
	CancelToken = "CANCEL\n"

	// ExitCancelled is the exit code an engine uses to acknowledge CancelToken.
	ExitCancelled = 2

	// MaxFrameSize bounds the JSON body of a request frame.
	MaxFrameSize = 64 << 20
)

// ErrFrameTooLarge is returned by ReadRequest for frames above MaxFrameSize.
var ErrFrameTooLarge = errors.New("request frame exceeds maximum size")

// EncodeRequest writes req to w as "<len>\n<json>" in a single write.
// The writer is left open so CancelToken can follow later.
func EncodeRequest(w io.Writer, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	var frame bytes.Buffer
	frame.Grow(len(payload) + 12)
	frame.WriteString(strconv.Itoa(len(payload)))
	frame.WriteByte('\n')
	frame.Write(payload)

	if _, err := w.Write(frame.Bytes()); err != nil {
		return fmt.Errorf("failed to write request frame: %w", err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush request frame: %w", err)
		}
	}
	return nil
}

// WriteCancel writes CancelToken to w.
func WriteCancel(w io.Writer) error {
	if _, err := io.WriteString(w, CancelToken); err != nil {
		return fmt.Errorf("failed to write cancel token: %w", err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// ReadRequest reads one request frame. It is the engine-side inverse of EncodeRequest.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	size, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || size < 0 {
		return nil, fmt.Errorf("invalid frame header %q", strings.TrimSpace(header))
	}
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("frame body is not valid JSON: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// WaitCancel blocks until CancelToken arrives on r. It returns nil on the
// token and the read error (usually io.EOF) if the stream ends first.
func WaitCancel(r *bufio.Reader) error {
	for {
		line, err := r.ReadString('\n')
		if strings.TrimSpace(line) == strings.TrimSpace(CancelToken) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// DecodeOutput interprets the complete stdout of an exited engine. The error
// shape is tried first, then the success array; anything else is a
// *ProtocolError. A structured failure is returned as *WorkerError.
func DecodeOutput(stdout []byte) ([]Box, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil, NewProtocolError("engine produced no output on stdout", nil)
	}

	if trimmed[0] == '{' {
		var shape errorShape
		if err := json.Unmarshal(trimmed, &shape); err != nil {
			return nil, NewProtocolError("output is not valid JSON: "+err.Error(), stdout)
		}
		if shape.Error == nil {
			return nil, NewProtocolError("object output has no error field", stdout)
		}
		return nil, &WorkerError{Message: *shape.Error}
	}

	boxes := []Box{}
	if err := json.Unmarshal(trimmed, &boxes); err != nil {
		return nil, NewProtocolError("output is neither an error nor a result array: "+err.Error(), stdout)
	}
	if boxes == nil {
		return nil, NewProtocolError("result array is null", stdout)
	}
	return boxes, nil
}
