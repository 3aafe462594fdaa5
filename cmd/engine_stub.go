package cmd

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/ocrnode/internal/ipc"
)

// stubOptions shape the development engine's behavior.
type stubOptions struct {
	Delay        time.Duration // simulated work before answering
	IgnoreCancel bool          // keep working after CANCEL, forcing a kill
}

// CreateEngineStubCmd creates the hidden engine-stub command. It speaks the
// engine side of the stdio protocol and answers with one box per image
// covering its full bounds, so the supervisor can be exercised without the
// real engine installed.
func CreateEngineStubCmd() *cobra.Command {
	var o stubOptions
	cmd := &cobra.Command{
		Use:    "engine-stub",
		Short:  "Run a development engine on stdin/stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			os.Exit(runEngineStub(cmd.InOrStdin(), cmd.OutOrStdout(), o))
		},
	}
	cmd.Flags().DurationVar(&o.Delay, "delay", 0, "Simulated processing time")
	cmd.Flags().BoolVar(&o.IgnoreCancel, "ignore-cancel", false, "Ignore the cancel token")
	return cmd
}

// runEngineStub serves one request and returns the process exit code.
func runEngineStub(stdin io.Reader, stdout io.Writer, o stubOptions) int {
	r := bufio.NewReader(stdin)
	req, err := ipc.ReadRequest(r)
	if err != nil {
		writeEngineError(stdout, "Invalid request: "+err.Error())
		return 1
	}

	cancelled := make(chan struct{})
	go func() {
		if ipc.WaitCancel(r) == nil {
			close(cancelled)
		}
	}()

	if o.Delay > 0 {
		timer := time.NewTimer(o.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-cancelled:
			if !o.IgnoreCancel {
				return ipc.ExitCancelled
			}
			<-timer.C
		}
	}

	select {
	case <-cancelled:
		if !o.IgnoreCancel {
			return ipc.ExitCancelled
		}
	default:
	}

	boxes, err := stubRecognize(req)
	if err != nil {
		writeEngineError(stdout, err.Error())
		return 1
	}
	if err := json.NewEncoder(stdout).Encode(boxes); err != nil {
		return 1
	}
	return 0
}

func stubRecognize(req *ipc.Request) ([]ipc.Box, error) {
	var (
		data []byte
		text string
		err  error
	)
	switch req.Kind {
	case ipc.KindPath:
		data, err = os.ReadFile(req.Data)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("Image not found: %s", req.Data)
		}
		if err != nil {
			return nil, fmt.Errorf("Failed to read image: %w", err)
		}
		text = strings.TrimSuffix(filepath.Base(req.Data), filepath.Ext(req.Data))
	case ipc.KindBase64:
		data, err = base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return nil, fmt.Errorf("Invalid base64 image data")
		}
		text = "image"
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("Unsupported image format")
	}
	if req.Config != nil && req.Config.Language != "" {
		text = fmt.Sprintf("%s [%s]", text, req.Config.Language)
	}

	w, h := float64(cfg.Width), float64(cfg.Height)
	return []ipc.Box{{
		Text:       fmt.Sprintf("%s (%s %dx%d)", text, format, cfg.Width, cfg.Height),
		Polygon:    []ipc.Point{{0, 0}, {w, 0}, {w, h}, {0, h}},
		Confidence: 1,
	}}, nil
}

func writeEngineError(w io.Writer, msg string) {
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
