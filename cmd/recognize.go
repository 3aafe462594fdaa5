package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/ocrnode/internal/ipc"
	"github.com/smazurov/ocrnode/internal/logging"
	"github.com/smazurov/ocrnode/internal/models"
	"github.com/smazurov/ocrnode/internal/sidecar"
)

// Exit codes of the recognize command.
const (
	exitFailure   = 1
	exitTimedOut  = 124
	exitCancelled = 130
)

type recognizeParams struct {
	Input string // image path, or "-" for stdin
	Model string
	JSON  bool
}

// CreateRecognizeCmd creates the recognize command, which runs a single job
// in the foreground. Ctrl-C cancels the job through the engine's cancel path.
func CreateRecognizeCmd() *cobra.Command {
	opts := DefaultEngineOptions()
	var (
		p        recognizeParams
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "recognize <image|->",
		Short: "Recognize text in one image",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logging.Initialize(logging.Config{Level: logLevel, Output: cmd.ErrOrStderr()})
			logger := logging.GetLogger("recognize")

			if err := opts.load(cmd); err != nil {
				logger.Error("Failed to load config", "error", err)
				os.Exit(exitFailure)
			}
			p.Input = args[0]

			sup := sidecar.New(opts.SupervisorOptions(logging.GetLogger("sidecar")))
			ctx, stop := cancelOnSignal(cmd.Context(), sup, logger)
			err := runRecognize(ctx, sup, opts.Models(), cmd.InOrStdin(), cmd.OutOrStdout(), p)
			stop()

			if code := exitCode(err); code != 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				os.Exit(code)
			}
		},
	}

	addEngineFlags(cmd, &opts)
	cmd.Flags().StringVarP(&p.Model, "model", "m", "", "Model id, default model if empty")
	cmd.Flags().BoolVar(&p.JSON, "json", false, "Print boxes as JSON")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level for stderr output")
	return cmd
}

// runRecognize resolves the model, runs one job and prints the result to out.
func runRecognize(ctx context.Context, sup *sidecar.Supervisor, store *models.Store, in io.Reader, out io.Writer, p recognizeParams) error {
	req, err := buildRequest(ctx, p.Input, in)
	if err != nil {
		return err
	}
	if req.Config, err = store.Resolve(p.Model); err != nil {
		return err
	}

	boxes, err := sup.Run(ctx, req)
	if err != nil {
		return err
	}
	return printBoxes(out, boxes, p.JSON)
}

// buildRequest turns a path into a path request and "-" into a base64
// request read from in. Paths are made absolute because the engine runs
// in its own directory. Reading stdin stops when ctx ends.
func buildRequest(ctx context.Context, input string, in io.Reader) (*ipc.Request, error) {
	if input == "-" {
		data, err := readAll(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: no image data on stdin", sidecar.ErrInvalidRequest)
		}
		return &ipc.Request{Kind: ipc.KindBase64, Data: base64.StdEncoding.EncodeToString(data)}, nil
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", input, err)
	}
	return &ipc.Request{Kind: ipc.KindPath, Data: abs}, nil
}

// readAll reads in to EOF unless ctx ends first. The reader goroutine is
// abandoned in that case; the command exits right after.
func readAll(ctx context.Context, in io.Reader) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(in)
		done <- result{data, err}
	}()
	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func printBoxes(w io.Writer, boxes []ipc.Box, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(boxes)
	}
	for _, b := range boxes {
		if _, err := fmt.Fprintln(w, b.Text); err != nil {
			return err
		}
	}
	return nil
}

// jobCanceller is the part of the supervisor the signal handler needs.
type jobCanceller interface {
	Cancel(ctx context.Context) (bool, error)
}

// cancelOnSignal derives a context that ends on SIGINT or SIGTERM and cancels
// the running job on every such signal. The returned func stops listening.
func cancelOnSignal(parent context.Context, sup jobCanceller, logger *slog.Logger) (context.Context, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, stop := watchSignals(parent, sigCh, sup, logger)
	return ctx, func() {
		signal.Stop(sigCh)
		stop()
	}
}

// watchSignals handles every signal on sigCh until stop is called. The first
// one ends the returned context, so a caller still reading input or waiting
// for the job slot gives up; each one also asks the supervisor to cancel, so
// none is swallowed while a job winds down.
func watchSignals(parent context.Context, sigCh <-chan os.Signal, sup jobCanceller, logger *slog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case sig := <-sigCh:
				logger.Info("Signal received, cancelling job", "signal", sig.String())
				cancel(sidecar.ErrCancelled)
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := sup.Cancel(context.Background()); err != nil {
						logger.Warn("Cancel failed", "error", err)
					}
				}()
			case <-done:
				return
			}
		}
	}()

	return ctx, func() {
		close(done)
		wg.Wait()
		cancel(nil)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	switch sidecar.Classify(err) {
	case sidecar.OutcomeCancelled:
		return exitCancelled
	case sidecar.OutcomeTimedOut:
		return exitTimedOut
	default:
		return exitFailure
	}
}
