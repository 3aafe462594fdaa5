package sidecar

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/smazurov/ocrnode/internal/ipc"
)

const (
	// DefaultThreads caps the numeric libraries inside the engine.
	DefaultThreads = 2

	// pipeDrainDelay bounds how long Wait keeps reading output after the
	// engine exits, in case a forked helper still holds the pipes.
	pipeDrainDelay = 2 * time.Second
)

// threadEnvVars are the thread pool knobs honored by the engine's math libraries.
var threadEnvVars = []string{
	"OMP_NUM_THREADS",
	"MKL_NUM_THREADS",
	"OPENBLAS_NUM_THREADS",
	"NUMEXPR_NUM_THREADS",
	"VECLIB_MAXIMUM_THREADS",
	"FLAGS_cpu_math_library_num_threads",
}

// LauncherOptions configures a Launcher.
type LauncherOptions struct {
	ResourceDir string    // engine lives in <ResourceDir>/binaries
	Executable  string    // explicit engine path, overrides ResourceDir
	Args        []string  // extra engine arguments
	Threads     int       // thread cap, DefaultThreads if zero
	Env         []string  // extra KEY=VALUE pairs
	Throttler   Throttler // NoopThrottler if nil
	Logger      *slog.Logger
}

// Launcher spawns engine processes.
type Launcher struct {
	opts LauncherOptions
}

// NewLauncher creates a Launcher.
func NewLauncher(opts LauncherOptions) *Launcher {
	if opts.Threads <= 0 {
		opts.Threads = DefaultThreads
	}
	if opts.Throttler == nil {
		opts.Throttler = NoopThrottler{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Launcher{opts: opts}
}

// ExecutableName returns the engine file name shipped for goos/goarch.
func ExecutableName(goos, goarch string) string {
	switch goos {
	case "windows":
		return "ocr-engine.exe"
	case "darwin":
		return "ocr-engine"
	default:
		return fmt.Sprintf("ocr-engine-%s-unknown-%s-gnu", targetArch(goarch), goos)
	}
}

func targetArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	case "riscv64":
		return "riscv64gc"
	default:
		return goarch
	}
}

// Path returns the engine path without checking that it exists.
func (l *Launcher) Path() string {
	if l.opts.Executable != "" {
		return l.opts.Executable
	}
	return filepath.Join(l.opts.ResourceDir, "binaries", ExecutableName(runtime.GOOS, runtime.GOARCH))
}

// Resolve returns the engine path or a *LaunchError if it is not a regular file.
func (l *Launcher) Resolve() (string, error) {
	path := l.Path()
	info, err := os.Stat(path)
	if err != nil {
		return "", &LaunchError{Path: path, Err: err}
	}
	if info.IsDir() {
		return "", &LaunchError{Path: path, Err: fmt.Errorf("is a directory")}
	}
	return path, nil
}

func (l *Launcher) environ() []string {
	env := os.Environ()
	threads := strconv.Itoa(l.opts.Threads)
	for _, key := range threadEnvVars {
		env = append(env, key+"="+threads)
	}
	return append(env, l.opts.Env...)
}

// Spawn starts an engine for req. It returns right after the process starts,
// before anything is written: the caller sends the frame with sendRequest so
// that writing can be interrupted. If ctx is done before the start, nothing
// is started and ctx's error is returned.
func (l *Launcher) Spawn(ctx context.Context, jobID string, req *ipc.Request) (*JobHandle, error) {
	path, err := l.Resolve()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(path, l.opts.Args...)
	cmd.Dir = filepath.Dir(path)
	cmd.Env = l.environ()
	cmd.WaitDelay = pipeDrainDelay
	setProcessGroup(cmd)
	l.opts.Throttler.Prepare(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &LaunchError{Path: path, Err: err}
	}

	h := &JobHandle{
		id:        jobID,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    newLimitedBuffer(maxStdoutBytes),
		stderr:    newLimitedBuffer(maxStderrBytes),
		frameSent: make(chan struct{}),
		done:      make(chan struct{}),
	}
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Path: path, Err: err}
	}
	h.startedAt = time.Now()
	h.logger = l.opts.Logger.With("job_id", jobID, "pid", cmd.Process.Pid)
	go h.wait()

	if err := l.opts.Throttler.Apply(cmd.Process.Pid); err != nil {
		h.logger.Warn("Failed to throttle engine", "error", err)
	}

	h.logger.Debug("Engine started", "path", path, "request_type", req.Kind)
	return h, nil
}
