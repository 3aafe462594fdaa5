// Package cmd holds the ocrnode subcommands.
package cmd

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/ocrnode/internal/config"
	"github.com/smazurov/ocrnode/internal/models"
	"github.com/smazurov/ocrnode/internal/sidecar"
)

// EngineOptions selects and tunes the engine. Field names map to flags
// ("ResourceDir" -> --resource-dir); tags map to the config file and env.
type EngineOptions struct {
	Config string

	ResourceDir   string        `toml:"sidecar.resource_dir" env:"SIDECAR_RESOURCE_DIR"`
	Executable    string        `toml:"sidecar.executable" env:"SIDECAR_EXECUTABLE"`
	Args          string        `toml:"sidecar.args" env:"SIDECAR_ARGS"` // space separated
	Threads       int           `toml:"sidecar.threads" env:"SIDECAR_THREADS"`
	Niceness      int           `toml:"sidecar.niceness" env:"SIDECAR_NICENESS"`
	IdleIO        bool          `toml:"sidecar.idle_io" env:"SIDECAR_IDLE_IO"`
	Timeout       time.Duration `toml:"sidecar.timeout" env:"SIDECAR_TIMEOUT"`
	Grace         time.Duration `toml:"sidecar.grace" env:"SIDECAR_GRACE"`
	ModelsDir     string        `toml:"models.dir" env:"MODELS_DIR"`
	ModelsDefault string        `toml:"models.default" env:"MODELS_DEFAULT"`
}

// DefaultEngineOptions returns the values used when nothing is configured.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Config:      "config.toml",
		ResourceDir: ".",
		Threads:     sidecar.DefaultThreads,
		Niceness:    10,
		IdleIO:      true,
		Timeout:     sidecar.DefaultTimeout,
		Grace:       sidecar.DefaultGrace,
		ModelsDir:   "models",
	}
}

func addEngineFlags(cmd *cobra.Command, o *EngineOptions) {
	f := cmd.Flags()
	f.StringVarP(&o.Config, "config", "c", o.Config, "Path to configuration file")
	f.StringVar(&o.ResourceDir, "resource-dir", o.ResourceDir, "Directory holding binaries/<engine>")
	f.StringVar(&o.Executable, "executable", o.Executable, "Explicit engine path, overrides --resource-dir")
	f.StringVar(&o.Args, "args", o.Args, "Extra engine arguments, space separated")
	f.IntVar(&o.Threads, "threads", o.Threads, "Thread cap for the engine's math libraries")
	f.IntVar(&o.Niceness, "niceness", o.Niceness, "CPU niceness for the engine, 0 disables")
	f.BoolVar(&o.IdleIO, "idle-io", o.IdleIO, "Run the engine in the idle I/O class where supported")
	f.DurationVar(&o.Timeout, "timeout", o.Timeout, "Wall-clock limit per job")
	f.DurationVar(&o.Grace, "grace", o.Grace, "Wait between the cancel token and the kill")
	f.StringVar(&o.ModelsDir, "models-dir", o.ModelsDir, "Directory with installed models")
	f.StringVar(&o.ModelsDefault, "models-default", o.ModelsDefault, "Id of the bundled model")
}

// load applies the config file and environment under any flags set on cmd.
func (o *EngineOptions) load(cmd *cobra.Command) error {
	return config.LoadConfig(o, cmd)
}

// Launcher builds the process launcher for these options.
func (o *EngineOptions) Launcher(logger *slog.Logger) *sidecar.Launcher {
	return sidecar.NewLauncher(sidecar.LauncherOptions{
		ResourceDir: o.ResourceDir,
		Executable:  o.Executable,
		Args:        strings.Fields(o.Args),
		Threads:     o.Threads,
		Throttler:   sidecar.NewThrottler(sidecar.ThrottleOptions{Niceness: o.Niceness, IdleIO: o.IdleIO}),
		Logger:      logger,
	})
}

// SupervisorOptions returns supervisor options wired to a launcher. Callers
// may chain observers onto the hooks before calling sidecar.New.
func (o *EngineOptions) SupervisorOptions(logger *slog.Logger) sidecar.Options {
	return sidecar.Options{
		Spawner: o.Launcher(logger),
		Timeout: o.Timeout,
		Grace:   o.Grace,
		Logger:  logger,
	}
}

// Models returns the model store.
func (o *EngineOptions) Models() *models.Store {
	return models.NewStore(o.ModelsDir, o.ModelsDefault)
}
