package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/ocrnode/cmd"
	"github.com/smazurov/ocrnode/internal/api"
	"github.com/smazurov/ocrnode/internal/config"
	"github.com/smazurov/ocrnode/internal/events"
	"github.com/smazurov/ocrnode/internal/logging"
	"github.com/smazurov/ocrnode/internal/metrics"
	"github.com/smazurov/ocrnode/internal/metrics/exporters"
	"github.com/smazurov/ocrnode/internal/sidecar"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port             string `help:"Address to listen on" short:"p" default:":8095" toml:"server.port" env:"SERVER_PORT"`
	ServerCORSOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Engine settings
	SidecarResourceDir string `help:"Directory holding binaries/<engine>" default:"." toml:"sidecar.resource_dir" env:"SIDECAR_RESOURCE_DIR"`
	SidecarExecutable  string `help:"Explicit engine path, overrides the resource dir" toml:"sidecar.executable" env:"SIDECAR_EXECUTABLE"`
	SidecarArgs        string `help:"Extra engine arguments, space separated" toml:"sidecar.args" env:"SIDECAR_ARGS"`
	SidecarThreads     int    `help:"Thread cap for the engine's math libraries" default:"2" toml:"sidecar.threads" env:"SIDECAR_THREADS"`
	SidecarNiceness    int    `help:"CPU niceness for the engine, 0 disables" default:"10" toml:"sidecar.niceness" env:"SIDECAR_NICENESS"`
	SidecarIdleIO      bool   `help:"Run the engine in the idle I/O class" default:"true" toml:"sidecar.idle_io" env:"SIDECAR_IDLE_IO"`
	SidecarTimeout     string `help:"Wall-clock limit per job" default:"120s" toml:"sidecar.timeout" env:"SIDECAR_TIMEOUT"`
	SidecarGrace       string `help:"Wait between the cancel token and the kill" default:"500ms" toml:"sidecar.grace" env:"SIDECAR_GRACE"`

	// Model settings
	ModelsDir     string `help:"Directory with installed models" default:"models" toml:"models.dir" env:"MODELS_DIR"`
	ModelsDefault string `help:"Id of the bundled model" toml:"models.default" env:"MODELS_DEFAULT"`

	// Auth settings, disabled while either is empty
	AuthUsername string `help:"Basic auth username" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSidecar string `help:"Supervisor logging level" default:"info" toml:"logging.sidecar" env:"LOGGING_SIDECAR"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

// engineOptions converts the flat server options into the engine settings
// shared with the subcommands.
func (o *Options) engineOptions() (cmd.EngineOptions, error) {
	timeout, err := config.ParseDuration(o.SidecarTimeout)
	if err != nil {
		return cmd.EngineOptions{}, err
	}
	grace, err := config.ParseDuration(o.SidecarGrace)
	if err != nil {
		return cmd.EngineOptions{}, err
	}
	return cmd.EngineOptions{
		Config:        o.Config,
		ResourceDir:   o.SidecarResourceDir,
		Executable:    o.SidecarExecutable,
		Args:          o.SidecarArgs,
		Threads:       o.SidecarThreads,
		Niceness:      o.SidecarNiceness,
		IdleIO:        o.SidecarIdleIO,
		Timeout:       timeout,
		Grace:         grace,
		ModelsDir:     o.ModelsDir,
		ModelsDefault: o.ModelsDefault,
	}, nil
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"sidecar": o.LoggingSidecar,
			"api":     o.LoggingAPI,
			"config":  o.LoggingConfig,
		},
	}
}

// app is the serve command: supervisor, HTTP API and the pieces around them.
type app struct {
	opts       *Options
	logger     *slog.Logger
	supervisor *sidecar.Supervisor
	server     *api.Server
	exporter   *exporters.SSEExporter
	watcher    *config.Watcher[config.Runtime]
}

func newApp(opts *Options) (*app, error) {
	logger := logging.GetLogger("main")

	engine, err := opts.engineOptions()
	if err != nil {
		return nil, err
	}

	eventBus := events.New()

	// Every buffered log line also goes out on the bus for /api/logs/stream.
	var logSeq atomic.Uint64
	logging.SetLogCallback(func(entry logging.LogEntry) {
		eventBus.Publish(api.LogEvent(logSeq.Add(1), entry))
	})

	supOpts := engine.SupervisorOptions(logging.GetLogger("sidecar"))
	events.Observe(eventBus, &supOpts)
	metrics.Observe(&supOpts)
	supervisor := sidecar.New(supOpts)

	server := api.NewServer(&api.Options{
		AuthUsername:      opts.AuthUsername,
		AuthPassword:      opts.AuthPassword,
		CORSOrigin:        opts.ServerCORSOrigin,
		Supervisor:        supervisor,
		Models:            engine.Models(),
		EventBus:          eventBus,
		PrometheusHandler: exporters.HTTPHandler(),
		OnReady: func(addr net.Addr) {
			logger.Info("HTTP server listening", "addr", addr.String())
			notify(logger, daemon.SdNotifyReady)
		},
	})

	a := &app{
		opts:       opts,
		logger:     logger,
		supervisor: supervisor,
		server:     server,
		exporter:   exporters.NewSSEExporter(eventBus),
	}

	configLogger := logging.GetLogger("config")
	a.watcher = config.NewConfigWatcher(opts.Config, config.LoadRuntime, configLogger,
		config.WithErrorHandler[config.Runtime](func(err error) {
			configLogger.Warn("Ignoring invalid config change", "error", err)
		}))
	a.watcher.OnReload(a.applyRuntime)

	return a, nil
}

// applyRuntime applies a reloaded config file to the running process.
func (a *app) applyRuntime(rt config.Runtime) {
	logging.Initialize(rt.Logging)
	a.supervisor.SetTuning(rt.Timeout, rt.Grace)
	timeout, grace := a.supervisor.Tuning()
	a.logger.Info("Configuration reloaded", "timeout", timeout, "grace", grace)
}

func (a *app) start() error {
	a.exporter.Start(context.Background())
	if err := a.watcher.Start(); err != nil {
		a.logger.Warn("Config hot reload disabled", "path", a.opts.Config, "error", err)
	}
	return a.server.Start(a.opts.Port)
}

func (a *app) stop() {
	a.logger.Info("Shutting down server")
	notify(a.logger, daemon.SdNotifyStopping)

	if err := a.server.Stop(); err != nil {
		a.logger.Error("Error stopping HTTP server", "error", err)
	}

	// A job still running is cancelled through the normal path.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cancelled, err := a.supervisor.Cancel(ctx); err != nil {
		a.logger.Warn("Running job did not stop in time", "error", err)
	} else if cancelled {
		a.logger.Info("Cancelled running job")
	}

	if err := a.watcher.Stop(); err != nil {
		a.logger.Debug("Config watcher stop", "error", err)
	}
	a.exporter.Stop()
}

// notify sends a systemd readiness update. Outside systemd it is a no-op.
func notify(logger *slog.Logger, state string) {
	if sent, err := daemon.SdNotify(false, state); err != nil {
		logger.Warn("sd_notify failed", "state", state, "error", err)
	} else if sent {
		logger.Debug("sd_notify sent", "state", state)
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Subcommands run through here too; only the serve hooks do real work
		// so their stdout stays clean.
		var running atomic.Pointer[app]

		hooks.OnStart(func() {
			if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
				slog.Warn("Failed to load config", "error", loadErr)
			}
			logging.Initialize(opts.loggingConfig())
			logger := logging.GetLogger("main")

			a, err := newApp(opts)
			if err != nil {
				logger.Error("Invalid configuration", "error", err)
				os.Exit(1)
			}
			running.Store(a)

			logger.Info("Starting ocrnode", "port", opts.Port, "config", opts.Config)
			if startErr := a.start(); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if a := running.Load(); a != nil {
				a.stop()
			}
		})
	})

	cli.Root().Use = "ocrnode"
	cli.Root().Short = "Supervised OCR engine service"

	cli.Root().AddCommand(cmd.CreateRecognizeCmd())
	cli.Root().AddCommand(cmd.CreateModelsCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())
	cli.Root().AddCommand(cmd.CreateEngineStubCmd())

	// Run the CLI
	cli.Run()
}
