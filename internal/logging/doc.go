// Package logging provides structured logging with per-module levels.
//
// Records go to stdout (text or JSON), to the systemd journal when journald
// is reachable, and to an in-memory history buffer that backs the log stream
// endpoint. Levels can be changed at runtime, either by calling Initialize
// again with a reloaded Config or per module with SetModuleLevel.
//
// Usage:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"sidecar": "debug"},
//	})
//
//	logger := logging.GetLogger("sidecar").With("job_id", id)
//	logger.Info("Job started", "pid", pid)
//
// The module and job_id attributes are promoted to LogEntry fields so a
// job's history can be read back with RingBuffer.ReadJob.
//
// Viewing journal output:
//
//	journalctl -t ocrnode -f
//	journalctl -t ocrnode MODULE=sidecar -p warning
//	journalctl -t ocrnode JOB_ID=6f0c...
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "json"
//
//	[logging.modules]
//	sidecar = "debug"
//	api = "warn"
package logging
