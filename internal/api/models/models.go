package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Operating system and architecture"`
	Engine    string `json:"engine" example:"ocr-engine-x86_64-unknown-linux-gnu" doc:"Engine file name for this platform"`
}

type VersionResponse struct {
	Body VersionData
}

// OCR models
type OCRRequestData struct {
	Type  string `json:"type" enum:"path,base64" example:"path" doc:"How data is interpreted: a file path or a base64-encoded image"`
	Data  string `json:"data" minLength:"1" example:"/tmp/screenshot.png" doc:"Image path or base64 payload"`
	Model string `json:"model,omitempty" example:"pp-ocr-v4-ar" doc:"Model id; the bundled model when empty"`
}

type OCRRequest struct {
	Body OCRRequestData
}

type BoxData struct {
	Text       string       `json:"text" example:"Hello" doc:"Recognized text"`
	Box        [][2]float64 `json:"box" doc:"Polygon vertices as [x, y] pairs"`
	Confidence float64      `json:"confidence" example:"0.97" doc:"Recognition confidence"`
}

type OCRData struct {
	Boxes      []BoxData `json:"boxes" doc:"Recognized text regions"`
	Count      int       `json:"count" example:"3" doc:"Number of regions"`
	DurationMs int64     `json:"duration_ms" example:"840" doc:"Time spent waiting for and running the job"`
}

type OCRResponse struct {
	Body OCRData
}

type CancelData struct {
	Cancelled bool   `json:"cancelled" example:"true" doc:"Whether a job was found and cancelled"`
	Message   string `json:"message" example:"job cancelled" doc:"Status message"`
}

type CancelResponse struct {
	Body CancelData
}

type JobStatusData struct {
	State       string     `json:"state" example:"running" doc:"Current job state"`
	JobID       string     `json:"job_id,omitempty" doc:"Current job identifier"`
	PID         int        `json:"pid,omitempty" example:"4242" doc:"Engine process id"`
	StartedAt   *time.Time `json:"started_at,omitempty" doc:"When the engine was started"`
	Waiting     int        `json:"waiting" example:"0" doc:"Callers queued behind the current job"`
	TimeoutMs   int64      `json:"timeout_ms" example:"120000" doc:"Wall-clock limit per job"`
	GraceMs     int64      `json:"grace_ms" example:"500" doc:"Wait between the cancel token and the kill"`
	LastJobID   string     `json:"last_job_id,omitempty" doc:"Most recently finished job"`
	LastState   string     `json:"last_state,omitempty" example:"completed" doc:"Terminal state of the last job"`
	LastOutcome string     `json:"last_outcome,omitempty" example:"success" doc:"Outcome of the last job"`
	LastError   string     `json:"last_error,omitempty" doc:"Error of the last job"`
	LastEndedAt *time.Time `json:"last_ended_at,omitempty" doc:"When the last job finished"`
}

type JobStatusResponse struct {
	Body JobStatusData
}

// Model store models
type ModelData struct {
	ID        string `json:"id" example:"pp-ocr-v4-ar" doc:"Model identifier"`
	Language  string `json:"language" example:"ar" doc:"Recognition language"`
	Installed bool   `json:"installed" example:"true" doc:"Whether the model files are present"`
	Default   bool   `json:"default" example:"false" doc:"Whether this is the bundled model"`
}

type ModelListData struct {
	Models []ModelData `json:"models" doc:"Known models"`
	Count  int         `json:"count" example:"2" doc:"Number of models"`
}

type ModelListResponse struct {
	Body ModelListData
}
