package ipc

import (
	"encoding/json"
	"fmt"
)

// RequestKind tells the engine how to interpret Request.Data.
type RequestKind string

// Request kinds understood by the engine.
const (
	KindPath   RequestKind = "path"   // Data is a filesystem path to an image
	KindBase64 RequestKind = "base64" // Data is a base64-encoded image
)

// Request is the frame written to the engine's stdin once, right after spawn.
type Request struct {
	Kind   RequestKind  `json:"type"`
	Data   string       `json:"data"`
	Config *ModelConfig `json:"config,omitempty"` // only for non-default models
}

// Validate checks that the request can be sent to an engine.
func (r *Request) Validate() error {
	switch r.Kind {
	case KindPath, KindBase64:
	default:
		return fmt.Errorf("unsupported request type: %q", r.Kind)
	}
	if r.Data == "" {
		return fmt.Errorf("request data is empty")
	}
	return nil
}

// ModelConfig overrides the engine's bundled models.
type ModelConfig struct {
	Language               string `json:"lang,omitempty"`
	DetectionModelDir      string `json:"det_model_dir,omitempty"`
	RecognitionModelDir    string `json:"rec_model_dir,omitempty"`
	ClassificationModelDir string `json:"cls_model_dir,omitempty"`
}

// Point is a polygon vertex, encoded as [x, y].
type Point [2]float64

// X returns the horizontal coordinate.
func (p Point) X() float64 { return p[0] }

// Y returns the vertical coordinate.
func (p Point) Y() float64 { return p[1] }

// DefaultConfidence is used when the engine omits a box's confidence.
const DefaultConfidence = 1.0

// Box is one recognized text region.
type Box struct {
	Text       string  `json:"text"`
	Polygon    []Point `json:"box"`
	Confidence float64 `json:"confidence"`
}

// UnmarshalJSON fills Confidence with DefaultConfidence when the key is absent or null.
func (b *Box) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text       *string  `json:"text"`
		Polygon    []Point  `json:"box"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Text == nil {
		return fmt.Errorf("box missing required field: text")
	}
	b.Text = *raw.Text
	b.Polygon = raw.Polygon
	b.Confidence = DefaultConfidence
	if raw.Confidence != nil {
		b.Confidence = *raw.Confidence
	}
	return nil
}

// errorShape is the failure document an engine writes to stdout.
type errorShape struct {
	Error *string `json:"error"`
}
