// Package models resolves locally installed recognition models.
//
// Models live in one directory each under the store root:
//
//	<root>/pp-ocr-v4-ar/
//	    inference.pdmodel
//	    inference.pdiparams
//	    det/   (optional detection model, same layout)
//	    cls/   (optional angle classifier, same layout)
//
// The default model is bundled with the engine and never needs a directory.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smazurov/ocrnode/internal/ipc"
)

// DefaultID is the model the engine ships with.
const DefaultID = "pp-ocr-v4-en"

// Files every installed model directory must contain.
var requiredFiles = []string{"inference.pdmodel", "inference.pdiparams"}

var (
	ErrInvalidID    = errors.New("invalid model id")
	ErrNotInstalled = errors.New("model not installed")
)

// Model describes one known model.
type Model struct {
	ID        string `json:"id"`
	Language  string `json:"language"`
	Dir       string `json:"dir,omitempty"`
	Installed bool   `json:"installed"`
	Default   bool   `json:"default"`
}

// Store finds models under a root directory.
type Store struct {
	root      string
	defaultID string
}

// NewStore creates a store rooted at root. An empty defaultID means DefaultID.
func NewStore(root, defaultID string) *Store {
	if defaultID == "" {
		defaultID = DefaultID
	}
	return &Store{root: root, defaultID: defaultID}
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// DefaultID returns the id of the bundled model.
func (s *Store) DefaultID() string { return s.defaultID }

// LanguageOf returns the language suffix of a model id ("pp-ocr-v4-ar" -> "ar").
func LanguageOf(id string) string {
	if i := strings.LastIndexByte(id, '-'); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func hasModelFiles(dir string) bool {
	for _, name := range requiredFiles {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// Installed reports whether id has a complete model directory. The default
// model is always installed.
func (s *Store) Installed(id string) bool {
	if id == s.defaultID {
		return true
	}
	if !validID(id) || s.root == "" {
		return false
	}
	return hasModelFiles(filepath.Join(s.root, id))
}

// List returns the default model followed by every installed model, sorted by id.
func (s *Store) List() ([]Model, error) {
	list := []Model{{
		ID:        s.defaultID,
		Language:  LanguageOf(s.defaultID),
		Installed: true,
		Default:   true,
	}}
	if s.root == "" {
		return list, nil
	}

	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return list, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}

	var found []Model
	for _, e := range entries {
		if !e.IsDir() || e.Name() == s.defaultID {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		if !hasModelFiles(dir) {
			continue
		}
		found = append(found, Model{
			ID:        e.Name(),
			Language:  LanguageOf(e.Name()),
			Dir:       dir,
			Installed: true,
		})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return append(list, found...), nil
}

// Resolve returns the engine config for id. The default model, and an empty
// id, resolve to nil so the request carries no config at all.
func (s *Store) Resolve(id string) (*ipc.ModelConfig, error) {
	if id == "" || id == s.defaultID {
		return nil, nil
	}
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	dir := filepath.Join(s.root, id)
	if s.root == "" || !hasModelFiles(dir) {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, id)
	}

	cfg := &ipc.ModelConfig{
		Language:            LanguageOf(id),
		RecognitionModelDir: dir,
	}
	if sub := filepath.Join(dir, "det"); hasModelFiles(sub) {
		cfg.DetectionModelDir = sub
	}
	if sub := filepath.Join(dir, "cls"); hasModelFiles(sub) {
		cfg.ClassificationModelDir = sub
	}
	return cfg, nil
}
