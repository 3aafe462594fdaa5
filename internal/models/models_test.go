package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smazurov/ocrnode/internal/ipc"
)

func installModel(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range requiredFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func TestLanguageOf(t *testing.T) {
	require.Equal(t, "en", LanguageOf("pp-ocr-v4-en"))
	require.Equal(t, "ar", LanguageOf("pp-ocr-v4-ar"))
	require.Equal(t, "custom", LanguageOf("custom"))
	require.Equal(t, "trailing-", LanguageOf("trailing-"))
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	installModel(t, filepath.Join(root, "pp-ocr-v4-ar"))
	installModel(t, filepath.Join(root, "pp-ocr-v4-zh"))
	installModel(t, filepath.Join(root, "pp-ocr-v4-zh", "det"))
	installModel(t, filepath.Join(root, "pp-ocr-v4-zh", "cls"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pp-ocr-v4-fr"), 0o755))

	s := NewStore(root, "")

	tests := []struct {
		name    string
		id      string
		want    *ipc.ModelConfig
		wantErr error
	}{
		{name: "empty id", id: ""},
		{name: "default", id: DefaultID},
		{
			name: "installed",
			id:   "pp-ocr-v4-ar",
			want: &ipc.ModelConfig{
				Language:            "ar",
				RecognitionModelDir: filepath.Join(root, "pp-ocr-v4-ar"),
			},
		},
		{
			name: "installed with detection and classifier",
			id:   "pp-ocr-v4-zh",
			want: &ipc.ModelConfig{
				Language:               "zh",
				RecognitionModelDir:    filepath.Join(root, "pp-ocr-v4-zh"),
				DetectionModelDir:      filepath.Join(root, "pp-ocr-v4-zh", "det"),
				ClassificationModelDir: filepath.Join(root, "pp-ocr-v4-zh", "cls"),
			},
		},
		{name: "incomplete", id: "pp-ocr-v4-fr", wantErr: ErrNotInstalled},
		{name: "unknown", id: "pp-ocr-v4-de", wantErr: ErrNotInstalled},
		{name: "path traversal", id: "../etc", wantErr: ErrInvalidID},
		{name: "dot dot", id: "..", wantErr: ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Resolve(tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	installModel(t, filepath.Join(root, "pp-ocr-v4-zh"))
	installModel(t, filepath.Join(root, "pp-ocr-v4-ar"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "partial"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), nil, 0o644))

	list, err := NewStore(root, "").List()
	require.NoError(t, err)

	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{DefaultID, "pp-ocr-v4-ar", "pp-ocr-v4-zh"}, ids)
	require.True(t, list[0].Default)
	require.Empty(t, list[0].Dir)
	require.Equal(t, "ar", list[1].Language)
}

func TestListMissingRoot(t *testing.T) {
	list, err := NewStore(filepath.Join(t.TempDir(), "missing"), "").List()
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestInstalled(t *testing.T) {
	root := t.TempDir()
	installModel(t, filepath.Join(root, "pp-ocr-v4-ar"))
	s := NewStore(root, "custom-default")

	require.True(t, s.Installed("custom-default"))
	require.True(t, s.Installed("pp-ocr-v4-ar"))
	require.False(t, s.Installed(DefaultID))
	require.False(t, s.Installed("../pp-ocr-v4-ar"))
}
