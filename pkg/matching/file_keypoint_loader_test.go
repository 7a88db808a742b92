package matching

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileKeypointLoader_LoadsDecodedBlob(t *testing.T) {
	dir := t.TempDir()
	want := KeypointSet{Keypoints: []Keypoint{{X: 1, Y: 2, Descriptor: []float64{0.1, 0.2}}}}
	raw, err := json.Marshal(want)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.json"), raw, 0o600))

	loader := NewFileKeypointLoader(dir)
	got, ok, err := loader.Load(context.Background(), "abc.json")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestFileKeypointLoader_MissingBlobReturnsNotOKNoError(t *testing.T) {
	loader := NewFileKeypointLoader(t.TempDir())
	_, ok, err := loader.Load(context.Background(), "missing.json")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileKeypointLoader_EmptyBlobPathReturnsNotOK(t *testing.T) {
	loader := NewFileKeypointLoader(t.TempDir())
	_, ok, err := loader.Load(context.Background(), "")
	require.NoError(t, err)
	require.False(t, ok)
}
