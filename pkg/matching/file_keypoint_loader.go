package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileKeypointLoader resolves kp_blob_path against a root directory on
// local disk. The upstream keypoint-extraction workers (out of scope here,
// spec.md §1) write one JSON-encoded KeypointSet per blob, content-addressed
// and write-once; this loader only ever reads.
//
// No object-storage client appears anywhere in the retrieved corpus, so
// this stays on encoding/json + os.ReadFile rather than reaching for a
// library nothing else in the stack uses.
type FileKeypointLoader struct {
	root string
}

// NewFileKeypointLoader builds a loader rooted at root. blobPath values
// passed to Load are resolved relative to root; an absolute blobPath is
// used as-is.
func NewFileKeypointLoader(root string) *FileKeypointLoader {
	return &FileKeypointLoader{root: root}
}

// Load implements KeypointLoader.
func (l *FileKeypointLoader) Load(_ context.Context, blobPath string) (KeypointSet, bool, error) {
	if blobPath == "" {
		return KeypointSet{}, false, nil
	}

	path := blobPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.root, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return KeypointSet{}, false, nil
		}
		return KeypointSet{}, false, fmt.Errorf("matching: load keypoint blob %q: %w", blobPath, err)
	}

	var set KeypointSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return KeypointSet{}, false, fmt.Errorf("matching: decode keypoint blob %q: %w", blobPath, err)
	}
	return set, true, nil
}

var _ KeypointLoader = (*FileKeypointLoader)(nil)
