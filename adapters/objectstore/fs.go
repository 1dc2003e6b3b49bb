package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/ports"
)

// FSStore serves uploads and datasets straight from a local directory tree:
//
//	<root>/uploads/<path>/<filename>
//	<root>/datasets/<prefix>/numerai_{training,tournament}_data.csv
type FSStore struct {
	root string
}

// NewFSStore creates a file store rooted at root
func NewFSStore(root string) ports.FileStore {
	return &FSStore{root: root}
}

// UploadPath returns where a submission file lives under root.
func UploadPath(root string, loc submission.FileLocation) string {
	return filepath.Join(root, "uploads", filepath.FromSlash(loc.Key()))
}

// DatasetDir returns where a round's dataset lives under root.
func DatasetDir(root string, round submission.Round) string {
	return filepath.Join(root, "datasets", filepath.FromSlash(DatasetPrefix(round)))
}

func (s *FSStore) DownloadSubmission(ctx context.Context, loc submission.FileLocation) (string, error) {
	p := UploadPath(s.root, loc)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", core.NewNotFoundError("submission file", loc.Key())
		}
		return "", core.NewTransientIOError("stat "+p, err)
	}
	return p, nil
}

func (s *FSStore) DownloadRoundDataset(ctx context.Context, round submission.Round) (string, error) {
	dir := DatasetDir(s.root, round)
	for _, name := range DatasetFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			if os.IsNotExist(err) {
				return "", core.NewNotFoundError("dataset file", fmt.Sprintf("%s/%s", DatasetPrefix(round), name))
			}
			return "", core.NewTransientIOError("stat "+dir, err)
		}
	}
	return dir, nil
}

// Cleanup is a no-op: the files are the source of truth, not a cache.
func (s *FSStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, nil
}
