package ports

import (
	"context"
	"time"

	"scoregate/domain/submission"
)

// FileStore fetches uploaded prediction files and round datasets to local disk
type FileStore interface {
	// DownloadSubmission returns a local path to the prediction file.
	DownloadSubmission(ctx context.Context, loc submission.FileLocation) (string, error)
	// DownloadRoundDataset returns a local directory holding the round's
	// training and tournament files.
	DownloadRoundDataset(ctx context.Context, round submission.Round) (string, error)
	// Cleanup removes local copies older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}
