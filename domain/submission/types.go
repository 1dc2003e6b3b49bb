package submission

import (
	"path"
	"time"

	"scoregate/domain/core"
)

// Round identifies the dataset version and target column a submission is scored against.
type Round struct {
	ID          core.RoundID `json:"id" db:"id"`
	Tournament  int          `json:"tournament" db:"tournament"`
	Number      int          `json:"round_number" db:"round_number"`
	DatasetPath string       `json:"dataset_path" db:"dataset_path"`
}

// Key returns the cache key shared by every submission in this round.
func (r Round) Key() core.RoundKey {
	return core.RoundKey{Tournament: r.Tournament, Round: r.Number}
}

// FileLocation is where an uploaded prediction file lives in object storage.
type FileLocation struct {
	Path     string `db:"path"`
	Filename string `db:"filename"`
}

// Key returns the object key of the file.
func (l FileLocation) Key() string {
	return path.Join(l.Path, l.Filename)
}

// Owner is the round and user a submission belongs to.
type Owner struct {
	RoundID core.RoundID `db:"round_id"`
	UserID  core.UserID  `db:"user_id"`
}

// QueueItem is the payload carried by every queue in the pipeline.
type QueueItem struct {
	SubmissionID core.SubmissionID `json:"submission_id"`
	EnqueueTime  time.Time         `json:"enqueue_time"`
}

// NewQueueItem stamps an item with the current time.
func NewQueueItem(id core.SubmissionID) QueueItem {
	return QueueItem{SubmissionID: id, EnqueueTime: time.Now().UTC()}
}
