package scoring

import (
	"context"
	"path/filepath"

	"scoregate/domain/core"
	"scoregate/domain/dataset"
	"scoregate/domain/submission"
	"scoregate/internal"
	"scoregate/internal/cache"
	datasetio "scoregate/internal/dataset"
	"scoregate/ports"
)

// RoundData downloads, parses and partitions round datasets, keeping the
// most recent rounds in memory.
type RoundData struct {
	files ports.FileStore
	cache *cache.Cache[core.RoundKey, *dataset.Round]
	log   *internal.Logger
}

// NewRoundData creates a round dataset provider holding size rounds
func NewRoundData(files ports.FileStore, size int, recorder cache.Recorder, log *internal.Logger) (*RoundData, error) {
	c, err := cache.New[core.RoundKey, *dataset.Round]("datasets", size, recorder)
	if err != nil {
		return nil, err
	}
	return &RoundData{files: files, cache: c, log: log.Component("rounddata")}, nil
}

// Get returns the parsed dataset of a round.
func (r *RoundData) Get(ctx context.Context, round submission.Round) (*dataset.Round, error) {
	return r.cache.GetOrCompute(ctx, round.Key(), func(ctx context.Context) (*dataset.Round, error) {
		dir, err := r.files.DownloadRoundDataset(ctx, round)
		if err != nil {
			return nil, err
		}
		r.log.Info("loading dataset for %s from %s", round.Key(), dir)
		return LoadRound(dir)
	})
}

// Invalidate forgets a round, forcing the next Get to reload it.
func (r *RoundData) Invalidate(key core.RoundKey) {
	r.cache.Invalidate(key)
}

// LoadRound parses the training and tournament files in dir and derives
// the tournament partitions.
func LoadRound(dir string) (*dataset.Round, error) {
	training, err := datasetio.ReadFrameFile(filepath.Join(dir, dataset.TrainingFile))
	if err != nil {
		return nil, err
	}
	tournament, err := datasetio.ReadFrameFile(filepath.Join(dir, dataset.TournamentFile))
	if err != nil {
		return nil, err
	}
	parts, err := DerivePartitions(tournament)
	if err != nil {
		return nil, err
	}
	return &dataset.Round{Training: training, Tournament: tournament, Partitions: parts}, nil
}
