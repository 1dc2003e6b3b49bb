package objectstore

import (
	"path"
	"strconv"

	"scoregate/domain/dataset"
	"scoregate/domain/submission"
)

// DatasetFiles are the objects fetched for every round.
var DatasetFiles = []string{dataset.TrainingFile, dataset.TournamentFile}

// DatasetPrefix returns the object prefix holding a round's dataset: the
// round's dataset_path when set, otherwise "<tournament>/<round>".
func DatasetPrefix(round submission.Round) string {
	if round.DatasetPath != "" {
		return path.Clean(round.DatasetPath)
	}
	return path.Join(strconv.Itoa(round.Tournament), strconv.Itoa(round.Number))
}
