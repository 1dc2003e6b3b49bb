package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"

	"scoregate/adapters/objectstore"
	"scoregate/domain/dataset"
	"scoregate/domain/submission"
	datasetio "scoregate/internal/dataset"
)

// TournamentGeneratorConfig configures the synthetic round generator
type TournamentGeneratorConfig struct {
	Seed           int64    `json:"seed"`
	Features       int      `json:"features"`
	TrainingRows   int      `json:"training_rows"`
	ValidationEras int      `json:"validation_eras"`
	RowsPerEra     int      `json:"rows_per_era"`
	TestRows       int      `json:"test_rows"`
	LiveRows       int      `json:"live_rows"`
	Targets        []string `json:"targets"`
	// Noise is the standard deviation added to the feature signal before
	// the target threshold is applied.
	Noise float64 `json:"noise"`
}

// DefaultTournamentConfig returns sensible defaults for round generation
func DefaultTournamentConfig() TournamentGeneratorConfig {
	return TournamentGeneratorConfig{
		Seed:           42,
		Features:       6,
		TrainingRows:   400,
		ValidationEras: 12,
		RowsPerEra:     25,
		TestRows:       150,
		LiveRows:       150,
		Targets: []string{
			"target_bernie", "target_elizabeth", "target_jordan",
			"target_ken", "target_charles", "target_frank", "target_hillary",
		},
		Noise: 0.1,
	}
}

// GeneratedRound is one synthetic round: a training frame and a tournament
// frame whose data_type column splits rows into validation, test and live.
type GeneratedRound struct {
	Training   *dataset.Frame
	Tournament *dataset.Frame
	// Signal is the noise-free score behind each tournament row's targets.
	Signal []float64
}

// TournamentGenerator produces deterministic rounds from a seed
type TournamentGenerator struct {
	config TournamentGeneratorConfig
	rng    *rand.Rand
}

// NewTournamentGenerator creates a new round generator
func NewTournamentGenerator(config TournamentGeneratorConfig) *TournamentGenerator {
	return &TournamentGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Rand exposes the generator's random source for prediction helpers.
func (g *TournamentGenerator) Rand() *rand.Rand { return g.rng }

// Generate builds both frames of a round
func (g *TournamentGenerator) Generate() *GeneratedRound {
	training := g.newFrame()
	for i := 0; i < g.config.TrainingRows; i++ {
		g.appendRow(training, fmt.Sprintf("t%05d", i), fmt.Sprintf("era%d", 1+i*120/max(g.config.TrainingRows, 1)), "train", false)
	}
	training.SetRows(g.config.TrainingRows)

	tournament := g.newFrame()
	var signal []float64
	n := 0
	add := func(era, label string, live bool) {
		signal = append(signal, g.appendRow(tournament, fmt.Sprintf("n%05d", n), era, label, live))
		n++
	}
	for e := 0; e < g.config.ValidationEras; e++ {
		for r := 0; r < g.config.RowsPerEra; r++ {
			add(fmt.Sprintf("era%d", 121+e), dataset.LabelValidation, false)
		}
	}
	for i := 0; i < g.config.TestRows; i++ {
		add("eraX", dataset.LabelTest, false)
	}
	for i := 0; i < g.config.LiveRows; i++ {
		add("eraX", dataset.LabelLive, true)
	}
	tournament.SetRows(n)

	return &GeneratedRound{Training: training, Tournament: tournament, Signal: signal}
}

func (g *TournamentGenerator) newFrame() *dataset.Frame {
	header := []string{dataset.ColumnID, dataset.ColumnEra, dataset.ColumnDataType}
	for i := 1; i <= g.config.Features; i++ {
		header = append(header, fmt.Sprintf("feature%d", i))
	}
	header = append(header, g.config.Targets...)
	return dataset.NewFrame(header)
}

// appendRow adds one row and returns its noise-free signal. Features are
// quantized to quarters the way the published tournament files are.
func (g *TournamentGenerator) appendRow(f *dataset.Frame, id, era, label string, live bool) float64 {
	f.Strings[dataset.ColumnID] = append(f.Strings[dataset.ColumnID], id)
	f.Strings[dataset.ColumnEra] = append(f.Strings[dataset.ColumnEra], era)
	f.Strings[dataset.ColumnDataType] = append(f.Strings[dataset.ColumnDataType], label)

	var sum float64
	for i := 1; i <= g.config.Features; i++ {
		v := float64(g.rng.Intn(5)) / 4
		sum += v
		name := fmt.Sprintf("feature%d", i)
		f.Numbers[name] = append(f.Numbers[name], v)
	}
	signal := sum / math.Max(float64(g.config.Features), 1)
	for _, target := range g.config.Targets {
		y := math.NaN()
		if !live {
			y = 0
			if signal+g.rng.NormFloat64()*g.config.Noise > 0.5 {
				y = 1
			}
		}
		f.Numbers[target] = append(f.Numbers[target], y)
	}
	return signal
}

// IDs returns the tournament ids carrying a data_type label, in file order.
func (r *GeneratedRound) IDs(label string) []string {
	ids := r.Tournament.Strings[dataset.ColumnID]
	labels := r.Tournament.Strings[dataset.ColumnDataType]
	var out []string
	for i, l := range labels {
		if l == label {
			out = append(out, ids[i])
		}
	}
	return out
}

// AllIDs returns every tournament id in file order.
func (r *GeneratedRound) AllIDs() []string {
	return append([]string(nil), r.Tournament.Strings[dataset.ColumnID]...)
}

// Predictions maps every tournament row through fn, producing the
// probability column of a submission.
func (r *GeneratedRound) Predictions(fn func(i int, signal float64) float64) []float64 {
	out := make([]float64, len(r.Signal))
	for i, s := range r.Signal {
		out[i] = fn(i, s)
	}
	return out
}

// WriteTo stores the round's files where an FSStore rooted at root expects them.
func (r *GeneratedRound) WriteTo(root string, round submission.Round) error {
	dir := objectstore.DatasetDir(root, round)
	if err := datasetio.WriteFrameFile(filepath.Join(dir, dataset.TrainingFile), r.Training); err != nil {
		return err
	}
	return datasetio.WriteFrameFile(filepath.Join(dir, dataset.TournamentFile), r.Tournament)
}

// PredictionFrame builds a submission file body from ids and probabilities
func PredictionFrame(ids []string, probs []float64) *dataset.Frame {
	f := dataset.NewFrame([]string{dataset.ColumnID, dataset.ColumnProbability})
	f.Strings[dataset.ColumnID] = append([]string(nil), ids...)
	f.Numbers[dataset.ColumnProbability] = append([]float64(nil), probs...)
	f.SetRows(len(ids))
	return f
}

// WritePredictions stores a submission file where an FSStore rooted at root expects it.
func WritePredictions(root string, loc submission.FileLocation, ids []string, probs []float64) error {
	return datasetio.WriteFrameFile(objectstore.UploadPath(root, loc), PredictionFrame(ids, probs))
}
