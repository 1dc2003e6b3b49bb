package scoring

import (
	"fmt"
	"sort"

	"scoregate/domain/core"
	"scoregate/domain/dataset"
)

// DerivePartitions groups the tournament frame's ids by their data_type
// label. All three labels must be present, every row must carry one of
// them, and ids must be unique. Each partition is ordered by id.
func DerivePartitions(frame *dataset.Frame) (dataset.Partitions, error) {
	ids, ok := frame.Text(dataset.ColumnID)
	if !ok {
		return dataset.Partitions{}, core.NewSchemaError("tournament data", "missing id column")
	}
	labels, ok := frame.Text(dataset.ColumnDataType)
	if !ok {
		return dataset.Partitions{}, core.NewSchemaError("tournament data", "missing data_type column")
	}

	groups := map[string]*dataset.Partition{
		dataset.LabelValidation: {},
		dataset.LabelTest:       {},
		dataset.LabelLive:       {},
	}
	seen := make(map[string]struct{}, len(ids))
	for row, id := range ids {
		if _, dup := seen[id]; dup {
			return dataset.Partitions{}, core.NewDataShapeError("duplicate id %s in tournament data", id)
		}
		seen[id] = struct{}{}

		p, ok := groups[labels[row]]
		if !ok {
			return dataset.Partitions{}, core.NewSchemaError("tournament data", fmt.Sprintf("unknown data_type %q for id %s", labels[row], id))
		}
		p.IDs = append(p.IDs, id)
		p.Rows = append(p.Rows, row)
	}

	for _, label := range dataset.Labels {
		p := groups[label]
		if p.Len() == 0 {
			return dataset.Partitions{}, core.NewSchemaError("tournament data", "no rows labelled "+label)
		}
		sort.Sort(byID{p})
	}

	return dataset.Partitions{
		Validation: *groups[dataset.LabelValidation],
		Test:       *groups[dataset.LabelTest],
		Live:       *groups[dataset.LabelLive],
	}, nil
}

type byID struct{ p *dataset.Partition }

func (b byID) Len() int           { return len(b.p.IDs) }
func (b byID) Less(i, j int) bool { return b.p.IDs[i] < b.p.IDs[j] }
func (b byID) Swap(i, j int) {
	b.p.IDs[i], b.p.IDs[j] = b.p.IDs[j], b.p.IDs[i]
	b.p.Rows[i], b.p.Rows[j] = b.p.Rows[j], b.p.Rows[i]
}
