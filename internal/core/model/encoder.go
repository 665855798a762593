package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// MissingMarker stands in for absent categorical values before encoding.
const MissingMarker = "<NA>"

var ErrInvalidEncoder = errors.New("invalid one-hot encoder")

// OneHotEncoder maps each categorical feature to a block of indicator
// columns. Values outside the fitted categories encode as an all-zero block.
// The lookup index is built at construction, so an encoder is read-only and
// safe for concurrent use afterwards.
type OneHotEncoder struct {
	features   []string
	categories [][]string
	offsets    []int
	index      []map[string]int
	width      int
}

type encoderJSON struct {
	Features   []string   `json:"features"`
	Categories [][]string `json:"categories"`
}

func NewOneHotEncoder(features []string, categories [][]string) (*OneHotEncoder, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features", ErrInvalidEncoder)
	}
	if len(features) != len(categories) {
		return nil, fmt.Errorf("%w: %d features but %d category lists", ErrInvalidEncoder, len(features), len(categories))
	}

	e := &OneHotEncoder{
		features:   append([]string(nil), features...),
		categories: make([][]string, len(categories)),
		offsets:    make([]int, len(features)),
		index:      make([]map[string]int, len(features)),
	}
	seen := make(map[string]bool, len(features))
	for i, f := range features {
		if f == "" {
			return nil, fmt.Errorf("%w: feature %d has no name", ErrInvalidEncoder, i)
		}
		if seen[f] {
			return nil, fmt.Errorf("%w: duplicate feature %q", ErrInvalidEncoder, f)
		}
		seen[f] = true

		cats := append([]string(nil), categories[i]...)
		idx := make(map[string]int, len(cats))
		for j, c := range cats {
			if _, dup := idx[c]; dup {
				return nil, fmt.Errorf("%w: duplicate category %q for %q", ErrInvalidEncoder, c, f)
			}
			idx[c] = j
		}
		e.categories[i] = cats
		e.index[i] = idx
		e.offsets[i] = e.width
		e.width += len(cats)
	}
	if e.width == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidEncoder)
	}
	return e, nil
}

// FitOneHotEncoder collects the sorted distinct values of each column of rows.
func FitOneHotEncoder(features []string, rows [][]string) (*OneHotEncoder, error) {
	sets := make([]map[string]struct{}, len(features))
	for i := range sets {
		sets[i] = map[string]struct{}{}
	}
	for r, row := range rows {
		if len(row) != len(features) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrInvalidEncoder, r, len(row), len(features))
		}
		for i, v := range row {
			sets[i][v] = struct{}{}
		}
	}

	categories := make([][]string, len(features))
	for i, set := range sets {
		cats := make([]string, 0, len(set))
		for v := range set {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		categories[i] = cats
	}
	return NewOneHotEncoder(features, categories)
}

func (e *OneHotEncoder) Features() []string { return append([]string(nil), e.features...) }

func (e *OneHotEncoder) Categories(feature int) []string {
	return append([]string(nil), e.categories[feature]...)
}

// Width is the number of indicator columns produced per row.
func (e *OneHotEncoder) Width() int { return e.width }

// FeatureNamesOut names the output columns "<feature>_<category>" in encoding
// order.
func (e *OneHotEncoder) FeatureNamesOut() []string {
	names := make([]string, 0, e.width)
	for i, f := range e.features {
		for _, c := range e.categories[i] {
			names = append(names, f+"_"+c)
		}
	}
	return names
}

// EncodeRow writes the indicator columns for values into dst[0:Width()].
// dst must be zeroed by the caller.
func (e *OneHotEncoder) EncodeRow(dst []float64, values []string) {
	for i, v := range values {
		if j, ok := e.index[i][v]; ok {
			dst[e.offsets[i]+j] = 1
		}
	}
}

// Transform encodes rows, each holding one value per feature.
func (e *OneHotEncoder) Transform(rows [][]string) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, errors.New("transform: no rows")
	}
	out := mat.NewDense(len(rows), e.width, nil)
	for r, row := range rows {
		if len(row) != len(e.features) {
			return nil, fmt.Errorf("transform: row %d has %d values, want %d", r, len(row), len(e.features))
		}
		e.EncodeRow(out.RawRowView(r), row)
	}
	return out, nil
}

func (e *OneHotEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderJSON{Features: e.features, Categories: e.categories})
}

func (e *OneHotEncoder) UnmarshalJSON(data []byte) error {
	var raw encoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewOneHotEncoder(raw.Features, raw.Categories)
	if err != nil {
		return err
	}
	*e = *built
	return nil
}
