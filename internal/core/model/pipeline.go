package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Record is one decoded input row keyed by field name.
type Record map[string]any

// FieldError reports a record that cannot be assembled into a feature row.
type FieldError struct {
	Record int
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("record %d: field %q: %s", e.Record, e.Field, e.Reason)
}

var ErrInvalidPipeline = errors.New("invalid feature pipeline")

// Pipeline turns records into the numeric matrix a predictor consumes:
// categorical fields are one-hot encoded, then numeric fields are appended
// unchanged. Columns() is the pinned column order.
type Pipeline struct {
	Encoder *OneHotEncoder `json:"encoder"`
	Numeric []string       `json:"numeric"`
}

func NewPipeline(encoder *OneHotEncoder, numeric []string) (*Pipeline, error) {
	p := &Pipeline{Encoder: encoder, Numeric: append([]string(nil), numeric...)}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) Validate() error {
	if p.Encoder == nil {
		return fmt.Errorf("%w: no encoder", ErrInvalidPipeline)
	}
	seen := make(map[string]bool)
	for _, f := range p.Encoder.features {
		seen[f] = true
	}
	for _, f := range p.Numeric {
		if f == "" {
			return fmt.Errorf("%w: unnamed numeric field", ErrInvalidPipeline)
		}
		if seen[f] {
			return fmt.Errorf("%w: field %q declared twice", ErrInvalidPipeline, f)
		}
		seen[f] = true
	}
	return nil
}

// Categorical lists the fields routed through the encoder.
func (p *Pipeline) Categorical() []string { return p.Encoder.Features() }

func (p *Pipeline) Width() int { return p.Encoder.Width() + len(p.Numeric) }

func (p *Pipeline) Columns() []string {
	return append(p.Encoder.FeatureNamesOut(), p.Numeric...)
}

// Assemble builds a len(records) x Width() matrix. Absent or null categorical
// values become MissingMarker; numeric fields are required. Unknown fields
// are ignored.
func (p *Pipeline) Assemble(records []Record) (*mat.Dense, error) {
	if len(records) == 0 {
		return nil, errors.New("assemble: empty batch")
	}

	encWidth := p.Encoder.Width()
	out := mat.NewDense(len(records), p.Width(), nil)
	values := make([]string, len(p.Encoder.features))
	for r, rec := range records {
		for i, f := range p.Encoder.features {
			v, err := categoricalValue(rec[f])
			if err != nil {
				return nil, &FieldError{Record: r, Field: f, Reason: err.Error()}
			}
			values[i] = v
		}

		row := out.RawRowView(r)
		p.Encoder.EncodeRow(row[:encWidth], values)

		for j, f := range p.Numeric {
			raw, ok := rec[f]
			if !ok {
				return nil, &FieldError{Record: r, Field: f, Reason: "missing required field"}
			}
			v, err := numericValue(raw)
			if err != nil {
				return nil, &FieldError{Record: r, Field: f, Reason: err.Error()}
			}
			row[encWidth+j] = v
		}
	}
	return out, nil
}

func categoricalValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return MissingMarker, nil
	case string:
		return t, nil
	case bool:
		if t {
			return "True", nil
		}
		return "False", nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", fmt.Errorf("unsupported categorical value of type %T", v)
	}
}

func numericValue(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, errors.New("value is null")
	case float64:
		return t, nil
	case json.Number:
		return t.Float64()
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
