package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"time"

	"fraud-classifier-service/internal/core/model"
)

// LatestTag is the mutable alias for the most recently saved tag of a name.
const LatestTag = "latest"

// DefaultMethod is the only inference method a signature can declare.
const DefaultMethod = "predict"

var (
	namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9._-]*[a-z0-9])?$`)
	tagPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
)

// ============================================================================
// Value Objects
// ============================================================================

// Signature declares how the predictor is invoked. Batchable predictors take
// the whole batch along BatchDim in one call; only dimension 0 is supported.
type Signature struct {
	Method    string `json:"method"`
	Batchable bool   `json:"batchable"`
	BatchDim  int    `json:"batch_dim"`
}

func (s Signature) Validate() error {
	if s.Method != "" && s.Method != DefaultMethod {
		return fmt.Errorf("%w: method %q", ErrUnsupportedBatching, s.Method)
	}
	if s.BatchDim != 0 {
		return fmt.Errorf("%w: batch_dim %d", ErrUnsupportedBatching, s.BatchDim)
	}
	return nil
}

// CustomObjects are the auxiliary objects saved alongside a predictor.
// FeatureNames pins the column order the predictor was trained on.
type CustomObjects struct {
	FeatureNames []string `json:"feature_names"`
}

// ArtifactHandle identifies one immutable saved version.
type ArtifactHandle struct {
	Name      string    `json:"name"`
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}

func (h ArtifactHandle) String() string { return h.Name + ":" + h.Tag }

// ============================================================================
// Entities
// ============================================================================

// Artifact bundles a trained predictor with its preprocessing. A (Name, Tag)
// pair is never rewritten once saved.
type Artifact struct {
	Name          string
	Tag           string
	CreatedAt     time.Time
	Labels        map[string]string
	Metadata      map[string]any
	Signature     Signature
	Predictor     model.Predictor
	Preprocessor  *model.Pipeline
	CustomObjects CustomObjects
}

func (a *Artifact) Handle() ArtifactHandle {
	return ArtifactHandle{Name: a.Name, Tag: a.Tag, CreatedAt: a.CreatedAt}
}

// Validate checks everything that can be checked without touching storage.
func (a *Artifact) Validate() error {
	if err := ValidateName(a.Name); err != nil {
		return err
	}
	if err := a.Signature.Validate(); err != nil {
		return err
	}
	if a.Predictor == nil {
		return ErrMissingPredictor
	}
	if a.Preprocessor == nil || a.Preprocessor.Encoder == nil {
		return ErrMissingPreprocessor
	}
	if err := a.Preprocessor.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingPreprocessor, err)
	}
	return a.CheckColumns()
}

// CheckColumns verifies the pinned feature order matches both the
// preprocessor output and the predictor input width.
func (a *Artifact) CheckColumns() error {
	cols := a.Preprocessor.Columns()
	if a.Predictor.NumFeatures() != len(cols) {
		return fmt.Errorf("%w: predictor expects %d, preprocessor produces %d",
			ErrColumnMismatch, a.Predictor.NumFeatures(), len(cols))
	}
	if len(a.CustomObjects.FeatureNames) > 0 && !slices.Equal(cols, a.CustomObjects.FeatureNames) {
		return fmt.Errorf("%w: pinned feature_names differ from preprocessor columns", ErrColumnMismatch)
	}
	return nil
}

func ValidateName(name string) error {
	if name == "" || len(name) > 63 || !namePattern.MatchString(name) {
		return ErrInvalidArtifactName
	}
	return nil
}

func ValidateTag(tag string) error {
	if tag == "" || tag == LatestTag || !tagPattern.MatchString(tag) {
		return ErrInvalidTag
	}
	return nil
}

// ParseRef splits "name[:tag]"; the tag defaults to LatestTag.
func ParseRef(ref string) (name, tag string) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == ':' {
			return ref[:i], ref[i+1:]
		}
	}
	return ref, LatestTag
}

// ============================================================================
// Persistence encoding
// ============================================================================

// EncodedArtifact is the column-wise serialized form shared by the store
// adapters.
type EncodedArtifact struct {
	Name          string
	Tag           string
	CreatedAt     time.Time
	Labels        []byte
	Metadata      []byte
	Signature     []byte
	Predictor     []byte
	Preprocessor  []byte
	CustomObjects []byte
}

func EncodeArtifact(a *Artifact) (*EncodedArtifact, error) {
	enc := &EncodedArtifact{Name: a.Name, Tag: a.Tag, CreatedAt: a.CreatedAt}

	labels := a.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	var err error
	if enc.Labels, err = json.Marshal(labels); err != nil {
		return nil, fmt.Errorf("marshal labels: %w", err)
	}
	if enc.Metadata, err = json.Marshal(metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata is not serializable: %v", ErrValidation, err)
	}
	if enc.Signature, err = json.Marshal(a.Signature); err != nil {
		return nil, fmt.Errorf("marshal signature: %w", err)
	}
	if enc.Predictor, err = model.MarshalPredictor(a.Predictor); err != nil {
		return nil, fmt.Errorf("marshal predictor: %w", err)
	}
	if enc.Preprocessor, err = json.Marshal(a.Preprocessor); err != nil {
		return nil, fmt.Errorf("marshal preprocessor: %w", err)
	}
	if enc.CustomObjects, err = json.Marshal(a.CustomObjects); err != nil {
		return nil, fmt.Errorf("marshal custom objects: %w", err)
	}
	return enc, nil
}

func DecodeArtifact(enc *EncodedArtifact) (*Artifact, error) {
	a := &Artifact{Name: enc.Name, Tag: enc.Tag, CreatedAt: enc.CreatedAt}

	if err := unmarshalOptional(enc.Labels, &a.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	if err := unmarshalOptional(enc.Metadata, &a.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := unmarshalOptional(enc.Signature, &a.Signature); err != nil {
		return nil, fmt.Errorf("unmarshal signature: %w", err)
	}
	if err := unmarshalOptional(enc.CustomObjects, &a.CustomObjects); err != nil {
		return nil, fmt.Errorf("unmarshal custom objects: %w", err)
	}

	predictor, err := model.UnmarshalPredictor(enc.Predictor)
	if err != nil {
		return nil, fmt.Errorf("unmarshal predictor: %w", err)
	}
	a.Predictor = predictor

	var pipeline model.Pipeline
	if err := json.Unmarshal(enc.Preprocessor, &pipeline); err != nil {
		return nil, fmt.Errorf("unmarshal preprocessor: %w", err)
	}
	if err := pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("unmarshal preprocessor: %w", err)
	}
	a.Preprocessor = &pipeline
	return a, nil
}

func unmarshalOptional(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
