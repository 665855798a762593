package domain

import (
	"bytes"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// pinned accepts "pkg==1.2.3" and "module/path@v1.2.3"; ranges and bare names
// are rejected.
var pinned = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._\-\[\]]*==[0-9][A-Za-z0-9.+\-]*|[A-Za-z0-9][A-Za-z0-9._\-/]*@v[0-9]+\.[0-9]+\.[0-9]+[A-Za-z0-9.+\-]*)$`)

// BuildSpec is the packaging boundary handed to the container build tool.
type BuildSpec struct {
	Service  string            `yaml:"service" json:"service"`
	Labels   map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Include  []string          `yaml:"include" json:"include"`
	Exclude  []string          `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Models   []string          `yaml:"models,omitempty" json:"models,omitempty"`
	Packages []string          `yaml:"packages" json:"packages"`
}

func ParseBuildSpec(data []byte) (*BuildSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s BuildSpec
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBuildSpec, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *BuildSpec) Validate() error {
	if s.Service == "" {
		return fmt.Errorf("%w: service entry point is required", ErrInvalidBuildSpec)
	}
	if len(s.Include) == 0 {
		return fmt.Errorf("%w: include must list at least one path", ErrInvalidBuildSpec)
	}
	for _, p := range s.Packages {
		if !pinned.MatchString(p) {
			return fmt.Errorf("%w: package %q is not pinned to an exact version", ErrInvalidBuildSpec, p)
		}
	}
	for _, ref := range s.Models {
		n, _ := ParseRef(ref)
		if err := ValidateName(n); err != nil {
			return fmt.Errorf("%w: model %q: %v", ErrInvalidBuildSpec, ref, err)
		}
	}
	return nil
}
