package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IntegrationSpec is the serialized form of an integration.
type IntegrationSpec struct {
	Name string `koanf:"name" yaml:"name" json:"name"`
	Kind Kind   `koanf:"kind" yaml:"kind" json:"kind"`
}

// PredictorSpec is the serialized form of a predictor. Name may be
// namespace.name, in which case Integration may be omitted.
type PredictorSpec struct {
	Name        string   `koanf:"name" yaml:"name" json:"name"`
	Integration string   `koanf:"integration" yaml:"integration,omitempty" json:"integration,omitempty"`
	Timeseries  bool     `koanf:"timeseries" yaml:"timeseries,omitempty" json:"timeseries,omitempty"`
	OrderBy     string   `koanf:"order_by" yaml:"order_by,omitempty" json:"order_by,omitempty"`
	GroupBy     []string `koanf:"group_by" yaml:"group_by,omitempty" json:"group_by,omitempty"`
	Window      int      `koanf:"window" yaml:"window,omitempty" json:"window,omitempty"`
}

// Spec is the serialized form of a catalog.
type Spec struct {
	DefaultNamespace   string            `koanf:"default_namespace" yaml:"default_namespace,omitempty" json:"default_namespace,omitempty"`
	PredictorNamespace string            `koanf:"predictor_namespace" yaml:"predictor_namespace,omitempty" json:"predictor_namespace,omitempty"`
	Integrations       []IntegrationSpec `koanf:"integrations" yaml:"integrations" json:"integrations"`
	Predictors         []PredictorSpec   `koanf:"predictors" yaml:"predictors" json:"predictors"`
}

// Predictor converts the spec, resolving the namespace.
func (p PredictorSpec) Predictor(defaultNamespace string) (Predictor, error) {
	ns, name := p.Integration, p.Name
	if i := strings.LastIndex(name, "."); i >= 0 {
		if ns != "" && !strings.EqualFold(ns, name[:i]) {
			return Predictor{}, fmt.Errorf("predictor %q: name prefix disagrees with integration %q", p.Name, ns)
		}
		ns, name = name[:i], name[i+1:]
	}
	if ns == "" {
		ns = defaultNamespace
	}
	pred := Predictor{
		Namespace:  ns,
		Name:       name,
		Timeseries: p.Timeseries,
		OrderBy:    p.OrderBy,
		GroupBy:    p.GroupBy,
		Window:     p.Window,
	}
	return pred, pred.Validate()
}

// FromSpec builds a catalog.
func FromSpec(spec Spec) (*Catalog, error) {
	c := New()
	c.DefaultNamespace = spec.DefaultNamespace
	if spec.PredictorNamespace != "" {
		c.PredictorNamespace = spec.PredictorNamespace
		if err := c.AddIntegration(Integration{Name: spec.PredictorNamespace, Kind: KindProject}); err != nil {
			return nil, err
		}
	}

	var errs []error
	for _, in := range spec.Integrations {
		if err := c.AddIntegration(Integration{Name: in.Name, Kind: in.Kind}); err != nil {
			errs = append(errs, err)
		}
	}
	for _, ps := range spec.Predictors {
		p, err := ps.Predictor(c.PredictorNamespace)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.AddPredictor(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return c, nil
}

// ToSpec serializes the catalog. The reserved predictor namespace is omitted.
func (c *Catalog) ToSpec() Spec {
	spec := Spec{DefaultNamespace: c.DefaultNamespace}
	if c.PredictorNamespace != DefaultPredictorNamespace {
		spec.PredictorNamespace = c.PredictorNamespace
	}
	for _, in := range c.integrations {
		if fold(in.Name) == fold(DefaultPredictorNamespace) {
			continue
		}
		spec.Integrations = append(spec.Integrations, IntegrationSpec{Name: in.Name, Kind: in.Kind})
	}
	for _, p := range c.Predictors() {
		spec.Predictors = append(spec.Predictors, PredictorSpec{
			Name:        p.Name,
			Integration: p.Namespace,
			Timeseries:  p.Timeseries,
			OrderBy:     p.OrderBy,
			GroupBy:     p.GroupBy,
			Window:      p.Window,
		})
	}
	return spec
}

// Decode reads a YAML catalog document.
func Decode(r io.Reader) (*Catalog, error) {
	var spec Spec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return FromSpec(spec)
}

// LoadFile reads a YAML catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	c, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
