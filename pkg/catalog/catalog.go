// Package catalog describes the sources a query can reference: integrations
// (data, api or project kind) and the predictors living in project namespaces.
//
// Names are matched case-insensitively. A Catalog is read-only once built and
// safe for concurrent use by planners.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultPredictorNamespace is the reserved namespace holding predictors.
const DefaultPredictorNamespace = "mindsdb"

// Kind is the kind of an integration.
type Kind string

// Integration kinds.
const (
	KindData    Kind = "data"
	KindAPI     Kind = "api"
	KindProject Kind = "project"
)

// ErrInvalidKind is returned for unknown integration kinds.
var ErrInvalidKind = errors.New("invalid integration kind")

// ParseKind parses an integration kind. The empty string means data.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindData:
		return KindData, nil
	case KindAPI:
		return KindAPI, nil
	case KindProject:
		return KindProject, nil
	}
	return "", fmt.Errorf("%w: %q (want data, api or project)", ErrInvalidKind, s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Integration is a named backend.
type Integration struct {
	Name string
	Kind Kind
}

// Predictor is a named model in a namespace.
type Predictor struct {
	Namespace  string
	Name       string
	Timeseries bool
	OrderBy    string   // time column of a time-series predictor
	GroupBy    []string // partition columns, possibly empty
	Window     int      // rows of history per prediction
}

// FullName returns namespace.name.
func (p Predictor) FullName() string {
	return p.Namespace + "." + p.Name
}

// Validate checks the predictor definition.
func (p Predictor) Validate() error {
	if p.Namespace == "" || p.Name == "" {
		return fmt.Errorf("predictor %q: namespace and name are required", p.FullName())
	}
	if p.Timeseries {
		if p.OrderBy == "" {
			return fmt.Errorf("time series predictor %s: order_by column is required", p.FullName())
		}
		if p.Window <= 0 {
			return fmt.Errorf("time series predictor %s: window must be positive, got %d", p.FullName(), p.Window)
		}
	}
	return nil
}

// Catalog is the set of known integrations and predictors.
type Catalog struct {
	integrations []Integration
	byName       map[string]int
	predictors   map[string]Predictor

	// DefaultNamespace resolves identifiers whose first segment names no integration.
	DefaultNamespace string
	// PredictorNamespace is the reserved project holding predictors.
	PredictorNamespace string
}

// New returns an empty catalog with the reserved predictor namespace registered.
func New() *Catalog {
	c := &Catalog{
		byName:             make(map[string]int),
		predictors:         make(map[string]Predictor),
		PredictorNamespace: DefaultPredictorNamespace,
	}
	c.integrations = append(c.integrations, Integration{Name: DefaultPredictorNamespace, Kind: KindProject})
	c.byName[fold(DefaultPredictorNamespace)] = 0
	return c
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// AddIntegration registers or replaces an integration.
func (c *Catalog) AddIntegration(i Integration) error {
	if strings.TrimSpace(i.Name) == "" {
		return errors.New("integration name is required")
	}
	if strings.Contains(i.Name, ".") {
		return fmt.Errorf("integration name %q must not contain dots", i.Name)
	}
	if i.Kind == "" {
		i.Kind = KindData
	}
	if _, err := ParseKind(string(i.Kind)); err != nil {
		return err
	}
	key := fold(i.Name)
	if idx, ok := c.byName[key]; ok {
		c.integrations[idx] = i
		return nil
	}
	c.byName[key] = len(c.integrations)
	c.integrations = append(c.integrations, i)
	return nil
}

// AddPredictor registers or replaces a predictor. Its namespace is registered
// as a project if unknown; a namespace that is a data or api integration is rejected.
func (c *Catalog) AddPredictor(p Predictor) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if ns, ok := c.Integration(p.Namespace); ok {
		if ns.Kind != KindProject {
			return fmt.Errorf("predictor %s: namespace %s is a %s integration, not a project", p.FullName(), ns.Name, ns.Kind)
		}
	} else if err := c.AddIntegration(Integration{Name: p.Namespace, Kind: KindProject}); err != nil {
		return err
	}
	p.GroupBy = slices.Clone(p.GroupBy)
	c.predictors[fold(p.FullName())] = p
	return nil
}

// Remove deletes an integration (with its predictors) or a predictor given as namespace.name.
func (c *Catalog) Remove(name string) bool {
	key := fold(name)
	if _, ok := c.predictors[key]; ok {
		delete(c.predictors, key)
		return true
	}
	idx, ok := c.byName[key]
	if !ok {
		return false
	}
	c.integrations = slices.Delete(c.integrations, idx, idx+1)
	c.byName = make(map[string]int, len(c.integrations))
	for i, in := range c.integrations {
		c.byName[fold(in.Name)] = i
	}
	for k, p := range c.predictors {
		if fold(p.Namespace) == key {
			delete(c.predictors, k)
		}
	}
	return true
}

// Integration looks up an integration by name.
func (c *Catalog) Integration(name string) (Integration, bool) {
	idx, ok := c.byName[fold(name)]
	if !ok {
		return Integration{}, false
	}
	return c.integrations[idx], true
}

// HasIntegration reports whether name is a known integration or namespace.
func (c *Catalog) HasIntegration(name string) bool {
	_, ok := c.byName[fold(name)]
	return ok
}

// CanonicalName returns the registered spelling of an integration name.
func (c *Catalog) CanonicalName(name string) string {
	if in, ok := c.Integration(name); ok {
		return in.Name
	}
	return name
}

// KindOf returns the kind of the named integration, or "" if unknown.
func (c *Catalog) KindOf(name string) Kind {
	in, _ := c.Integration(name)
	return in.Kind
}

// Predictor looks up a predictor by namespace and name.
func (c *Catalog) Predictor(namespace, name string) (Predictor, bool) {
	p, ok := c.predictors[fold(namespace+"."+name)]
	return p, ok
}

// Integrations returns the registered integrations in registration order.
func (c *Catalog) Integrations() []Integration {
	return slices.Clone(c.integrations)
}

// IntegrationNames returns the registered integration names in registration order.
func (c *Catalog) IntegrationNames() []string {
	names := make([]string, len(c.integrations))
	for i, in := range c.integrations {
		names[i] = in.Name
	}
	return names
}

// Predictors returns all predictors sorted by full name.
func (c *Catalog) Predictors() []Predictor {
	out := make([]Predictor, 0, len(c.predictors))
	for _, p := range c.predictors {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return fold(out[i].FullName()) < fold(out[j].FullName()) })
	return out
}

// Clone returns an independent copy.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{
		integrations:       slices.Clone(c.integrations),
		byName:             make(map[string]int, len(c.byName)),
		predictors:         make(map[string]Predictor, len(c.predictors)),
		DefaultNamespace:   c.DefaultNamespace,
		PredictorNamespace: c.PredictorNamespace,
	}
	for k, v := range c.byName {
		out.byName[k] = v
	}
	for k, v := range c.predictors {
		v.GroupBy = slices.Clone(v.GroupBy)
		out.predictors[k] = v
	}
	return out
}

// Merge returns a copy of c with the entries of other added; other wins on collisions.
func (c *Catalog) Merge(other *Catalog) (*Catalog, error) {
	out := c.Clone()
	if other == nil {
		return out, nil
	}
	for _, in := range other.integrations {
		if err := out.AddIntegration(in); err != nil {
			return nil, err
		}
	}
	for _, p := range other.Predictors() {
		if err := out.AddPredictor(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}
