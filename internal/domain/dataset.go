package domain

import (
	"math"
	"strings"
)

// Attribute is a global string attribute of an output dataset.
type Attribute struct {
	Name  string
	Value string
}

// ProvenanceKeys are the global attributes every output dataset carries.
var ProvenanceKeys = []string{"institution", "title", "source", "history", "references", "description", "comment"}

// DefaultAttributes returns the provenance attributes with placeholder values.
func DefaultAttributes() []Attribute {
	attrs := make([]Attribute, len(ProvenanceKeys))
	for i, k := range ProvenanceKeys {
		attrs[i] = Attribute{Name: k, Value: "None"}
	}
	return attrs
}

// MergeAttributes overlays updates onto base, keeping the order of base and
// appending names it does not have.
func MergeAttributes(base, updates []Attribute) []Attribute {
	out := make([]Attribute, len(base))
	copy(out, base)
	for _, u := range updates {
		found := false
		for i := range out {
			if out[i].Name == u.Name {
				out[i].Value = u.Value
				found = true
				break
			}
		}
		if !found {
			out = append(out, u)
		}
	}
	return out
}

// VariableSpec describes a (time, lat, lon) data variable.
type VariableSpec struct {
	Name     string
	Units    string
	LongName string
}

// DatasetSpec describes an output time-series dataset.
type DatasetSpec struct {
	Path       string
	Variable   VariableSpec
	Grid       GridDefinition
	FillValue  float32
	Attributes []Attribute
	Overwrite  bool
}

// Validate checks a dataset description before creation.
func (s DatasetSpec) Validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return Configf("output.path", "must not be empty")
	}
	if err := s.Variable.Validate(); err != nil {
		return err
	}
	if err := s.Grid.Validate(); err != nil {
		return err
	}
	if math.IsNaN(float64(s.FillValue)) {
		return Configf("output.fill_value", "must not be NaN")
	}
	seen := map[string]bool{}
	for _, a := range s.Attributes {
		if a.Name == "" {
			return Configf("output.attributes", "attribute with empty name")
		}
		if seen[a.Name] {
			return Configf("output.attributes", "duplicate attribute %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

func validateVariableName(name string) error {
	switch strings.TrimSpace(name) {
	case "":
		return Configf("output.variable", "must not be empty")
	case "time", "lat", "lon":
		return Configf("output.variable", "%q is reserved for a coordinate", name)
	}
	return nil
}

// Validate checks a data variable description.
func (v VariableSpec) Validate() error { return validateVariableName(v.Name) }
