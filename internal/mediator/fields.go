package mediator

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldKind describes how a field value is interpreted.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldNumber FieldKind = "number"
	FieldChoice FieldKind = "choice"
	FieldImage  FieldKind = "image"
)

// FieldSpec declares one input of a panel form.
type FieldSpec struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	Choices  []string  `json:"choices,omitempty"`
	// Message overrides the default validation message for a missing value.
	Message string `json:"-"`
}

// Fields maps field names to submitted values.
type Fields map[string]string

// Get returns the trimmed value for name.
func (f Fields) Get(name string) string {
	return strings.TrimSpace(f[name])
}

// Float parses name as a float. Call only after Validate has accepted the fields.
func (f Fields) Float(name string) float64 {
	v, err := strconv.ParseFloat(f.Get(name), 64)
	if err != nil {
		return 0
	}
	return v
}

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Validate checks fields against specs. All missing required fields are
// reported together; malformed values are reported one at a time.
func Validate(specs []FieldSpec, fields Fields) *Error {
	var missing []string
	for _, spec := range specs {
		if spec.Required && fields.Get(spec.Name) == "" {
			if spec.Message != "" {
				return ValidationError(spec.Name, spec.Message)
			}
			missing = append(missing, spec.Label)
		}
	}
	if len(missing) > 0 {
		err := ValidationError("", "Please fill in all required fields: "+strings.Join(missing, ", ")+".")
		if len(missing) == 1 {
			for _, spec := range specs {
				if spec.Label == missing[0] {
					err.Field = spec.Name
				}
			}
		}
		return err
	}

	for _, spec := range specs {
		value := fields.Get(spec.Name)
		if value == "" {
			continue
		}
		switch spec.Kind {
		case FieldNumber:
			n, err := strconv.ParseFloat(value, 64)
			if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
				return ValidationError(spec.Name, fmt.Sprintf("%s must be a number.", spec.Label))
			}
		case FieldChoice:
			if !containsFold(spec.Choices, value) {
				return ValidationError(spec.Name, fmt.Sprintf("%s must be one of: %s.", spec.Label, strings.Join(spec.Choices, ", ")))
			}
		case FieldImage:
			if _, err := base64.StdEncoding.DecodeString(value); err != nil {
				return ValidationError(spec.Name, fmt.Sprintf("%s is not a valid image upload.", spec.Label))
			}
		}
	}
	return nil
}

func containsFold(values []string, v string) bool {
	for _, c := range values {
		if strings.EqualFold(c, v) {
			return true
		}
	}
	return false
}
