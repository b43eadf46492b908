package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const resourceName = "schema.json"

var printer = message.NewPrinter(language.English)

// Definition is a named JSON schema compiled for validation.
// A Definition is immutable and safe for concurrent use.
type Definition struct {
	name        string
	description string
	raw         json.RawMessage
	doc         map[string]any
	compiled    *jsonschema.Schema
}

// Reflect builds a Definition from the Go type T using its json and jsonschema tags.
// Fields without omitempty are required, unknown properties are rejected.
func Reflect[T any](name string, description string) (*Definition, error) {
	r := &invopop.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(T))
	s.Version = ""
	if description != "" {
		s.Description = description
	}
	bs, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	return NewDefinition(name, description, bs)
}

// MustReflect is like Reflect but panics on error. It is intended for package level schemas.
func MustReflect[T any](name string, description string) *Definition {
	def, err := Reflect[T](name, description)
	if err != nil {
		panic(err)
	}
	return def
}

// NewDefinition compiles a raw JSON schema document
func NewDefinition(name string, description string, raw []byte) (*Definition, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	mp := make(map[string]any)
	if err := json.Unmarshal(raw, &mp); err != nil {
		return nil, fmt.Errorf("schema %s is not an object: %w", name, err)
	}
	return &Definition{
		name:        name,
		description: description,
		raw:         json.RawMessage(raw),
		doc:         mp,
		compiled:    compiled,
	}, nil
}

// Name returns the schema name
func (d *Definition) Name() string {
	return d.name
}

// Description returns the schema description
func (d *Definition) Description() string {
	return d.description
}

// JSON returns the raw schema document
func (d *Definition) JSON() json.RawMessage {
	return d.raw
}

// MarshalJSON implements json.Marshaler
func (d *Definition) MarshalJSON() ([]byte, error) {
	return d.raw, nil
}

// Map returns a copy of the schema document as a generic map
func (d *Definition) Map() map[string]any {
	ret := make(map[string]any, len(d.doc))
	for k, v := range d.doc {
		ret[k] = v
	}
	return ret
}

// Properties returns the top level property names declared by the schema
func (d *Definition) Properties() []string {
	props, ok := d.doc["properties"].(map[string]any)
	if !ok {
		return nil
	}
	ret := make([]string, 0, len(props))
	for k := range props {
		ret = append(ret, k)
	}
	slices.Sort(ret)
	return ret
}

// Validate checks payload against the schema. It returns nil when the payload conforms.
func (d *Definition) Validate(payload []byte) FieldErrors {
	if len(bytes.TrimSpace(payload)) == 0 {
		return FieldErrors{{Field: RootField, Reason: "payload is empty"}}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return FieldErrors{{Field: RootField, Reason: fmt.Sprintf("payload is not valid JSON: %v", err)}}
	}
	if err := d.compiled.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return FieldErrors{{Field: RootField, Reason: err.Error()}}
		}
		var ret FieldErrors
		collectFieldErrors(verr, &ret)
		if len(ret) == 0 {
			ret = append(ret, FieldError{Field: RootField, Reason: verr.Error()})
		}
		return ret
	}
	return nil
}

// collectFieldErrors flattens the leaves of a validation error tree
func collectFieldErrors(verr *jsonschema.ValidationError, out *FieldErrors) {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			collectFieldErrors(cause, out)
		}
		return
	}
	if k, ok := verr.ErrorKind.(*kind.Required); ok {
		for _, name := range k.Missing {
			loc := append(slices.Clone(verr.InstanceLocation), name)
			*out = append(*out, FieldError{Field: fieldPath(loc), Reason: "is required but missing"})
		}
		return
	}
	*out = append(*out, FieldError{
		Field:  fieldPath(verr.InstanceLocation),
		Reason: verr.ErrorKind.LocalizedString(printer),
	})
}

func fieldPath(loc []string) string {
	if len(loc) == 0 {
		return RootField
	}
	return strings.Join(loc, ".")
}
