package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// whitespace-only strings pass `required`
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validator validates unstructured candidate payloads against the schema reflected from O.
// Checks are structural only: field presence, primitive types and the `validate` tags of O.
type Validator[O any] struct {
	definition *Definition
}

// NewValidator reflects O and returns a Validator for it
func NewValidator[O any](name string, description string) (*Validator[O], error) {
	def, err := Reflect[O](name, description)
	if err != nil {
		return nil, err
	}
	return &Validator[O]{definition: def}, nil
}

// Definition returns the output schema descriptor sent to models
func (v *Validator[O]) Definition() *Definition {
	return v.definition
}

// Validate decodes payload into O when it satisfies the schema. On failure the returned
// FieldErrors is never empty and the record is nil.
func (v *Validator[O]) Validate(payload []byte) (*O, FieldErrors) {
	if errs := v.definition.Validate(payload); len(errs) > 0 {
		return nil, errs
	}
	out := new(O)
	if err := json.Unmarshal(payload, out); err != nil {
		return nil, FieldErrors{{Field: RootField, Reason: fmt.Sprintf("payload cannot be decoded: %v", err)}}
	}
	if errs := ValidateStruct(out); len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// ValidateStruct runs the `validate` tag constraints of a decoded struct
func ValidateStruct(v any) FieldErrors {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// not a struct, nothing to check
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{{Field: RootField, Reason: err.Error()}}
	}
	ret := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		ret = append(ret, FieldError{
			Field:  structFieldPath(fe.Namespace()),
			Reason: tagReason(fe),
		})
	}
	return ret
}

// structFieldPath strips the root type name from a validator namespace
func structFieldPath(ns string) string {
	if idx := strings.IndexByte(ns, '.'); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func tagReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "must not be empty"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid URL"
	}
	if fe.Param() != "" {
		return fmt.Sprintf("failed the '%s=%s' constraint", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("failed the '%s' constraint", fe.Tag())
}
