package policy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

type Violation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ViolationError lists every field of a draft that failed validation.
type ViolationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ViolationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s (%s)", v.Field, v.Rule)
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

// Validate checks v against its `validate` struct tags.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &ViolationError{}
	for _, fe := range fieldErrs {
		out.Violations = append(out.Violations, Violation{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// Violated builds a single-field ViolationError for checks that tags can't express.
func Violated(field, rule string) error {
	return &ViolationError{Violations: []Violation{{Field: field, Rule: rule}}}
}

func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}
