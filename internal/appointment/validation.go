package appointment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError is a user-correctable input problem. Only the first
// violation of a request is reported.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateInput runs struct tag validation and converts the first failure
// into a ValidationError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate input: %w", err)
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return newValidationError(field, "%s is required", field)
	case "oneof":
		return newValidationError(field, "%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		if fe.Kind() == reflect.String {
			return newValidationError(field, "%s must be at most %s characters", field, fe.Param())
		}
		return newValidationError(field, "%s must be at most %s", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return newValidationError(field, "%s must be at least %s characters", field, fe.Param())
		}
		return newValidationError(field, "%s must be at least %s", field, fe.Param())
	default:
		return newValidationError(field, "%s is invalid", field)
	}
}
