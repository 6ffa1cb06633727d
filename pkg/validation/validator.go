package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// MaxNameLength bounds participant, service and endpoint names
	MaxNameLength = 128

	// ErrNilRequest is returned when a nil request is validated
	ErrNilRequest = errors.New("request cannot be nil")

	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:\-]*$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("pname", func(fl validator.FieldLevel) bool {
		return IsName(fl.Field().String())
	})
}

// IsName reports whether s is usable as a participant, service or endpoint name.
func IsName(s string) bool {
	return len(s) > 0 && len(s) <= MaxNameLength && namePattern.MatchString(s)
}

// ValidateName checks a single name, labelling the error with kind.
func ValidateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s: name is required", kind)
	}
	if !IsName(name) {
		return fmt.Errorf("%s: name %q is invalid (alphanumeric start, then alphanumeric or _ . : -, at most %d characters)", kind, name, MaxNameLength)
	}
	return nil
}

// Struct validates a request struct against its validate tags.
func Struct(req any) error {
	if req == nil {
		return ErrNilRequest
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return ErrNilRequest
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "pname":
			return fmt.Errorf("%s: %q is not a valid name", field, e.Value())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
