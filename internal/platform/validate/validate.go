package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validator adapts validator/v10 to echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the "hhmm" tag registered. Field names in
// errors come from the query, param or json tag, in that order.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"query", "param", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	// "15:04" accepts single-digit hours, so HH:MM gets its own tag.
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i interface{}) error {
	if err := cv.v.Struct(i); err != nil {
		return &Error{err: err}
	}
	return nil
}

// Error wraps validator failures with a readable message.
type Error struct {
	err error
}

func (e *Error) Error() string { return Message(e.err) }

func (e *Error) Unwrap() error { return e.err }

// Message renders validation errors as "field: problem; field: problem".
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fieldMessage(fe))
	}
	return strings.Join(parts, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a valid identifier", fe.Field())
	case "hhmm":
		return fmt.Sprintf("%s must be in HH:MM 24-hour format", fe.Field())
	case "datetime":
		if fe.Param() == "2006-01-02" {
			return fmt.Sprintf("%s must be in YYYY-MM-DD format", fe.Field())
		}
		return fmt.Sprintf("%s must match %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "dive", "unique":
		return fmt.Sprintf("%s contains invalid entries", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
