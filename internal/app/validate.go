package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"answerdesk/api/internal/workflow"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// validateInput checks struct tags and converts the first failure into a
// ValidationError naming the JSON field.
func validateInput(input any) error {
	err := inputValidator().Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return workflow.Validation(err.Error())
	}
	return workflow.Validation(describeFieldError(fieldErrs[0]))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, sizeUnit(fe))
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, sizeUnit(fe))
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

func sizeUnit(fe validator.FieldError) string {
	switch fe.Kind() {
	case reflect.String:
		return fe.Param() + " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		return fe.Param() + " items"
	default:
		return fe.Param()
	}
}

// parseDeadline accepts RFC 3339 timestamps with or without fractional
// seconds.
func parseDeadline(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, workflow.Validation("submissionDeadline is required")
	}
	deadline, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, workflow.Validation("submissionDeadline must be an ISO-8601 timestamp")
	}
	return deadline.UTC(), nil
}
