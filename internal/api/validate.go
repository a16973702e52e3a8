package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/unalkalkan/PanelReader/internal/apperr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// validateRequest checks struct tags and reports every failing field as one
// InvalidInput error
func validateRequest(op string, v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindInvalidInput, op, err)
	}

	fields := make([]FieldError, 0, len(verrs))
	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := fieldPath(e.Namespace())
		msg := formatValidationError(e)
		fields = append(fields, FieldError{Field: field, Message: msg})
		messages = append(messages, field+": "+msg)
	}
	return apperr.New(apperr.KindInvalidInput, op, strings.Join(messages, "; ")).
		WithDetail("fields", fields)
}

// fieldPath drops the top-level struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_unless", "required_without":
		return "is required"
	case "min":
		return "must have at least " + e.Param() + " items"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "excludesall":
		return "must not contain any of " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}
