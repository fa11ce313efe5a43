package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/agrirent/agrirent/internal/models"
	pkghttp "github.com/agrirent/agrirent/pkg/http"
	"github.com/go-playground/validator/v10"
)

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("businesstype", func(fl validator.FieldLevel) bool {
		return models.IsBusinessType(fl.Field().String())
	})
	_ = v.RegisterValidation("variant", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseVariant(fl.Field().String())
		return ok
	})

	return v
}

// ValidateRequest validates a request struct and returns every failing field
func ValidateRequest(req interface{}) *models.ValidationError {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return models.NewValidationError("body", err.Error())
	}

	out := &models.ValidationError{}
	for _, fe := range ve {
		out.Fields = append(out.Fields, models.FieldError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return out
}

// toFieldErrors converts model field errors to their wire form
func toFieldErrors(ve *models.ValidationError) []pkghttp.FieldError {
	fields := make([]pkghttp.FieldError, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		fields = append(fields, pkghttp.FieldError{Field: f.Field, Message: f.Message})
	}
	return fields
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "numeric":
		return "must contain digits only"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "businesstype":
		return "must be one of: " + strings.Join(models.BusinessTypes, ", ")
	case "variant":
		return "must be one of: user, provider"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
