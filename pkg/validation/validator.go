// pkg/validation/validator.go

// Package validation checks customer data twice: whole datasets against the
// quality gate that guards training, and single prediction requests against
// the CustomerRecord schema. Both use one go-playground/validator instance.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Aliases for the value sets of the telco schema. Quoted oneof parameters
// allow values that contain spaces.
var tagAliases = map[string]string{
	"yesno":          "oneof=Yes No",
	"gender":         "oneof=Male Female",
	"phoneline":      "oneof=Yes No 'No phone service'",
	"internetaddon":  "oneof=Yes No 'No internet service'",
	"internetkind":   "oneof=DSL 'Fiber optic' No",
	"contractkind":   "oneof=Month-to-month 'One year' 'Two year'",
	"paymentmethod":  "oneof='Electronic check' 'Mailed check' 'Bank transfer (automatic)' 'Credit card (automatic)'",
	"seniorcitizen":  "oneof=0 1",
	"tenuremonths":   "gte=0,lte=120",
	"monthlycharges": "gte=0,lte=200",
}

// ValidationError is a single field failure
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the JSON name of the field that failed
func (e *ValidationError) Field() string {
	return e.field
}

// Tag returns the validation tag that failed
func (e *ValidationError) Tag() string {
	return e.tag
}

// Param returns the tag parameter, e.g. "120" for "lte=120"
func (e *ValidationError) Param() string {
	return e.param
}

// Value returns the rejected value
func (e *ValidationError) Value() interface{} {
	return e.value
}

func (e *ValidationError) Error() string {
	return e.message
}

// RequestValidationError collects every field failure of one struct
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the field failures
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}

	messages := make([]string, 0, len(ve.errors))
	for _, err := range ve.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// APIError is the body returned to API clients for a rejected request
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToAPIError converts the failures into an API error body
func (ve *RequestValidationError) ToAPIError() *APIError {
	if len(ve.errors) == 0 {
		return &APIError{
			Code:    "VALIDATION_ERROR",
			Message: "Validation failed",
		}
	}

	if len(ve.errors) == 1 {
		err := ve.errors[0]
		return &APIError{
			Code:    "VALIDATION_ERROR",
			Message: err.message,
			Details: map[string]interface{}{
				"field": err.field,
				"tag":   err.tag,
				"value": err.value,
			},
		}
	}

	fields := make([]map[string]interface{}, len(ve.errors))
	messages := make([]string, 0, len(ve.errors))
	for i, err := range ve.errors {
		fields[i] = map[string]interface{}{
			"field":   err.field,
			"tag":     err.tag,
			"message": err.message,
		}
		messages = append(messages, fmt.Sprintf("%s: %s", err.field, err.message))
	}

	return &APIError{
		Code:    "VALIDATION_ERROR",
		Message: strings.Join(messages, "; "),
		Details: map[string]interface{}{
			"fields": fields,
		},
	}
}

// GetValidator returns the shared validator. It is safe for concurrent use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their JSON names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		for alias, tags := range tagAliases {
			validate.RegisterAlias(alias, tags)
		}
	})
	return validate
}

// ValidateStruct validates s and returns nil or the collected failures
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []ValidationError{{
				field:   "unknown",
				tag:     "unknown",
				message: err.Error(),
			}},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fieldErr := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fieldErr.Field(),
			tag:     fieldErr.Tag(),
			param:   fieldErr.Param(),
			value:   fieldErr.Value(),
			message: translateError(fieldErr),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

// validateValue checks one value against a tag expression
func validateValue(value interface{}, tag string) bool {
	return GetValidator().Var(value, tag) == nil
}

var errorMessageTemplates = map[string]string{
	"required": "%s is required",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

// translateError renders a validator failure as a readable message. Alias
// tags are reported through the tag they expand to.
func translateError(fe validator.FieldError) string {
	field := fe.Field()
	tag := fe.ActualTag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		if tag == "oneof" {
			param = strings.Join(splitOneOf(param), ", ")
		}
		return fmt.Sprintf(template, field, param)
	}
	return fmt.Sprintf("%s failed %s validation", field, tag)
}

// splitOneOf splits a oneof parameter, honouring single-quoted values
func splitOneOf(param string) []string {
	var (
		values []string
		cur    strings.Builder
		quoted bool
	)
	flush := func() {
		if cur.Len() > 0 {
			values = append(values, cur.String())
			cur.Reset()
		}
	}
	for _, r := range param {
		switch {
		case r == '\'':
			if quoted {
				values = append(values, cur.String())
				cur.Reset()
			} else {
				flush()
			}
			quoted = !quoted
		case r == ' ' && !quoted:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return values
}
