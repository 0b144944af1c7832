package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/agentflow/agentflow/internal/core/graph"
)

var (
	// Validate is the shared validator instance with the pipeline rules
	// registered.
	Validate *validator.Validate

	nodeIDPattern       = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	pipelineNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

func init() {
	Validate = validator.New()

	Validate.RegisterValidation("node_id", validateNodeID)
	Validate.RegisterValidation("category", validateCategory)
	Validate.RegisterValidation("pipeline_name", validatePipelineName)

	// Report fields by their JSON names
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidateWithPlayground validates using go-playground/validator
func ValidateWithPlayground(s interface{}) error {
	err := Validate.Struct(s)
	if err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors converts validator errors to our custom format
func formatValidationErrors(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	var out ValidationErrors
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fe.Namespace(),
			Value:   fe.Value(),
			Message: getErrorMessage(fe),
		})
	}
	return out
}

// getErrorMessage returns a human-readable error message
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "required_if":
		return fmt.Sprintf("field is required when %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must not be below %s", fe.Param())
	case "nefield":
		return fmt.Sprintf("must differ from %s", fe.Param())
	case "numeric":
		return "must be numeric"
	case "node_id":
		return "must be a valid node identifier (alphanumeric, underscore, hyphen)"
	case "category":
		return fmt.Sprintf("must be one of %v", graph.Categories)
	case "pipeline_name":
		return "must be a lowercase pipeline name (letters, digits, single hyphens)"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

// validateNodeID validates node identifier format
func validateNodeID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return len(id) >= 1 && len(id) <= 100 && nodeIDPattern.MatchString(id)
}

func validateCategory(fl validator.FieldLevel) bool {
	return graph.Category(fl.Field().String()).IsValid()
}

func validatePipelineName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return len(name) <= 64 && pipelineNamePattern.MatchString(name)
}

// ValidationConfig holds validation configuration
type ValidationConfig struct {
	MaxErrors int `json:"max_errors"`
}

// DefaultValidationConfig returns default validation configuration
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxErrors: 10,
	}
}

// ValidateWithConfig validates with specific configuration
func ValidateWithConfig(s interface{}, config *ValidationConfig) error {
	if config == nil {
		config = DefaultValidationConfig()
	}

	err := ValidateStruct(s)
	var verrs ValidationErrors
	if errors.As(err, &verrs) && config.MaxErrors > 0 && len(verrs) > config.MaxErrors {
		return verrs[:config.MaxErrors]
	}
	return err
}

type errorResponse struct {
	Errors []ValidationError `json:"errors"`
	Count  int               `json:"count"`
}

// MarshalValidationErrors marshals validation errors to JSON
func MarshalValidationErrors(errs ValidationErrors) ([]byte, error) {
	return json.Marshal(errorResponse{Errors: errs, Count: len(errs)})
}

// UnmarshalValidationErrors unmarshals validation errors from JSON
func UnmarshalValidationErrors(data []byte) (ValidationErrors, error) {
	var response errorResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, err
	}
	return ValidationErrors(response.Errors), nil
}
