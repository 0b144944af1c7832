package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
)

type contextKey struct{}

// Middleware provides validation middleware for HTTP handlers
type Middleware struct {
	config *ValidationConfig
}

// NewMiddleware creates a new validation middleware
func NewMiddleware(config *ValidationConfig) *Middleware {
	if config == nil {
		config = DefaultValidationConfig()
	}

	return &Middleware{
		config: config,
	}
}

// ValidateJSON decodes the request body into a new value of structType's
// type, validates it and stores a pointer to it in the request context for
// FromContext. An empty body validates the zero value.
func (m *Middleware) ValidateJSON(structType interface{}) func(http.Handler) http.Handler {
	typ := reflect.TypeOf(structType)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			val := reflect.New(typ).Interface()

			if r.Body != nil {
				decoder := json.NewDecoder(r.Body)
				decoder.DisallowUnknownFields()
				if err := decoder.Decode(val); err != nil && !errors.Is(err, io.EOF) {
					m.writeErrorResponse(w, http.StatusBadRequest,
						ValidationErrors{{
							Field:   "request_body",
							Message: fmt.Sprintf("invalid JSON: %v", err),
						}})
					return
				}
			}

			if err := ValidateWithConfig(val, m.config); err != nil {
				var verrs ValidationErrors
				if errors.As(err, &verrs) {
					m.writeErrorResponse(w, http.StatusBadRequest, verrs)
					return
				}
				m.writeErrorResponse(w, http.StatusInternalServerError,
					ValidationErrors{{
						Field:   "validation",
						Message: "validation failed",
					}})
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, val)))
		})
	}
}

// FromContext returns the body decoded by ValidateJSON
func FromContext[T any](ctx context.Context) (*T, bool) {
	v, ok := ctx.Value(contextKey{}).(*T)
	return v, ok
}

// ValidateQueryParams validates URL query parameters. Each rule is a
// validator tag such as "required,numeric"; absent optional parameters are
// skipped.
func (m *Middleware) ValidateQueryParams(paramRules map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			var errs ValidationErrors

			for param, rule := range paramRules {
				value := query.Get(param)
				if err := Validate.Var(value, rule); err != nil {
					if verrs, ok := formatValidationErrors(err).(ValidationErrors); ok {
						for _, ve := range verrs {
							ve.Field = param
							errs = append(errs, ve)
						}
						continue
					}
					errs = append(errs, ValidationError{Field: param, Value: value, Message: err.Error()})
				}
			}

			if len(errs) > 0 {
				m.writeErrorResponse(w, http.StatusBadRequest, errs)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeErrorResponse writes validation errors as JSON response
func (m *Middleware) writeErrorResponse(w http.ResponseWriter, statusCode int, errs ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorData, err := MarshalValidationErrors(errs)
	if err != nil {
		// Fallback error response
		w.Write([]byte(`{"error":"validation failed","message":"internal validation error"}`))
		return
	}

	w.Write(errorData)
}

// RequestValidator provides fluent API for request validation
type RequestValidator struct {
	middleware *Middleware
	handlers   []func(http.Handler) http.Handler
}

// NewRequestValidator creates a new request validator
func NewRequestValidator(config *ValidationConfig) *RequestValidator {
	return &RequestValidator{
		middleware: NewMiddleware(config),
		handlers:   make([]func(http.Handler) http.Handler, 0),
	}
}

// JSON adds JSON body validation
func (rv *RequestValidator) JSON(structType interface{}) *RequestValidator {
	rv.handlers = append(rv.handlers, rv.middleware.ValidateJSON(structType))
	return rv
}

// QueryParams adds query parameter validation
func (rv *RequestValidator) QueryParams(rules map[string]string) *RequestValidator {
	rv.handlers = append(rv.handlers, rv.middleware.ValidateQueryParams(rules))
	return rv
}

// Build creates the final middleware handler
func (rv *RequestValidator) Build() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := next
		// Apply middleware in reverse order
		for i := len(rv.handlers) - 1; i >= 0; i-- {
			handler = rv.handlers[i](handler)
		}
		return handler
	}
}
