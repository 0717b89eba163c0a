// Package httputil provides HTTP response helper functions.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies read by DecodeAndValidate.
const MaxBodyBytes = 1 << 20

type dataEnvelope struct {
	Data interface{} `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}

// JSON writes v without an envelope. Dashboard-facing reads use it.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}

// Success writes data inside a {"data": ...} envelope.
func Success(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, dataEnvelope{Data: data})
}

// Error writes {"error": {"message": ...}}.
func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Message: message}})
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, statusCode int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// DecodeAndValidate decodes a JSON request body into v and validates it.
// Unknown fields, trailing data and bodies over MaxBodyBytes are ErrInvalidJSON.
func DecodeAndValidate(r *http.Request, validate *validator.Validate, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after the JSON object", ErrInvalidJSON)
	}
	return validate.Struct(v)
}

// WriteDecodeError writes the 400 response for an error returned by DecodeAndValidate.
func WriteDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidJSON) {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	ValidationError(w, err)
}

// ValidationError writes a 400 with one detail per failed rule, e.g.
// {"field": "title", "message": "required"}. Other errors become a single
// detail without a field, unless they are a FieldError.
func ValidationError(w http.ResponseWriter, err error) {
	var details []FieldError

	var (
		verrs validator.ValidationErrors
		ferr  FieldError
	)
	switch {
	case errors.As(err, &verrs):
		details = make([]FieldError, 0, len(verrs))
		for _, e := range verrs {
			msg := e.Tag()
			if e.Param() != "" {
				msg += "=" + e.Param()
			}
			details = append(details, FieldError{Field: e.Field(), Message: msg})
		}
	case errors.As(err, &ferr):
		details = []FieldError{ferr}
	default:
		details = []FieldError{{Message: err.Error()}}
	}

	writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
		Message: "validation error",
		Details: details,
	}})
}
