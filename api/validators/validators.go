// Package validators turns request bodies and query strings into typed values,
// reporting every problem as a CodeValidation error with per-field details.
package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/lectern-edu/lectern-payments/pkg/errors"
)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// positive_decimal accepts strings like "10" or "10.50" greater than zero.
	_ = v.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && d.IsPositive()
	})
	return v
}()

var tagMessages = map[string]string{
	"required":         "is required",
	"uuid":             "must be a valid uuid",
	"uuid4":            "must be a valid uuid",
	"iso4217":          "must be an ISO 4217 currency code",
	"positive_decimal": "must be a positive decimal string",
}

// DecodeJSONBody reads exactly one JSON object into dest and validates it.
// Unknown fields are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]string{"body": err.Error()})
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}

	err := validate.Struct(dest)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
		}
		return nil
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func describe(fe validator.FieldError) string {
	if msg, ok := tagMessages[fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	}
	return "is invalid"
}

// Query reads typed values out of a request's query string.
type Query struct {
	values map[string][]string
}

func QueryOf(r *http.Request) Query {
	return Query{values: r.URL.Query()}
}

// String returns the trimmed value of key, or "" when absent.
func (q Query) String(key string) string {
	if v := q.values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// Int returns fallback when key is absent and rejects values outside [lo, hi].
func (q Query) Int(key string, fallback, lo, hi int) (int, error) {
	raw := q.String(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, "must be an integer")
	}
	if n < lo || n > hi {
		return 0, fieldError(key, "must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
	}
	return n, nil
}

// UUID returns nil when key is absent.
func (q Query) UUID(key string) (*uuid.UUID, error) {
	raw := q.String(key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fieldError(key, tagMessages["uuid"])
	}
	return &id, nil
}

// ParseUUID parses a required identifier taken from the path or a body field.
func ParseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fieldError(field, tagMessages["uuid"])
	}
	return id, nil
}

func fieldError(field, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid "+field).WithDetails(map[string]string{field: msg})
}
