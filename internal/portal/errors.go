package portal

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an id is already taken.
	ErrConflict = errors.New("already exists")
	// ErrNoChanges is returned for an update without any field set.
	ErrNoChanges = errors.New("no fields to update")
)

// StoreError is a failed round-trip to the data store. The repository cache
// is left as it was before the call, so the operation can be retried.
type StoreError struct {
	Collection string
	Op         string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Collection, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Retryable reports whether retrying may succeed. Missing records and id
// conflicts will not go away on their own.
func (e *StoreError) Retryable() bool {
	var ve *ValidationError
	return !errors.Is(e.Err, ErrNotFound) && !errors.Is(e.Err, ErrConflict) && !errors.As(e.Err, &ve)
}

func storeErr(collection, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Collection: collection, Op: op, Err: err}
}

// StaleError is a write that reached the store while the re-fetch after it
// failed. The cache still shows the old rows.
type StaleError struct {
	Err error
}

func (e *StaleError) Error() string { return "saved, reload failed: " + e.Err.Error() }

func (e *StaleError) Unwrap() error { return e.Err }

// Landed reports whether the write behind err reached the store.
func Landed(err error) bool {
	var se *StaleError
	return err == nil || errors.As(err, &se)
}

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(jsonFieldName)
}

// Validate checks v against its validate tags and converts failures to a
// *ValidationError keyed by json field name.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}
