package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field is a key-value pair attached to a log entry.
type Field = zap.Field

// Common field keys.
const (
	KeyURL       = "url"
	KeyError     = "error"
	KeyComponent = "component"
	KeyRunID     = "run_id"
	KeyStage     = "stage"
	KeyRegion    = "region"
)

// String constructs a string field.
func String(key, value string) Field { return zap.String(key, value) }

// Int constructs an int field.
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 constructs an int64 field.
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// Bool constructs a bool field.
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Duration constructs a duration field.
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

// Any constructs a field from an arbitrary value.
func Any(key string, value any) Field { return zap.Any(key, value) }

// Err constructs an error field.
func Err(err error) Field { return zap.NamedError(KeyError, err) }

// URL constructs a url field.
func URL(value string) Field { return zap.String(KeyURL, value) }

// Component constructs a component field.
func Component(name string) Field { return zap.String(KeyComponent, name) }
