package errmodel

import (
	"encoding/json"
	"errors"
	"strings"
)

// Category values for compact errors. Each one names the stage that failed.
const (
	CategoryLoad          = "load"
	CategoryValidation    = "validation"
	CategoryInvocation    = "invocation"
	CategoryConfiguration = "configuration"
	CategoryUnsupported   = "unsupported_provider"
	CategoryValue         = "value"
	CategoryPolicy        = "policy"
	CategorySystem        = "system"
)

// Sentinels for errors.Is matching by category.
var (
	ErrLoad          = &Error{Category: CategoryLoad}
	ErrValidation    = &Error{Category: CategoryValidation}
	ErrInvocation    = &Error{Category: CategoryInvocation}
	ErrConfiguration = &Error{Category: CategoryConfiguration}
	ErrUnsupported   = &Error{Category: CategoryUnsupported}
	ErrValue         = &Error{Category: CategoryValue}
	ErrPolicy        = &Error{Category: CategoryPolicy}
)

// Error is the compact error payload used across agentcore.
// It implements the error interface.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Category != "" {
		msg = e.Category + " " + msg
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the first cause, preserving its concrete type.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target is an *Error of the same category. A target with
// a Code set must match the code too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Category != "" && !strings.EqualFold(t.Category, e.Category) {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Category != "" || t.Code != ""
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, 512)}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		if ce.cause == nil {
			ce.cause = c
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. If err is already *Error, it's returned as-is.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	// Default to system/internal for unknown error types.
	return &Error{Category: CategorySystem, Code: "internal", Message: truncate(err.Error(), 512)}
}

// Convenience constructors.
func Load(code, message string, ctx map[string]any, cause error) *Error {
	return New(CategoryLoad, code, message, ctx, cause)
}

func Validation(code, message string, ctx map[string]any) *Error {
	return New(CategoryValidation, code, message, ctx)
}

func Invocation(code, message string, ctx map[string]any, cause error) *Error {
	return New(CategoryInvocation, code, message, ctx, cause)
}

func Configuration(code, message string, ctx map[string]any) *Error {
	return New(CategoryConfiguration, code, message, ctx)
}

func Unsupported(code, message string, ctx map[string]any) *Error {
	return New(CategoryUnsupported, code, message, ctx)
}

func Value(code, message string, ctx map[string]any) *Error {
	return New(CategoryValue, code, message, ctx)
}

func Policy(code, message string, ctx map[string]any) *Error {
	return New(CategoryPolicy, code, message, ctx)
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	return New(CategorySystem, code, message, ctx, cause)
}

// truncate trims a string to max characters.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, 256)
		case int, int64, bool, float64:
			out[k] = t
		default:
			// Keep composite values compact as a JSON preview.
			b, err := json.Marshal(t)
			if err == nil && len(b) > 0 {
				s := string(b)
				if len(s) > 256 {
					s = truncate(s, 256)
				}
				out[k] = s
			} else {
				out[k] = t
			}
		}
	}
	return out
}

// IsCategory checks if err belongs to a specific category.
func IsCategory(err error, category string) bool {
	ce := From(err)
	return ce != nil && strings.EqualFold(ce.Category, category)
}
