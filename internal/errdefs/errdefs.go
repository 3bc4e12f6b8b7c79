// Package errdefs defines the error kinds surfaced to the user at the command
// boundary.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindConfigMissing: no configuration, or the targeted provider has no credentials.
	KindConfigMissing Kind = iota + 1
	// KindValidation: unknown provider name, malformed flag or argument.
	KindValidation
	// KindNotFound: a terminate target matched no instance.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConfigMissing:
		return "configuration missing"
	case KindValidation:
		return "validation error"
	case KindNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// Error is a classified error with an optional hint telling the user what to do next.
type Error struct {
	Kind Kind
	Msg  string
	Hint string
}

// Sentinels for errors.Is.
var (
	ErrConfigMissing = &Error{Kind: KindConfigMissing}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
)

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Msg
}

// Is matches any Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ConfigMissing builds a KindConfigMissing error.
func ConfigMissing(hint, format string, args ...any) error {
	return &Error{Kind: KindConfigMissing, Msg: fmt.Sprintf(format, args...), Hint: hint}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// ProviderError attaches the provider name and operation to a failed API call.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Hint returns the user hint carried anywhere in err's chain.
func Hint(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

// ConfigureHint is the guidance printed when gmab (or a provider) is not configured.
func ConfigureHint(provider string) string {
	if provider == "" {
		return "Please run 'gmab configure' to set up your configuration."
	}
	return fmt.Sprintf("Please run 'gmab configure -p %s' to configure this provider.", provider)
}
