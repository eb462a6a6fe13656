// Package errors provides categorised errors carrying a component and context.
// Every error assembled with the builder is passed to the registered hooks,
// which feed metrics and crash reporting.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ComponentUnknown is used when the component was not set by the caller.
const ComponentUnknown = "unknown"

// EnhancedError is an error with a category, component and context.
type EnhancedError struct {
	Err      error
	Category ErrorCategory
	// Priority is the explicit priority, empty when the category default applies
	Priority  string
	Context   map[string]any
	Timestamp time.Time

	component string
}

func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return string(ee.Category)
	}
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches the same error, or any error of the target's category when
// the target wraps nothing.
func (ee *EnhancedError) Is(target error) bool {
	other, ok := target.(*EnhancedError)
	if !ok {
		return false
	}
	return ee == other || (other.Err == nil && other.Category == ee.Category)
}

// GetComponent returns the reporting component.
func (ee *EnhancedError) GetComponent() string { return ee.component }

// GetCategory returns the category as a string label.
func (ee *EnhancedError) GetCategory() string { return string(ee.Category) }

// GetPriority returns the explicit priority, or "" when none was set.
func (ee *EnhancedError) GetPriority() string { return ee.Priority }

// EffectivePriority returns the explicit priority or the category default.
func (ee *EnhancedError) EffectivePriority() string {
	if ee.Priority != "" {
		return ee.Priority
	}
	if p, ok := categoryPriority[ee.Category]; ok {
		return p
	}
	return PriorityMedium
}

// GetContext returns a copy of the context.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// Builder assembles an EnhancedError.
type Builder struct {
	ee EnhancedError
}

// New starts an error wrapping err.
func New(err error) *Builder {
	return &Builder{ee: EnhancedError{Err: err}}
}

// Newf starts an error with a formatted message. %w wraps as in fmt.Errorf.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component names the reporting package.
func (b *Builder) Component(component string) *Builder {
	b.ee.component = component
	return b
}

// Category sets the category. Without one, the category of a wrapped
// EnhancedError is inherited.
func (b *Builder) Category(category ErrorCategory) *Builder {
	b.ee.Category = category
	return b
}

// Priority overrides the category default. Unknown values become medium.
func (b *Builder) Priority(priority string) *Builder {
	switch {
	case priority == "":
	case validPriority(priority):
		b.ee.Priority = priority
	default:
		b.ee.Priority = PriorityMedium
	}
	return b
}

// Context attaches a key/value pair.
func (b *Builder) Context(key string, value any) *Builder {
	if b.ee.Context == nil {
		b.ee.Context = make(map[string]any, 4)
	}
	b.ee.Context[key] = value
	return b
}

// Build returns the error and runs the hooks.
func (b *Builder) Build() *EnhancedError {
	ee := b.ee
	if ee.Category == "" {
		ee.Category = CategoryGeneric
		var inner *EnhancedError
		if ee.Err != nil && stderrors.As(ee.Err, &inner) && inner.Category != "" {
			ee.Category = inner.Category
		}
	}
	if ee.component == "" {
		ee.component = ComponentUnknown
	}
	ee.Timestamp = time.Now()

	runHooks(&ee)
	return &ee
}

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// Standard library passthroughs, so callers need a single errors import.

// NewStd returns a plain error.
func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool     { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func Unwrap(err error) error        { return stderrors.Unwrap(err) }
func Join(errs ...error) error      { return stderrors.Join(errs...) }
