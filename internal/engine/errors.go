package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every *ConfigurationError
	ErrConfiguration = errors.New("invalid simulation parameters")
	// ErrShapeMismatch matches every *ShapeMismatchError
	ErrShapeMismatch = errors.New("price path length does not match step count")
	// ErrNumericDomain matches every *NumericDomainError
	ErrNumericDomain = errors.New("value outside numeric domain")
)

// ConfigurationError reports a parameter rejected before any state is allocated
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s=%v %s", ErrConfiguration, e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ShapeMismatchError reports a price path whose length differs from Params.N
type ShapeMismatchError struct {
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%v: want %d samples, got %d", ErrShapeMismatch, e.Want, e.Got)
}

func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// NumericDomainError reports a non-finite or out-of-range intermediate value.
// Step is -1 for values computed during setup.
type NumericDomainError struct {
	Step     int
	Quantity string
	Value    float64
}

func (e *NumericDomainError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("%v: %s=%v during setup", ErrNumericDomain, e.Quantity, e.Value)
	}
	return fmt.Sprintf("%v: %s=%v at step %d", ErrNumericDomain, e.Quantity, e.Value, e.Step)
}

func (e *NumericDomainError) Is(target error) bool {
	return target == ErrNumericDomain
}
