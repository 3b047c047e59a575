package errors_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/ajitpratap0/recordflow/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeCoercion, "cannot coerce property to integer").
		WithDetail("property", "record.ttl").
		WithDetail("value", "abc")

	fmt.Println(err.Error())

	// Output:
	// coercion: cannot coerce property to integer
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeData, "failed to decode record").
		WithDetail("codec", "avro")

	if errors.IsType(err, errors.ErrorTypeData) {
		fmt.Println("data error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("caused by unexpected EOF")
	}

	// Output:
	// data error
	// caused by unexpected EOF
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.ErrorTypeInternal, "nothing"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := errors.New(errors.ErrorTypeInitialization, "connect failed")
	outer := errors.Wrap(inner, errors.ErrorTypeResolution, "service cache unavailable")

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, errors.IsType(outer, errors.ErrorTypeResolution))
	assert.False(t, errors.IsType(outer, errors.ErrorTypeInitialization))
	assert.True(t, errors.HasType(outer, errors.ErrorTypeInitialization))
	assert.Equal(t, "resolution: service cache unavailable: initialization: connect failed", outer.Error())
}

func TestNewf(t *testing.T) {
	err := errors.Newf(errors.ErrorTypeStructural, "context %q is finalized", "proc-1")
	assert.Equal(t, `structural: context "proc-1" is finalized`, err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestIsTypeForeignError(t *testing.T) {
	assert.False(t, errors.IsType(io.EOF, errors.ErrorTypeData))
	assert.False(t, errors.HasType(io.EOF, errors.ErrorTypeData))
}
