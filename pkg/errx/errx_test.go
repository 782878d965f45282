package errx_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Abraxas-365/jobqueue/pkg/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testErrors  = errx.NewRegistry("TEST")
	errNotFound = testErrors.Register("ITEM_NOT_FOUND", errx.TypeNotFound, 404, "Item not found")
	errUpstream = testErrors.Register("UPSTREAM", errx.TypeExternal, 0, "Upstream unavailable")
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, "TEST_ITEM_NOT_FOUND", errNotFound.Code)
	assert.Equal(t, 502, errUpstream.HTTPStatus, "zero status falls back to the type default")

	code, ok := testErrors.Lookup("ITEM_NOT_FOUND")
	require.True(t, ok)
	assert.Same(t, errNotFound, code)

	_, ok = testErrors.Lookup("TEST_ITEM_NOT_FOUND")
	assert.False(t, ok)
}

func TestError_Format(t *testing.T) {
	err := testErrors.New(errNotFound)
	assert.Equal(t, "[TEST_ITEM_NOT_FOUND] Item not found", err.Error())

	cause := errors.New("connection refused")
	wrapped := testErrors.NewWithCause(errUpstream, cause)
	assert.Equal(t, "[TEST_UPSTREAM] Upstream unavailable: connection refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestIsCodeAndType_WalkTheChain(t *testing.T) {
	inner := testErrors.New(errNotFound).WithDetail("id", "42")
	outer := testErrors.NewWithCause(errUpstream, fmt.Errorf("lookup: %w", inner))
	wrapped := fmt.Errorf("handler: %w", outer)

	assert.True(t, errx.IsCode(wrapped, errUpstream.Code))
	assert.True(t, errx.IsCode(wrapped, errNotFound.Code))
	assert.True(t, errx.IsType(wrapped, errx.TypeExternal))
	assert.True(t, errx.IsType(wrapped, errx.TypeNotFound))
	assert.False(t, errx.IsType(wrapped, errx.TypeConflict))

	assert.False(t, errx.IsCode(errors.New("plain"), errNotFound.Code))
	assert.False(t, errx.IsCode(nil, errNotFound.Code))
}

func TestToHTTPResponse(t *testing.T) {
	resp := testErrors.New(errNotFound).WithDetail("id", "42").ToHTTPResponse()
	assert.Equal(t, errx.HTTPErrorResponse{
		Code:       "TEST_ITEM_NOT_FOUND",
		Message:    "Item not found",
		Type:       "NOT_FOUND",
		Details:    map[string]any{"id": "42"},
		StatusCode: 404,
	}, resp)

	bare := &errx.Error{Code: "X", Type: errx.TypeConflict}
	assert.Equal(t, 409, bare.ToHTTPResponse().StatusCode)
}

func TestError_MarshalJSON(t *testing.T) {
	err := testErrors.NewWithCause(errUpstream, errors.New("timeout"))

	raw, mErr := json.Marshal(err)
	require.NoError(t, mErr)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "TEST_UPSTREAM", body["code"])
	assert.Equal(t, "EXTERNAL", body["type"])
	assert.Equal(t, "[TEST_UPSTREAM] Upstream unavailable: timeout", body["error"])
	assert.NotContains(t, body, "details")
}
