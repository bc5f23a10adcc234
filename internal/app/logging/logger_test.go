package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithContextIncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New("coordinatord", "info", "json")
	log.SetOutput(&buf)

	ctx := WithRequestID(context.Background(), "req-123")
	log.WithContext(ctx).Info("hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "req-123", decoded["request_id"])
	require.Equal(t, "coordinatord", decoded["service"])
}

func TestRequestIDFromContextDefaultsEmpty(t *testing.T) {
	require.Equal(t, "", RequestIDFromContext(context.Background()))
}
