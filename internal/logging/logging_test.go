package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	Info().Msg("hidden")
	Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

func TestCtxCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	ctx := WithRequestID(context.Background(), "req-123")
	require.Equal(t, "req-123", RequestID(ctx))

	Ctx(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "info", parseLevel("bogus").String())
	assert.Equal(t, "warn", parseLevel("WARNING").String())
	assert.Equal(t, "debug", parseLevel("debug").String())
}
