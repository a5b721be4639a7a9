package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithOrderID(ctx, "order-9")

	log.Error(ctx, "boom", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "req-123", entry["request_id"])
	require.Equal(t, "order-9", entry["order_id"])
	require.Equal(t, "boom", entry["error"])
	require.Contains(t, entry, "stack")
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	require.Contains(t, buf.String(), "\"stack\"")

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	quiet.Warn(context.Background(), "warny")
	require.NotContains(t, buf.String(), "\"stack\"")
}

func TestLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("warn"), Output: buf})
	log.Info(context.Background(), "hidden")
	log.Debug(context.Background(), "hidden")
	require.Empty(t, buf.String())
}

func TestParseLevelDefaults(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	require.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}

func TestLoggerLogWarnWithError(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: "json"})
	log.Log(context.Background(), zerolog.WarnLevel, "client error", errors.New("bad input"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "bad input", entry["error"])
	require.NotContains(t, entry, "stack")
}

func TestLoggerWithFieldsAndNop(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, Format: "json"})
	ctx := log.WithFields(context.Background(), map[string]any{"b": 2, "a": "x"})
	log.Info(ctx, "hello")
	require.Contains(t, buf.String(), `"a":"x","b":2`)

	Nop().Error(context.Background(), "dropped", errors.New("x"))
}
