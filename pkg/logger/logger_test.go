package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"console", Config{Level: "debug", Encoding: "console", Development: true}, false},
		{"bad level", Config{Level: "loud"}, true},
		{"bad encoding", Config{Encoding: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, Get())
		})
	}
}

func TestFields(t *testing.T) {
	assert.Empty(t, Fields(context.Background()))

	ctx := ContextWithProcessor(ContextWithStream(context.Background(), "main"), "tagger")
	assert.Equal(t, []zap.Field{zap.String("stream", "main"), zap.String("processor", "tagger")}, Fields(ctx))
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	mu.Lock()
	previous := globalLogger
	globalLogger = zap.New(core)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		globalLogger = previous
		mu.Unlock()
	})

	WithContext(ContextWithStream(context.Background(), "main")).Info("batch done")
	Warn("careful")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "main", entries[0].ContextMap()["stream"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}
