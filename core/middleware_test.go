package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		devMode   bool
		status    int
		wantLogs  int
		wantLevel zapcore.Level
	}{
		{"production skips success", false, http.StatusOK, 0, 0},
		{"production logs client errors", false, http.StatusBadRequest, 1, zapcore.WarnLevel},
		{"production logs server errors", false, http.StatusInternalServerError, 1, zapcore.ErrorLevel},
		{"development logs everything", true, http.StatusOK, 1, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zc, logs := observer.New(zapcore.DebugLevel)
			logger := NewLoggerFromZap(zap.New(zc), "test")

			handler := LoggingMiddleware(logger, tt.devMode)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/process", nil))

			require.Equal(t, tt.wantLogs, logs.Len())
			if tt.wantLogs > 0 {
				entry := logs.All()[0]
				assert.Equal(t, tt.wantLevel, entry.Level)
				assert.Equal(t, "/process", entry.ContextMap()["path"])
				assert.EqualValues(t, tt.status, entry.ContextMap()["status"])
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	zc, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromZap(zap.New(zc), "test")

	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/process", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, GenericErrorDetail, body.Detail)
	assert.NotContains(t, rec.Body.String(), "nil map write")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "nil map write", logs.All()[0].ContextMap()["panic"])
}

func TestRecoveryMiddleware_AfterWrite(t *testing.T) {
	handler := RecoveryMiddleware(&NoOpLogger{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestBodyLimitMiddleware(t *testing.T) {
	var readErr error
	handler := BodyLimitMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	assert.NoError(t, readErr)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("much longer than eight")))
	var maxErr *http.MaxBytesError
	assert.True(t, errors.As(readErr, &maxErr))
}
