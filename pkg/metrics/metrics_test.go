package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The registry is process-wide, so the disabled and enabled phases run in
// one test in a fixed order.
func TestMetricsLifecycle(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		if IsEnabled() {
			t.Skip("registry already initialized")
		}
		assert.Nil(t, GetRegistry())
		assert.Equal(t, NewNoopFTPMetrics(), NewFTPMetrics())
		assert.Nil(t, NewStorageMetrics("memory"))

		rec := httptest.NewRecorder()
		NewServer(ServerConfig{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	InitRegistry()
	InitRegistry()
	require.True(t, IsEnabled())

	ftp := NewFTPMetrics().(*ftpMetrics)
	store := NewStorageMetrics("s3").(*storageMetrics)

	t.Run("ftp", func(t *testing.T) {
		ftp.RecordSessionOpened()
		ftp.RecordSessionOpened()
		ftp.RecordSessionClosed()
		assert.Equal(t, 1.0, testutil.ToFloat64(ftp.activeSessions))
		assert.Equal(t, 2.0, testutil.ToFloat64(ftp.sessionsTotal))

		ftp.RecordLogin(LoginRejected)
		assert.Equal(t, 1.0, testutil.ToFloat64(ftp.logins.WithLabelValues(LoginRejected)))

		ftp.RecordBytesTransferred(DirectionUpload, 512)
		ftp.RecordBytesTransferred(DirectionUpload, 0)
		assert.Equal(t, 512.0, testutil.ToFloat64(ftp.bytesTransferred.WithLabelValues(DirectionUpload)))

		ftp.RecordOperation("mkdir", time.Millisecond, errors.New("boom"))
		assert.Equal(t, 1.0, testutil.ToFloat64(ftp.operationsTotal.WithLabelValues("mkdir", "error")))
	})

	t.Run("storage", func(t *testing.T) {
		store.ObserveOperation("stat", time.Millisecond, nil)
		assert.Equal(t, 1.0, testutil.ToFloat64(store.operationsTotal.WithLabelValues("s3", "stat", "success")))

		// A second backend shares the vectors
		local := NewStorageMetrics("local").(*storageMetrics)
		local.ObserveOperation("stat", time.Millisecond, nil)
		assert.Equal(t, 1.0, testutil.ToFloat64(store.operationsTotal.WithLabelValues("local", "stat", "success")))
	})

	t.Run("server", func(t *testing.T) {
		handler := NewServer(ServerConfig{Port: 19090}).Handler()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "hdftp_ftp_sessions_total"))

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
