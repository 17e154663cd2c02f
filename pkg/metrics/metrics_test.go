package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.AddRows("parsed", 3)
	m.AddRows("failed", 1)
	m.AddRows("skipped", 0)
	m.AddDuplicates("existing", 2)
	m.Preview("ok")
	m.Commit("error")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.InboxFile("imported")
	m.ObserveStage("extract", time.Now())
	m.ObserveHTTP("/imports", http.StatusOK, time.Now())

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsProcessed.WithLabelValues("parsed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsProcessed.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Duplicates.WithLabelValues("existing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Previews.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commits.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InboxFiles.WithLabelValues("imported")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/imports", "OK")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddRows("parsed", 1)
		m.AddDuplicates("batch", 1)
		m.Preview("ok")
		m.Commit("ok")
		m.SessionOpened()
		m.SessionClosed()
		m.InboxFile("failed")
		m.ObserveStage("detect", time.Now())
		m.ObserveHTTP("/", 200, time.Now())
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.AddRows("parsed", 5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `statement_import_rows_total{outcome="parsed"} 5`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
