package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector()
	c.SetQueueLength("ingest", 12)
	c.Processed("ingest", OutcomeDone, time.Second)
	c.Processed("ingest", OutcomeDone, time.Second)
	c.ExportBytes("archive.example.org", 2880)

	assert.Equal(t, 12.0, testutil.ToFloat64(c.queueLength.WithLabelValues("ingest")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.processed.WithLabelValues("ingest", OutcomeDone)))
	assert.Equal(t, 2880.0, testutil.ToFloat64(c.exportBytes.WithLabelValues("archive.example.org")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.SetQueueLength("ingest", 1)
	c.Processed("ingest", OutcomeFailed, time.Second)
	c.ExportBytes("x", 1)
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector()
	c.SetQueueLength("export", 3)
	h, err := Handler(c)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `fitsstore_queue_length{queue="export"} 3`)
}
