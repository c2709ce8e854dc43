package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObserveTask("resources", OutcomeSucceeded)
	r.ObserveTask("resources", OutcomeSucceeded)
	r.ObserveTask("resources", OutcomeFailed)
	r.ObserveTask("images", OutcomeSkipped)

	assert.InDelta(t, 2, testutil.ToFloat64(r.stageTasks.WithLabelValues("resources", OutcomeSucceeded)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.stageTasks.WithLabelValues("resources", OutcomeFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.stageTasks.WithLabelValues("images", OutcomeSkipped)), 0)
}

func TestRecorderRowsUsageAndDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObserveRows("resource_info", "written", 3)
	r.ObserveRows("resource_info", "ignored", 0)
	r.SetDiskUsage(2048)
	r.AddRemovedFiles(2)
	r.AddRemovedFiles(-1)
	r.ObserveRunDuration(1500 * time.Millisecond)

	assert.InDelta(t, 3, testutil.ToFloat64(r.storeRows.WithLabelValues("resource_info", "written")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(r.storeRows))
	assert.InDelta(t, 2048, testutil.ToFloat64(r.diskUsage), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.removedFiles), 0)
	assert.InDelta(t, 1.5, testutil.ToFloat64(r.runDuration), 0)

	expected := `
# HELP mikan_retention_removed_files_total Files deleted by the retention sweeper.
# TYPE mikan_retention_removed_files_total counter
mikan_retention_removed_files_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "mikan_retention_removed_files_total"))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveTask("catalog", OutcomeFailed)
	r.ObserveRows("catalog_entry", "written", 1)
	r.SetDiskUsage(1)
	r.AddRemovedFiles(1)
	r.ObserveRunDuration(time.Second)
}

func TestNewRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	require.Error(t, err)
}

func TestPush(t *testing.T) {
	var (
		calls atomic.Int32
		path  atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		path.Store(r.URL.Path)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)
	r.ObserveTask("catalog", OutcomeSucceeded)

	require.NoError(t, Push(context.Background(), srv.URL, "", reg))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "/metrics/job/mikan", path.Load())
}

func TestPushWithoutURLIsNoop(t *testing.T) {
	require.NoError(t, Push(context.Background(), "", "mikan", prometheus.NewRegistry()))
}
