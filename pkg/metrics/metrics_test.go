package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvs-project/taskstate/pkg/metrics"
	"github.com/jvs-project/taskstate/pkg/model"
)

func TestRegistry_RecordExecution(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordExecution(model.OutcomeExecuted, 20*time.Millisecond)
	r.RecordExecution(model.OutcomeExecuted, 30*time.Millisecond)
	r.RecordExecution(model.OutcomeUpToDate, time.Millisecond)

	n, err := testutil.GatherAndCount(r.Gatherer(), "taskstate_task_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	expected := `
# HELP taskstate_task_executions_total Task executions by outcome.
# TYPE taskstate_task_executions_total counter
taskstate_task_executions_total{outcome="executed"} 2
taskstate_task_executions_total{outcome="up_to_date"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected), "taskstate_task_executions_total"))
}

func TestRegistry_Handler(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordChange("Output", "removed")
	r.RecordReconciled(12)
	r.RecordStoreError("save")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `taskstate_changes_detected_total{detector="Output",type="removed"} 1`)
	assert.Contains(t, body, "taskstate_reconciled_output_files_count 1")
	assert.Contains(t, body, `taskstate_store_errors_total{op="save"} 1`)
}

func TestDefault_IsShared(t *testing.T) {
	assert.Same(t, metrics.Default(), metrics.Default())
}
