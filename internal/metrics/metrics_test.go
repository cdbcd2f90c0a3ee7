package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("listing", 200, 100*time.Millisecond)
	RecordRequest("listing", 422, 50*time.Millisecond)
	RecordRequest("build_info", 200, 200*time.Millisecond)

	if got := getCounterValue(t, RequestsTotal, "listing", "422"); got < 1 {
		t.Errorf("requests_total{listing,422} = %v, want >= 1", got)
	}
}

func TestRecordOperation(t *testing.T) {
	before := getCounterValue(t, OperationsTotal, "build_info", "not_found")
	RecordOperation("build_info", "not_found", 3*time.Millisecond)
	RecordOperation("build_info", "ok", 3*time.Millisecond)

	if got := getCounterValue(t, OperationsTotal, "build_info", "not_found"); got != before+1 {
		t.Errorf("operations_total{build_info,not_found} = %v, want %v", got, before+1)
	}
}

func TestRecordListing(t *testing.T) {
	RecordListing("zip", 12, 5*time.Millisecond)
	RecordListing("tar", 0, time.Millisecond)

	ch := make(chan prometheus.Metric, 10)
	ArchiveEntries.Collect(ch)
	close(ch)

	found := false
	for range ch {
		found = true
	}
	if !found {
		t.Error("expected archive entry histogram to be collected")
	}
}

func TestRecordToolRun(t *testing.T) {
	before := getCounterValue(t, ToolFailures, "tar")
	RecordToolRun("tar", 10*time.Millisecond, false)
	RecordToolRun("tar", 10*time.Millisecond, true)

	if got := getCounterValue(t, ToolFailures, "tar"); got != before+1 {
		t.Errorf("tool failures = %v, want %v", got, before+1)
	}
}

func TestRecordDetectionAndCheck(t *testing.T) {
	RecordDetection("c", "make")
	RecordCheck("c", true)
	RecordCheck("c", false)

	// label pairs are ordered by label name: build_system, kind
	if got := getCounterValue(t, Detections, "make", "c"); got < 1 {
		t.Errorf("detections{c,make} = %v, want >= 1", got)
	}
	if got := getCounterValue(t, Checks, "c", "failed"); got < 1 {
		t.Errorf("checks{c,failed} = %v, want >= 1", got)
	}
}

func TestScratchGauge(t *testing.T) {
	start := getGaugeValue(t, ScratchDirsActive)
	ScratchAcquired()
	ScratchAcquired()
	if got := getGaugeValue(t, ScratchDirsActive); got != start+2 {
		t.Errorf("active scratch dirs = %v, want %v", got, start+2)
	}

	errorsBefore := getCounterValue(t, ScratchCleanupErrors)
	ScratchReleased(nil)
	ScratchReleased(errors.New("busy"))
	if got := getGaugeValue(t, ScratchDirsActive); got != start {
		t.Errorf("active scratch dirs = %v, want %v", got, start)
	}
	if got := getCounterValue(t, ScratchCleanupErrors); got != errorsBefore+1 {
		t.Errorf("cleanup errors = %v, want %v", got, errorsBefore+1)
	}
}

func TestRecordStorageOperations(t *testing.T) {
	RecordStorageOperation("stage", 10*time.Millisecond)
	RecordStorageError("stage")

	if got := getCounterValue(t, StorageErrors, "stage"); got < 1 {
		t.Errorf("storage errors = %v, want >= 1", got)
	}
}

func TestActiveRequests(t *testing.T) {
	IncrementActiveRequests()
	DecrementActiveRequests()
}

func TestMetricsAreRegistered(t *testing.T) {
	metrics := []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		OperationsTotal,
		OperationDuration,
		ArchiveListDuration,
		ArchiveEntries,
		ArchiveErrors,
		PathTraversals,
		ToolDuration,
		ToolFailures,
		Detections,
		Checks,
		ScratchDirsActive,
		ScratchCleanupErrors,
		StorageOperationDuration,
		StorageErrors,
		ActiveRequests,
	}

	for _, metric := range metrics {
		ch := make(chan *prometheus.Desc, 10)
		metric.Describe(ch)
		close(ch)

		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("metric has no descriptors: %T", metric)
		}
	}
}

func TestMetricsEndpointOutput(t *testing.T) {
	RecordPathTraversal()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pkginspect_path_traversal_total") {
		t.Error("expected path traversal counter in metrics output")
	}
}

// getCounterValue returns the counter value whose labels equal labelValues,
// in label name order. With no label values the first counter collected is returned.
func getCounterValue(t *testing.T, collector prometheus.Collector, labelValues ...string) float64 {
	t.Helper()

	ch := make(chan prometheus.Metric, 100)
	collector.Collect(ch)
	close(ch)

	for m := range ch {
		metric := &dto.Metric{}
		if err := m.Write(metric); err != nil || metric.Counter == nil {
			continue
		}
		if labelsMatch(metric.Label, labelValues) {
			return metric.Counter.GetValue()
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("writing gauge: %v", err)
	}
	return metric.Gauge.GetValue()
}

func labelsMatch(labels []*dto.LabelPair, values []string) bool {
	if len(values) == 0 {
		return true
	}
	if len(labels) != len(values) {
		return false
	}
	for i, l := range labels {
		if l.GetValue() != values[i] {
			return false
		}
	}
	return true
}
