package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersAndHandler(t *testing.T) {
	m := New()
	m.RecordFetch("structured_feed", 0.2, nil)
	m.RecordFetch("structured_feed", 0.4, errors.New("boom"))
	m.RecordEvaluation("triggered")
	m.RecordNotification("telegram", "delivered")
	m.RecordSkipped()
	m.RecordPass(3, 1.5)

	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("structured_feed", "error")); got != 1 {
		t.Fatalf("unexpected error fetch count %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveAlerts); got != 3 {
		t.Fatalf("unexpected active alerts %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"ratewatch_evaluations_total", "ratewatch_skipped_tasks_total", "ratewatch_notifications_total"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metric %s missing from exposition", name)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordFetch("feed", 1, nil)
	m.RecordEvaluation("quiet")
	m.RecordNotification("log", "delivered")
	m.RecordSkipped()
	m.RecordPass(0, 0)
}
