package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWritePrometheusIncludesCounters(t *testing.T) {
	MatchCreated()
	MatchCreated()

	rec := httptest.NewRecorder()
	WritePrometheus(rec)

	body := rec.Body.String()
	if !strings.Contains(body, "# TYPE organlink_matches_created_total counter") {
		t.Fatalf("missing type line in %q", body)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(body, "organlink_policy_documents_skipped_total") {
		t.Fatal("missing policy skip counter")
	}
}
