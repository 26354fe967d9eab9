package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

var (
	matchRequests          atomic.Int64
	matchRequestsFailed    atomic.Int64
	matchesCreated         atomic.Int64
	matchesDeduplicated    atomic.Int64
	matchTransitions       atomic.Int64
	matchesExpired         atomic.Int64
	predictions            atomic.Int64
	coldStartTrainings     atomic.Int64
	policyDocumentsSkipped atomic.Int64
	trainingRuns           atomic.Int64
	trainingRunsFailed     atomic.Int64
	modelReloads           atomic.Int64
	notificationsFailed    atomic.Int64
)

func MatchRequested() { matchRequests.Add(1) }
func MatchRequestFailed() { matchRequestsFailed.Add(1) }
func MatchCreated() { matchesCreated.Add(1) }
func MatchDeduplicated() { matchesDeduplicated.Add(1) }
func MatchTransitioned() { matchTransitions.Add(1) }
func MatchesExpired(n int) { matchesExpired.Add(int64(n)) }
func PredictionsServed(n int) { predictions.Add(int64(n)) }
func ColdStartTrained() { coldStartTrainings.Add(1) }
func PolicyDocumentSkipped() { policyDocumentsSkipped.Add(1) }
func TrainingRunCompleted() { trainingRuns.Add(1) }
func TrainingRunFailed() { trainingRunsFailed.Add(1) }
func ModelReloaded() { modelReloads.Add(1) }
func NotificationDeliveryFailed() { notificationsFailed.Add(1) }
func PolicyDocumentsSkipped() int64 { return policyDocumentsSkipped.Load() }

type series struct {
	name  string
	help  string
	kind  string
	value *atomic.Int64
}

var allSeries = []series{
	{"organlink_match_requests_total", "Match attempts received by the engine.", "counter", &matchRequests},
	{"organlink_match_requests_failed_total", "Match attempts that returned an error.", "counter", &matchRequestsFailed},
	{"organlink_matches_created_total", "PENDING matches persisted.", "counter", &matchesCreated},
	{"organlink_matches_deduplicated_total", "Candidates skipped because a PENDING match already existed for the pair.", "counter", &matchesDeduplicated},
	{"organlink_match_transitions_total", "Match status transitions applied.", "counter", &matchTransitions},
	{"organlink_matches_expired_total", "PENDING matches expired by the sweeper.", "counter", &matchesExpired},
	{"organlink_predictions_total", "Compatibility probabilities computed.", "counter", &predictions},
	{"organlink_cold_start_trainings_total", "Models bootstrapped because no persisted model existed.", "counter", &coldStartTrainings},
	{"organlink_policy_documents_skipped_total", "Policy documents skipped because they could not be parsed.", "counter", &policyDocumentsSkipped},
	{"organlink_training_runs_total", "Training runs completed.", "counter", &trainingRuns},
	{"organlink_training_runs_failed_total", "Training runs failed.", "counter", &trainingRunsFailed},
	{"organlink_model_reloads_total", "Times a newer persisted model replaced the in-memory one.", "counter", &modelReloads},
	{"organlink_notifications_failed_total", "Hospital notifications the sink failed to accept.", "counter", &notificationsFailed},
}

func Write(w io.Writer) {
	for _, s := range allSeries {
		fmt.Fprintf(w, "# HELP %s %s\n", s.name, s.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", s.name, s.kind)
		fmt.Fprintf(w, "%s %d\n", s.name, s.value.Load())
	}
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	Write(w)
}

func Handler(w http.ResponseWriter, r *http.Request) {
	WritePrometheus(w)
}
