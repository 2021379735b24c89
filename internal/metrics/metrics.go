package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexdesk_documents_ingested_total",
		Help: "Knowledge documents ingested, by source type and outcome.",
	}, []string{"source_type", "outcome"})

	ChunksWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexdesk_chunks_written_total",
		Help: "Knowledge chunks embedded and persisted.",
	})

	RetrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexdesk_retrieval_duration_seconds",
		Help:    "Time to embed a question and assemble its context.",
		Buckets: prometheus.DefBuckets,
	})

	RetrievalResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexdesk_retrieval_results_total",
		Help: "Retrieval outcomes, by whether any context qualified.",
	}, []string{"result"}) // "context" | "empty"

	ChatTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexdesk_chat_turns_total",
		Help: "Completed chat turns, by outcome.",
	}, []string{"outcome"}) // "ok" | "cap_reached" | "error"

	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexdesk_inbound_messages_total",
		Help: "Inbound provider callbacks, by terminal status.",
	}, []string{"status"})

	OutboundSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexdesk_outbound_sends_total",
		Help: "Outbound message dispatches, by outcome.",
	}, []string{"outcome"}) // "sent" | "deduped" | "failed"
)

// Handler exposes the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
