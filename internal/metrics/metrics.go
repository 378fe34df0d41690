// Package metrics exposes Prometheus instrumentation for the redaction
// pipeline. Collectors live on a private registry so embedding applications
// control what gets scraped; Registry() hands it to an exporter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var registry = prometheus.NewRegistry()

var (
	// DocumentsProcessed counts completed pipeline runs by outcome
	// ("redacted", "failed").
	DocumentsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docscrub",
		Subsystem: "redact",
		Name:      "documents_total",
		Help:      "Documents run through the redaction pipeline, by outcome.",
	}, []string{"outcome"})

	// Replacements counts placeholder substitutions by category
	// ("client", "person", "email", "phone", "address").
	Replacements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docscrub",
		Subsystem: "redact",
		Name:      "replacements_total",
		Help:      "Placeholder replacements written, by category.",
	}, []string{"category"})

	// ValidationFailures counts strict-mode validation failures.
	ValidationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docscrub",
		Subsystem: "redact",
		Name:      "validation_failures_total",
		Help:      "Documents that failed strict post-redaction validation.",
	})

	// EntityStageDegraded counts documents where the entity stage was
	// skipped after exhausting retries.
	EntityStageDegraded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docscrub",
		Subsystem: "redact",
		Name:      "entity_stage_degraded_total",
		Help:      "Documents processed without the LLM entity stage after retry exhaustion.",
	})

	// LLMRetries counts retried detector calls.
	LLMRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docscrub",
		Subsystem: "detect",
		Name:      "llm_retries_total",
		Help:      "Entity detector call retries.",
	})

	// RedactionDuration observes wall time per document.
	RedactionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docscrub",
		Subsystem: "redact",
		Name:      "duration_seconds",
		Help:      "Wall time to redact one document.",
		Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 180},
	})
)

func init() {
	registry.MustRegister(
		DocumentsProcessed,
		Replacements,
		ValidationFailures,
		EntityStageDegraded,
		LLMRetries,
		RedactionDuration,
	)
}

// Registry returns the pipeline's metric registry for scraping.
func Registry() *prometheus.Registry {
	return registry
}
