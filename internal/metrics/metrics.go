// Package metrics defines the Prometheus collectors for the harvester.
// Collectors register on the default registry and are exported by the
// serve command's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BooksHarvested counts resources newly created by the book pipeline.
	BooksHarvested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slcrawler_books_harvested_total",
		Help: "Number of new book resources stored.",
	})

	// CandidatesSkipped counts listing candidates dropped for parse failures
	// or missing mandatory fields.
	CandidatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slcrawler_candidates_skipped_total",
		Help: "Number of book candidates skipped without being stored.",
	})

	// TasksFinished counts task terminal transitions per pipeline and status.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slcrawler_tasks_finished_total",
		Help: "Number of tasks reaching a terminal status.",
	}, []string{"pipeline", "status"})

	// BlockedDetected counts anti-automation challenges per pipeline.
	BlockedDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slcrawler_blocked_total",
		Help: "Number of anti-automation challenges that re-queued a task.",
	}, []string{"pipeline"})

	// FilesUploaded counts stored e-book binaries per format.
	FilesUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slcrawler_files_uploaded_total",
		Help: "Number of e-book files uploaded to the asset store.",
	}, []string{"format"})
)
