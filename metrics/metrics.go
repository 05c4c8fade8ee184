/*
Package metrics exposes Prometheus instrumentation for conversion jobs.
*/
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcmap_jobs_total",
		Help: "Total number of conversion jobs, by status",
	}, []string{"status"})

	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcmap_frames_decoded_total",
		Help: "Total number of frames decoded from sources",
	})

	FramesConvertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcmap_frames_converted_total",
		Help: "Total number of sampled frames fully written as maps",
	})

	ArtifactsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcmap_artifacts_written_total",
		Help: "Total number of map files written",
	})

	ArtifactBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcmap_artifact_bytes_total",
		Help: "Total size in bytes of map files written",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcmap_stage_duration_seconds",
		Help:    "Time spent per frame in each pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"stage"})

	FailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcmap_failures_total",
		Help: "Total number of job failures, by stage",
	}, []string{"stage"})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
