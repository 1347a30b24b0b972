/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records per-phase counters and durations and traces each
// phase with an OpenTelemetry span. Task invocations are short lived, so
// metrics are pushed to a Pushgateway when one is configured rather than
// scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Job is the Pushgateway job name.
const Job = "feedstock_tasks"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder holds the metrics of a single invocation.
type Recorder struct {
	reg *prometheus.Registry

	phaseTotal    *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	pushFailures  *prometheus.CounterVec
	comments      *prometheus.CounterVec
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		phaseTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedstock_task_phase_total",
				Help: "Total number of task phase invocations by outcome",
			},
			[]string{"phase", "task", "outcome"},
		),
		phaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedstock_task_phase_duration_seconds",
				Help:    "Duration of task phases in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase", "task"},
		),
		pushFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedstock_task_push_failures_total",
				Help: "Total number of failed pushes to pull request branches",
			},
			[]string{"task"},
		),
		comments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedstock_task_comments_total",
				Help: "Total number of comments posted on pull requests",
			},
			[]string{"task"},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Track starts a span for phase and returns a function that ends it and
// records the outcome. The returned context carries the span.
func (r *Recorder) Track(ctx context.Context, phase, kind string) (context.Context, func(error)) {
	tr := otel.Tracer("chainguard.dev/feedstocktasks/metrics",
		oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, "feedstock-tasks."+phase,
		oteltrace.WithAttributes(
			attribute.String("task.phase", phase),
			attribute.String("task.kind", kind),
		))

	start := time.Now()
	return ctx, func(err error) {
		defer span.End()

		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		r.phaseTotal.WithLabelValues(phase, kind, outcome).Inc()
		r.phaseDuration.WithLabelValues(phase, kind).Observe(time.Since(start).Seconds())
	}
}

// PushFailed records a push that could not reach the pull request branch.
func (r *Recorder) PushFailed(kind string) {
	r.pushFailures.WithLabelValues(kind).Inc()
}

// Commented records a comment posted on a pull request.
func (r *Recorder) Commented(kind string) {
	r.comments.WithLabelValues(kind).Inc()
}

// Push sends the collected metrics to the Pushgateway at url. It is a no-op
// when url is empty.
func (r *Recorder) Push(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, Job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	clog.FromContext(ctx).Debugf("Pushed metrics to %s", url)
	return nil
}

type recorderKey struct{}

// WithRecorder attaches r to ctx.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// FromContext returns the Recorder attached to ctx, or a fresh detached one
// so callers never need a nil check.
func FromContext(ctx context.Context) *Recorder {
	if r, ok := ctx.Value(recorderKey{}).(*Recorder); ok {
		return r
	}
	return New()
}
