// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics = &PrometheusMetrics{}
	metricsMu     sync.RWMutex
)

// Metrics records the core call paths. All methods tolerate a nil or
// uninitialized receiver so call sites never guard.
type Metrics interface {
	RecordGeneration(ctx context.Context, model string, duration time.Duration, tokens int, err error)
	RecordEmbedding(ctx context.Context, model string, duration time.Duration, texts int, err error)
	RecordRetrieval(ctx context.Context, engine string, duration time.Duration, references int, err error)
	RecordRoute(ctx context.Context, route string, err error)
}

// PrometheusMetrics is the otel-backed Metrics implementation. The zero
// value is a no-op recorder.
type PrometheusMetrics struct {
	generateDuration metric.Float64Histogram
	generateCalls    metric.Int64Counter
	generateErrors   metric.Int64Counter
	generateTokens   metric.Int64Counter

	embedDuration metric.Float64Histogram
	embedTexts    metric.Int64Counter
	embedErrors   metric.Int64Counter

	retrieveDuration   metric.Float64Histogram
	retrieveReferences metric.Int64Counter
	retrieveErrors     metric.Int64Counter

	routeCalls  metric.Int64Counter
	routeErrors metric.Int64Counter
}

var _ Metrics = (*PrometheusMetrics)(nil)

func (m *PrometheusMetrics) RecordGeneration(ctx context.Context, model string, duration time.Duration, tokens int, err error) {
	if m == nil || m.generateDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.generateDuration.Record(ctx, duration.Seconds(), attrs)
	m.generateCalls.Add(ctx, 1, attrs)
	if tokens > 0 {
		m.generateTokens.Add(ctx, int64(tokens), attrs)
	}
	if err != nil {
		m.generateErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordEmbedding(ctx context.Context, model string, duration time.Duration, texts int, err error) {
	if m == nil || m.embedDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.embedDuration.Record(ctx, duration.Seconds(), attrs)
	m.embedTexts.Add(ctx, int64(texts), attrs)
	if err != nil {
		m.embedErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordRetrieval(ctx context.Context, engine string, duration time.Duration, references int, err error) {
	if m == nil || m.retrieveDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("engine", engine))
	m.retrieveDuration.Record(ctx, duration.Seconds(), attrs)
	m.retrieveReferences.Add(ctx, int64(references), attrs)
	if err != nil {
		m.retrieveErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordRoute(ctx context.Context, route string, err error) {
	if m == nil || m.routeCalls == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("route", route))
	m.routeCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.routeErrors.Add(ctx, 1, attrs)
	}
}

// SetGlobalMetrics installs the process-wide metrics recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics recorder. Never nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
