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

// Package observability exposes Prometheus metrics for the core call paths:
// generation, embedding, retrieval and routing.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns on metrics collection. Default: false.
	Enabled bool `yaml:"enabled,omitempty"`

	// Namespace prefixes all metric names. Default: "lector".
	Namespace string `yaml:"namespace,omitempty"`
}

// SetDefaults applies default values.
func (c *MetricsConfig) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "lector"
	}
}

// Validate checks the configuration.
func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Namespace == "" {
		return fmt.Errorf("namespace is required when metrics are enabled")
	}
	return nil
}

// InitMetrics builds the Prometheus-backed metrics recorder. Disabled
// config yields a recorder whose methods are no-ops.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter(cfg.Namespace)
	ns := cfg.Namespace

	m := &PrometheusMetrics{}
	if m.generateDuration, err = meter.Float64Histogram(
		ns+"_generate_duration_seconds",
		metric.WithDescription("Generation call duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generate duration histogram: %w", err)
	}
	if m.generateCalls, err = meter.Int64Counter(
		ns+"_generate_calls_total",
		metric.WithDescription("Total generation calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generate calls counter: %w", err)
	}
	if m.generateErrors, err = meter.Int64Counter(
		ns+"_generate_errors_total",
		metric.WithDescription("Total generation failures"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generate errors counter: %w", err)
	}
	if m.generateTokens, err = meter.Int64Counter(
		ns+"_generate_tokens_total",
		metric.WithDescription("Total tokens reported by providers"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generate tokens counter: %w", err)
	}

	if m.embedDuration, err = meter.Float64Histogram(
		ns+"_embed_duration_seconds",
		metric.WithDescription("Embedding batch duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create embed duration histogram: %w", err)
	}
	if m.embedTexts, err = meter.Int64Counter(
		ns+"_embed_texts_total",
		metric.WithDescription("Total texts embedded"),
	); err != nil {
		return nil, fmt.Errorf("failed to create embed texts counter: %w", err)
	}
	if m.embedErrors, err = meter.Int64Counter(
		ns+"_embed_errors_total",
		metric.WithDescription("Total embedding failures"),
	); err != nil {
		return nil, fmt.Errorf("failed to create embed errors counter: %w", err)
	}

	if m.retrieveDuration, err = meter.Float64Histogram(
		ns+"_retrieve_duration_seconds",
		metric.WithDescription("Retrieval duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieve duration histogram: %w", err)
	}
	if m.retrieveReferences, err = meter.Int64Counter(
		ns+"_retrieve_references_total",
		metric.WithDescription("Total references retrieved"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieve references counter: %w", err)
	}
	if m.retrieveErrors, err = meter.Int64Counter(
		ns+"_retrieve_errors_total",
		metric.WithDescription("Total retrieval failures"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieve errors counter: %w", err)
	}

	if m.routeCalls, err = meter.Int64Counter(
		ns+"_route_calls_total",
		metric.WithDescription("Total routed requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create route calls counter: %w", err)
	}
	if m.routeErrors, err = meter.Int64Counter(
		ns+"_route_errors_total",
		metric.WithDescription("Total routing failures"),
	); err != nil {
		return nil, fmt.Errorf("failed to create route errors counter: %w", err)
	}

	return m, nil
}
