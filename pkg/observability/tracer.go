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
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerOption configures NewTracer.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	debugExporter   *DebugExporter
	capturePayloads bool
}

// WithDebugExporter attaches an in-memory span exporter alongside the
// configured one, so a caller (e.g. a future debug UI) can inspect recent
// spans without a collector.
func WithDebugExporter(e *DebugExporter) TracerOption {
	return func(o *tracerOptions) { o.debugExporter = e }
}

// WithCapturePayloads enables attaching truncated task/agent payload
// bodies to spans. Off by default: payload bodies can be large and
// may carry sensitive content.
func WithCapturePayloads(capture bool) TracerOption {
	return func(o *tracerOptions) { o.capturePayloads = capture }
}

// Tracer emits OpenTelemetry spans for one orchestrator run: a
// SpanTaskRun per dispatched task and a nested SpanAgentInvoke per
// attempt against pkg/agentproto's transports.
type Tracer struct {
	provider        *sdktrace.TracerProvider
	tracer          trace.Tracer
	debugExporter   *DebugExporter
	capturePayloads bool
}

// NewTracer builds a Tracer backed by the exporter newSpanExporter
// selects (OTLP/gRPC or stdout), sampling per cfg.SamplingRate.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	var to tracerOptions
	for _, opt := range opts {
		opt(&to)
	}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if to.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(to.debugExporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return &Tracer{
		provider:        tp,
		tracer:          tp.Tracer(cfg.ServiceName),
		debugExporter:   to.debugExporter,
		capturePayloads: cfg.CapturePayloads || to.capturePayloads,
	}, nil
}

// newSpanExporter builds the exporter named by cfg.Exporter: "stdout"
// writes human-readable span JSON to stdout (useful for the CLI
// running without a collector nearby); anything else dials an
// OTLP/gRPC collector at cfg.Endpoint.
func newSpanExporter(ctx context.Context, cfg *TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.Exporter == "stdout" {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("observability: create stdout exporter: %w", err)
		}
		return exporter, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: create otlp exporter: %w", err)
	}
	return exporter, nil
}

// Start is the general-purpose span entry point; prefer StartTaskRun
// or StartAgentInvoke where they fit.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartTaskRun starts the span covering one task's full dispatch,
// from breaker admission through checkpoint sealing.
func (t *Tracer) StartTaskRun(ctx context.Context, runID, taskID, agentID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanTaskRun, trace.WithAttributes(
		attribute.String(AttrRunID, runID),
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrAgentID, agentID),
	))
}

// StartAgentInvoke starts the span covering a single attempt at
// agent.Invoke, nested under the enclosing task-run span.
func (t *Tracer) StartAgentInvoke(ctx context.Context, taskID, agentID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAgentInvoke, trace.WithAttributes(
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrAgentID, agentID),
		attribute.Int("orchestrator.attempt", attempt),
	))
}

// AddPayload attaches a truncated payload body to span, if payload
// capture was enabled via WithCapturePayloads.
func (t *Tracer) AddPayload(span trace.Span, key, body string) {
	if !t.capturePayloads {
		return
	}
	span.SetAttributes(attribute.String(key, truncateString(body, 2000)))
}

// RecordError marks span as failed and attaches err, a no-op if err
// is nil.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorType, err.Error()))
}

// DebugExporter returns the in-memory span exporter, or nil if none
// was configured.
func (t *Tracer) DebugExporter() *DebugExporter { return t.debugExporter }

// Shutdown flushes and tears down the underlying TracerProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
