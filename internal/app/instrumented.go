package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/course-assistant-backend/internal/clients/gemini"
	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/observability"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

type instrumentedStore struct {
	inner   store.Store
	metrics *observability.Metrics
	tracer  trace.Tracer
}

func instrumentStore(inner store.Store, m *observability.Metrics) store.Store {
	if inner == nil {
		return nil
	}
	return &instrumentedStore{inner: inner, metrics: m, tracer: observability.Tracer("store")}
}

func (s *instrumentedStore) FetchAll(ctx context.Context) ([]*knowledge.CourseRecord, error) {
	ctx, span := s.tracer.Start(ctx, "store.FetchAll")
	start := time.Now()
	out, err := s.inner.FetchAll(ctx)
	span.SetAttributes(attribute.Int("kb.records", len(out)))
	s.observe(span, "fetch_all", err, time.Since(start))
	return out, err
}

func (s *instrumentedStore) Upsert(ctx context.Context, rec *knowledge.CourseRecord) (*knowledge.CourseRecord, error) {
	ctx, span := s.tracer.Start(ctx, "store.Upsert")
	if rec != nil {
		span.SetAttributes(attribute.String("kb.course", rec.Course))
	}
	start := time.Now()
	out, err := s.inner.Upsert(ctx, rec)
	s.observe(span, "upsert", err, time.Since(start))
	return out, err
}

func (s *instrumentedStore) Delete(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "store.Delete", trace.WithAttributes(attribute.Int64("kb.id", id)))
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.observe(span, "delete", err, time.Since(start))
	return err
}

func (s *instrumentedStore) Subscribe(ctx context.Context) (store.Subscription, error) {
	ctx, span := s.tracer.Start(ctx, "store.Subscribe")
	start := time.Now()
	sub, err := s.inner.Subscribe(ctx)
	s.observe(span, "subscribe", err, time.Since(start))
	return sub, err
}

func (s *instrumentedStore) observe(span trace.Span, op string, err error, dur time.Duration) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(store.CodeOf(err)))
	}
	span.End()
	s.metrics.ObserveStore(op, err, dur)
}

type instrumentedAI struct {
	inner   gemini.Client
	metrics *observability.Metrics
	tracer  trace.Tracer
}

func instrumentAI(inner gemini.Client, m *observability.Metrics) gemini.Client {
	if inner == nil {
		return nil
	}
	return &instrumentedAI{inner: inner, metrics: m, tracer: observability.Tracer("gemini")}
}

func (a *instrumentedAI) Complete(ctx context.Context, history []gemini.Message, systemInstruction string, contextParts []gemini.Part) (string, error) {
	ctx, span := a.tracer.Start(ctx, "gemini.Complete", trace.WithAttributes(
		attribute.Int("ai.turns", len(history)),
		attribute.Int("ai.context_parts", len(contextParts)),
	))
	start := time.Now()
	out, err := a.inner.Complete(ctx, history, systemInstruction, contextParts)
	a.observe(span, "complete", err, time.Since(start))
	return out, err
}

func (a *instrumentedAI) ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "gemini.ExtractDocument", trace.WithAttributes(
		attribute.String("ai.mime_type", mimeType),
		attribute.Int("ai.bytes", len(data)),
	))
	start := time.Now()
	out, err := a.inner.ExtractDocument(ctx, data, mimeType)
	a.observe(span, "extract", err, time.Since(start))
	return out, err
}

func (a *instrumentedAI) observe(span trace.Span, op string, err error, dur time.Duration) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(gemini.KindOf(err)))
	}
	span.End()
	a.metrics.ObserveAI(op, err, dur)
}
