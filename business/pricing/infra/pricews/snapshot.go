package pricews

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/pricing/app"
	"github.com/fd1az/perp-router/business/pricing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/httpclient"
	"github.com/fd1az/perp-router/internal/logger"
)

var _ app.Snapshotter = (*SnapshotClient)(nil)

const snapshotTimeout = 5 * time.Second

// SnapshotClient fetches the full price map over HTTP. The response body
// has the same shape as a stream frame.
type SnapshotClient struct {
	client httpclient.Client
	url    string
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewSnapshotClient creates a snapshot client for url.
func NewSnapshotClient(url string, log logger.LoggerInterface) (*SnapshotClient, error) {
	tracer := otel.Tracer(tracerName)
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("price-snapshot"),
		httpclient.WithRequestTimeout(snapshotTimeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return &SnapshotClient{client: client, url: url, logger: log, tracer: tracer}, nil
}

// Snapshot fetches every price.
func (s *SnapshotClient) Snapshot(ctx context.Context) ([]domain.Tick, error) {
	ctx, span := s.tracer.Start(ctx, "pricews.snapshot")
	defer span.End()

	resp, err := s.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", "snapshot")),
	).Get(ctx, s.url)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeExternalServiceError,
			apperror.WithCause(err),
			apperror.WithContext("price snapshot request failed"))
	}
	if resp.IsError() {
		return nil, apperror.New(apperror.CodeExternalServiceError,
			apperror.WithContext(fmt.Sprintf("price snapshot: HTTP %d", resp.StatusCode)))
	}

	ticks, err := ParseFrame(resp.Body())
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidFormat,
			apperror.WithCause(err),
			apperror.WithContext("price snapshot body"))
	}

	span.SetAttributes(attribute.Int("symbols", len(ticks)))
	s.logger.Debug(ctx, "fetched price snapshot", "symbols", len(ticks))
	return ticks, nil
}
