// Package telemetry provides OpenTelemetry metrics for the sync layer.
// Exporter wiring is left to the embedding process; with no SDK installed
// the global meter is a no-op.
package telemetry

import (
	"context"

	"github.com/erp/syncd/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics tracks push-channel and reconciliation activity
type SyncMetrics struct {
	decoded      metric.Int64Counter
	decodeErrors metric.Int64Counter
	applied      metric.Int64Counter
	stale        metric.Int64Counter
	conflicts    metric.Int64Counter
	timeouts     metric.Int64Counter
	reconnects   metric.Int64Counter
}

// NewSyncMetrics creates sync metrics on the given meter. A nil meter uses
// the global provider.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		meter = otel.Meter("github.com/erp/syncd")
	}

	m := &SyncMetrics{}
	var err error

	if m.decoded, err = meter.Int64Counter("syncd_events_decoded_total",
		metric.WithDescription("Inbound push events decoded successfully"),
		metric.WithUnit("{events}")); err != nil {
		return nil, err
	}
	if m.decodeErrors, err = meter.Int64Counter("syncd_decode_errors_total",
		metric.WithDescription("Inbound push events dropped as malformed"),
		metric.WithUnit("{events}")); err != nil {
		return nil, err
	}
	if m.applied, err = meter.Int64Counter("syncd_events_applied_total",
		metric.WithDescription("Envelopes merged into a domain cache"),
		metric.WithUnit("{events}")); err != nil {
		return nil, err
	}
	if m.stale, err = meter.Int64Counter("syncd_events_stale_total",
		metric.WithDescription("Envelopes discarded as stale or duplicate"),
		metric.WithUnit("{events}")); err != nil {
		return nil, err
	}
	if m.conflicts, err = meter.Int64Counter("syncd_write_conflicts_total",
		metric.WithDescription("Optimistic writes overridden by server truth"),
		metric.WithUnit("{writes}")); err != nil {
		return nil, err
	}
	if m.timeouts, err = meter.Int64Counter("syncd_write_timeouts_total",
		metric.WithDescription("Optimistic writes expired without confirmation"),
		metric.WithUnit("{writes}")); err != nil {
		return nil, err
	}
	if m.reconnects, err = meter.Int64Counter("syncd_reconnect_attempts_total",
		metric.WithDescription("Push-channel reconnection attempts"),
		metric.WithUnit("{attempts}")); err != nil {
		return nil, err
	}
	return m, nil
}

func domainAttr(domain shared.Domain) metric.AddOption {
	return metric.WithAttributes(attribute.String("domain", string(domain)))
}

// RecordDecoded counts one successfully decoded event
func (m *SyncMetrics) RecordDecoded(domain shared.Domain) {
	if m == nil {
		return
	}
	m.decoded.Add(context.Background(), 1, domainAttr(domain))
}

// RecordDecodeError counts one dropped malformed event
func (m *SyncMetrics) RecordDecodeError(event string) {
	if m == nil {
		return
	}
	m.decodeErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("event", event)))
}

// RecordApplied counts one envelope merged into a cache
func (m *SyncMetrics) RecordApplied(domain shared.Domain, action shared.Action) {
	if m == nil {
		return
	}
	m.applied.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("domain", string(domain)),
		attribute.String("action", string(action)),
	))
}

// RecordStale counts one envelope discarded by the sequence check
func (m *SyncMetrics) RecordStale(domain shared.Domain) {
	if m == nil {
		return
	}
	m.stale.Add(context.Background(), 1, domainAttr(domain))
}

// RecordConflict counts one optimistic write lost to server truth
func (m *SyncMetrics) RecordConflict(domain shared.Domain) {
	if m == nil {
		return
	}
	m.conflicts.Add(context.Background(), 1, domainAttr(domain))
}

// RecordTimeout counts one optimistic write that expired unconfirmed
func (m *SyncMetrics) RecordTimeout(domain shared.Domain) {
	if m == nil {
		return
	}
	m.timeouts.Add(context.Background(), 1, domainAttr(domain))
}

// RecordReconnect counts one reconnection attempt
func (m *SyncMetrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Add(context.Background(), 1)
}
