package prooflabel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Antho-TB/veille/prooflabel"

// Metrics holds the counters emitted by the service and the miner. A nil
// *Metrics records nothing.
type Metrics struct {
	resolutions metric.Int64Counter
	decisions   metric.Int64Counter
	proposals   metric.Int64Counter
	minerRuns   metric.Float64Histogram
}

// NewMetrics registers the instruments on meter, or on the global meter
// provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &Metrics{}
	var err error
	m.resolutions, err = meter.Int64Counter("veille.proof.resolutions",
		metric.WithDescription("Proofs canonicalized, by resolution source"),
		metric.WithUnit("{proof}"),
	)
	if err != nil {
		return nil, err
	}
	m.decisions, err = meter.Int64Counter("veille.arbitration.decisions",
		metric.WithDescription("Arbitration decisions recorded, by verdict"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}
	m.proposals, err = meter.Int64Counter("veille.miner.proposals",
		metric.WithDescription("Merge proposals emitted by the miner, by coverage"),
		metric.WithUnit("{proposal}"),
	)
	if err != nil {
		return nil, err
	}
	m.minerRuns, err = meter.Float64Histogram("veille.miner.duration",
		metric.WithDescription("Miner run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordResolution(ctx context.Context, source Source) {
	if m == nil {
		return
	}
	m.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
}

func (m *Metrics) recordDecision(ctx context.Context, verdict Verdict) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", string(verdict))))
}

func (m *Metrics) recordProposals(ctx context.Context, proposals []MergeProposal) {
	if m == nil {
		return
	}
	var covered, fresh int64
	for _, p := range proposals {
		if p.AlreadyCovered {
			covered++
		} else {
			fresh++
		}
	}
	if covered > 0 {
		m.proposals.Add(ctx, covered, metric.WithAttributes(attribute.Bool("covered", true)))
	}
	if fresh > 0 {
		m.proposals.Add(ctx, fresh, metric.WithAttributes(attribute.Bool("covered", false)))
	}
}

func (m *Metrics) recordMinerRun(ctx context.Context, d time.Duration, status string) {
	if m == nil {
		return
	}
	m.minerRuns.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}
