// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"github.com/channelsync/backend/internal/infrastructure/queue"
)

// BrokerQueueMetricsProvider implements QueueMetricsProvider over the
// queue broker, reporting per-lane depths for the configured lanes.
type BrokerQueueMetricsProvider struct {
	broker queue.Broker
	lanes  []string
}

// NewBrokerQueueMetricsProvider creates a provider observing the given
// lanes. With no lanes given, the pipeline's standard lanes are observed.
func NewBrokerQueueMetricsProvider(broker queue.Broker, lanes ...string) *BrokerQueueMetricsProvider {
	if len(lanes) == 0 {
		lanes = []string{queue.LaneProcessOrder, queue.LaneSyncStock, queue.LaneUpdateMarketplace}
	}
	return &BrokerQueueMetricsProvider{
		broker: broker,
		lanes:  lanes,
	}
}

// Depths returns the number of waiting jobs per lane.
func (p *BrokerQueueMetricsProvider) Depths(ctx context.Context) (map[string]int64, error) {
	depths := make(map[string]int64, len(p.lanes))
	for _, lane := range p.lanes {
		depth, err := p.broker.Depth(ctx, lane)
		if err != nil {
			return nil, err
		}
		depths[lane] = depth
	}
	return depths, nil
}

// DeadLetterDepths returns the number of parked jobs per lane.
func (p *BrokerQueueMetricsProvider) DeadLetterDepths(ctx context.Context) (map[string]int64, error) {
	depths := make(map[string]int64, len(p.lanes))
	for _, lane := range p.lanes {
		depth, err := p.broker.DeadLetterDepth(ctx, lane)
		if err != nil {
			return nil, err
		}
		depths[lane] = depth
	}
	return depths, nil
}

// Ensure BrokerQueueMetricsProvider implements QueueMetricsProvider
var _ QueueMetricsProvider = (*BrokerQueueMetricsProvider)(nil)
