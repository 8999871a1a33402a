package cache

import (
	"context"
	"maps"

	"go.uber.org/zap"

	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/pkg/logger"
)

// StaticFetcher reports the same configured unit counts for every region. It
// stands in for a regional inventory service; the cache in front of it keeps
// the lookup pattern identical when a real backend replaces it.
type StaticFetcher struct {
	units map[string]int
}

// NewStaticFetcher creates a StaticFetcher from configured unit counts.
func NewStaticFetcher(units map[string]int) *StaticFetcher {
	return &StaticFetcher{units: units}
}

// Fetch implements Fetcher.
func (f *StaticFetcher) Fetch(ctx context.Context, region string) (domain.ResourceAvailability, error) {
	logger.Debug("availability lookup", zap.String("region", region))
	return domain.ResourceAvailability{
		Region: region,
		Units:  maps.Clone(f.units),
	}, nil
}

var _ Fetcher = (*StaticFetcher)(nil)
