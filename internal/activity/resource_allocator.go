package activity

import (
	"context"
	"fmt"

	"firewatch.io/firewatch/internal/domain"
)

// AvailabilityGetter is the read side of the resource-availability cache.
type AvailabilityGetter interface {
	Get(ctx context.Context, region string) (domain.ResourceAvailability, error)
}

// RegionResourceAllocator allocates response resources for the event's
// region from the cached availability snapshot. Allocation is proportional
// to severity, so the same input always yields the same allocation.
type RegionResourceAllocator struct {
	availability AvailabilityGetter
}

// NewResourceAllocator creates the resource-allocation executor.
func NewResourceAllocator(availability AvailabilityGetter) *RegionResourceAllocator {
	return &RegionResourceAllocator{availability: availability}
}

// Name implements Executor.
func (*RegionResourceAllocator) Name() Name { return ResourceAllocator }

// Execute consults the availability cache and carves out the allocation.
func (a *RegionResourceAllocator) Execute(ctx context.Context, input Input) (Output, error) {
	region := input.Event.Location

	available, err := a.availability.Get(ctx, region)
	if err != nil {
		return Output{}, fmt.Errorf("availability lookup for region %q: %w", region, err)
	}

	allocated := make(map[string]int, len(available.Units))
	for unit, count := range available.Units {
		if count <= 0 {
			continue
		}
		// Severity share of the regional pool, at least one unit.
		share := count * input.Event.Severity / domain.SeverityMax
		if share < 1 {
			share = 1
		}
		allocated[unit] = share
	}

	return Output{Allocation: &domain.ResourceAllocation{
		Region:    region,
		Resources: allocated,
	}}, nil
}

var _ Executor = (*RegionResourceAllocator)(nil)
