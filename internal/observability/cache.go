package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics counts lookups on the in-process embedding caches.
type CacheMetrics interface {
	// RecordLookup counts one Get; hit is false when the value had to be loaded.
	RecordLookup(ctx context.Context, cacheName string, hit bool)
	// RecordLoadError counts a miss whose load failed (nothing was cached).
	RecordLoadError(ctx context.Context, cacheName string)
}

type cacheMetrics struct {
	lookups    metric.Int64Counter
	loadErrors metric.Int64Counter
}

// NewCacheMetrics creates CacheMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewCacheMetrics(meter metric.Meter) (CacheMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	lookups, err := meter.Int64Counter(MetricNameCacheLookups,
		metric.WithDescription("Cache lookups. Labels cache and result (hit or miss). "+
			"Hit ratio = rate(result=hit) / rate(all)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache lookups counter: %w", err)
	}

	loadErrors, err := meter.Int64Counter(MetricNameCacheLoadErrors,
		metric.WithDescription("Cache misses whose embedding call failed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache load errors counter: %w", err)
	}

	return &cacheMetrics{lookups: lookups, loadErrors: loadErrors}, nil
}

func (c *cacheMetrics) RecordLookup(ctx context.Context, cacheName string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	c.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCache, NormalizeCacheName(cacheName)),
		attribute.String(AttrResult, result),
	))
}

func (c *cacheMetrics) RecordLoadError(ctx context.Context, cacheName string) {
	c.loadErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCache, NormalizeCacheName(cacheName))))
}
