package infrastructure

import (
	"context"
	"runtime"

	"go.opentelemetry.io/otel/metric"
)

// registerRuntimeMetrics exposes goroutine count and heap usage as
// observable gauges read on every scrape.
func registerRuntimeMetrics(meter metric.Meter) error {
	goroutines, err := meter.Int64ObservableGauge(
		"datapulse_runtime_goroutines",
		metric.WithDescription("Number of live goroutines"),
	)
	if err != nil {
		return err
	}

	heapAlloc, err := meter.Int64ObservableGauge(
		"datapulse_runtime_heap_alloc",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
		o.ObserveInt64(heapAlloc, int64(mem.HeapAlloc))
		return nil
	}, goroutines, heapAlloc)
	return err
}
