// Package metrics provides real-time metrics collection for the prober.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Poll counts and happy-poll counts per backend
//   - Health verdict flips
//   - Latest good/window state and latencies
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the probing path. Events are sent via a buffered channel with
// non-blocking semantics so a slow collector can never stall a poll.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.EventChannel() <- metrics.Event{
//		Type:    metrics.EventPollCompleted,
//		Backend: "origin-1",
//		Happy:   true,
//		Good:    5,
//		Window:  8,
//	}
//
//	snapshot := collector.Snapshot()
//
// Metrics storage is guarded by a sync.RWMutex and shutdown drains the
// event channel so no completed poll is lost.
package metrics
