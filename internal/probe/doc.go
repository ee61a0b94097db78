// Package probe implements active health checking of backend servers.
// A single scheduler goroutine drives a due-time ordered heap of targets
// and hands individual polls to a shared worker pool; each poll performs
// one TCP round trip, records its outcome in rolling bit histories, and
// publishes a window/threshold health verdict on the backend.
package probe
