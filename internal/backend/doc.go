// Package backend holds the registry objects the request-routing layer
// consults. The prober publishes health verdicts on them; routing reads
// may be slightly stale but are never torn.
package backend
