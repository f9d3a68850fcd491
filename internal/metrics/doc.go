// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors exported by frontdesk.
// Collectors register on the default registry at init and are read through
// the /metrics endpoint.
package metrics
