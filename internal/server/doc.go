// Package server implements the read-only status API behind `netrunner serve`.
//
// This package provides:
//   - JSON endpoints over the deployment store
//   - Per-IP rate limiting
//   - Health and Prometheus metrics endpoints
//   - Structured logging of all HTTP requests
//
// A background refresher keeps unfinished run snapshots current while the
// server runs. The one mutating route, POST /api/runs/{runID}/refresh, only
// re-reads a run from GitHub and has a stricter limit.
package server
