// Package ghlexport exports the data of a GoHighLevel location through the
// LeadConnector REST API.
//
// An export walks a fixed catalogue of domains (contacts, calendars,
// opportunities, forms, payments and so on) strictly one after another,
// staying inside the API quota, and stores one snapshot per domain plus a
// run summary.
//
// # Architecture
//
// The call path is layered:
//
//   - clients.RateGovernor reads the X-Ratelimit-* headers of every
//     completed response. It pauses when the burst window runs low and
//     aborts the run when the daily quota is nearly spent.
//   - clients.ResilientClient issues authenticated calls and retries 429s
//     and transient network failures a bounded number of times.
//   - clients.Paginator drains paged listings under a page safety cap.
//   - extract.Registry maps domain names to extractors. Extractors combine
//     single calls, paged listings and parent/child fan-out.
//   - orchestrator.Orchestrator runs the domains, isolates per-domain
//     failures, persists every result through a store.Store and publishes
//     notify.Event values.
//
// # Quick Start
//
//	export GHL_API_TOKEN=...
//	export GHL_LOCATION_ID=...
//	ghlexport run --modules contacts,opportunities
//
// Snapshots land in exports/<timestamp>/<domain>.json by default. The
// store section of the YAML config selects SQLite, PostgreSQL, MongoDB,
// S3 or GCS instead, with optional mirrors.
package ghlexport
