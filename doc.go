// Package dipeo provides the graph core behind a visual node-and-arrow
// diagram editor: a normalized in-memory graph state with transactions and
// bounded undo history, connection validation, canvas adaptation, and
// persistence.
//
// # Architecture
//
// Canvas clients speak to the service over a websocket gateway. Events fold
// into store operations; every commit is broadcast back as full visual state.
//
//	┌─────────────────────────────────────┐
//	│        Websocket Gateway            │  canvas events in,
//	│           (gateway/ws)              │  state pushes out
//	└─────────────────────────────────────┘
//	           ↓ converts via
//	┌─────────────────────────────────────┐
//	│        Canvas Adapter               │  cached graph↔visual
//	│    (canvas, position batching)      │  conversion
//	└─────────────────────────────────────┘
//	           ↓ mutates
//	┌─────────────────────────────────────┐
//	│         Graph Store                 │  normalized state,
//	│  (graphstore, undo/redo, events)    │  transactions
//	└─────────────────────────────────────┘
//	           ↓ persists via
//	┌─────────────────────────────────────┐
//	│       Diagram Persistence           │  NATS JetStream KV,
//	│   (serializer, diagramstore)        │  export pipeline
//	└─────────────────────────────────────┘
//
// # Packages
//
// Graph core:
//   - diagram: normalized model (nodes, handles, arrows, persons) and the
//     composite handle id scheme
//   - graphstore: mutable graph state with transactions, subscriptions, and
//     bounded undo/redo
//   - registry: node type specifications, defaults, and template handles
//   - validation: connection acceptance rules
//
// Canvas side:
//   - canvas: graph↔visual conversion with identity-keyed caches, and the
//     per-frame position batcher
//   - gateway/ws: websocket session handling and event dispatch
//
// Persistence:
//   - serializer: export pipeline (transient stripping, default backfill,
//     handle regeneration, orphan and duplicate pruning) plus native JSON
//     and readable YAML codecs
//   - diagramstore: diagram CRUD on NATS JetStream KV with optimistic
//     concurrency
//   - natsclient: NATS connection and KV access with retry
//
// Infrastructure:
//   - config: file plus environment configuration
//   - errors: classified error handling (transient, invalid, fatal)
//   - metric: Prometheus metrics registry
//   - pkg/cache: generic LRU cache
//   - pkg/retry: retry policies with backoff
//
// # Binary
//
// cmd/diagramd serves the websocket gateway on /ws, Prometheus metrics on
// /metrics, and a health probe on /healthz.
package dipeo
