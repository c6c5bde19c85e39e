// Package minicortex implements the MiniCortex graph execution engine: the
// node metamodel (descriptor schema + per-instance runtime), the registry
// of classes/instances/connections, the cycle-tolerant tick scheduler, the
// two-loop lifecycle supervisor, hot reload, and workspace persistence.
//
// The out-of-core collaborators named in spec ch.1 (HTTP/WebSocket
// transport, browser editor, built-in example nodes, dataset utilities)
// live outside this package, in internal/transport and cmd/minicortexd.
package minicortex
