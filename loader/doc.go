// Package loader resolves ipld://, dweb:/ipld/, ipfs:// and dweb:/ipfs/
// URIs into parsed documents for a linked-data processor.
//
// Resolution is a two-stage pipeline. The URI prefix selects a fetch
// strategy (a closed table, longest-prefix match). Linked-data URIs name a
// CID whose block is fetched from the store and routed through the codec
// registry; ipfs URIs name a store path whose bytes are parsed as JSON.
//
// A Loader holds no per-call state and is safe for concurrent use. It never
// retries, caches, or logs; a failure at any stage aborts the call with a
// single *Error.
package loader
