// Package types defines the core data model shared across chronograph:
// nodes, edges, episodes, search configuration, extraction payloads, and
// the message types used when talking to language-model capabilities.
//
// The graph is bi-temporal. Edges carry both transaction time (CreatedAt,
// when the system learned a fact) and valid time (ValidAt/InvalidAt, when
// the fact held in the real world). Nothing in this package touches
// storage; persistence lives in pkg/driver.
package types
