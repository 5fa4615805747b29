// Package types defines the data model shared by the catalog, the
// orchestration runtime, and the client surface: the Instance record and
// its audit tables, and the runtime identity of a durable workflow.
package types
