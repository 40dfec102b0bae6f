// Package modules implements the plugin registry: process-wide module
// singletons, entry points they expose, the transactional install
// graph and the per-entry-point route aggregation files the transport
// layer mounts URL prefixes from.
package modules
