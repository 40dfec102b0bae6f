// Package middleware provides the HTTP connective tissue between the
// transport and the core: client address extraction, bearer token
// authentication with failure throttling, and per-request audit logs.
package middleware
