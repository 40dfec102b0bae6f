// Package tokens implements opaque bearer credentials: header tokens,
// persistent cookies and single-use external authorization sessions.
// Secrets are stored hashed; verification collapses every failure into
// one error, so a caller cannot tell a bad id from a bad secret or an
// expired row.
package tokens
