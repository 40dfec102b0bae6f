// Package cli implements the corefacility administration command line.
//
// Commands are arranged in a tree under a root command and share one
// Environment holding the open database and the entity factories. The
// binary in cmd/corefacility-cli builds the environment from the same
// configuration the server reads, so both always agree on the schema
// and the POSIX provider toggles.
package cli
