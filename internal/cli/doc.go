// Package cli holds presentation helpers shared by the launchpad commands:
// output formats, tables, spinners and the mapping of auth failures onto
// user-facing errors with stable exit codes.
package cli
