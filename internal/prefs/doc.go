// Package prefs resolves scope roots and pipeline options from the
// .livecat.yaml config file and LIVECAT_* environment variables.
//
// The core treats the resolved values as opaque configuration; discovery
// of where preference files actually live belongs to the shell.
package prefs
