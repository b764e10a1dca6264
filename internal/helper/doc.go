// Package helper runs the external per-device helper programs.
//
// A helper is addressed as "<HelpersDir>/<platform>/<action>" and receives the
// absolute device node as its only argument. The command line is handed to the
// configured shell with -c, so helpers behave exactly as if started by
// system(3): the shell resolves the path and a missing helper surfaces as a
// non-zero exit status rather than a start failure.
//
// Invocations are synchronous. The caller holds the device lock for the whole
// run and receives a [Result] with the exit status, the wall-clock duration and
// the tail of the combined output.
package helper
