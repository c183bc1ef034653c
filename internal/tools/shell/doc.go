// Package shell provides the gateway's interactive command executor and
// process registry.
//
// Each execute_command call spawns one shell and writes the command to its
// stdin, framed with a per-call sentinel marker that carries the exit code
// back through stdout. Stdin stays open for the life of the record so
// send_input can feed interactive commands; the shell is only told to exit
// (stdin closed) once the marker has been observed.
//
// A call returns synchronously when the marker-then-exit sequence finishes
// first, or backgrounds into a pollable record when the output-inactivity
// timer or the absolute safety cap fires first.
//
// Tools:
//   - execute_command: Run a shell command with inactivity-timed waiting
//   - check_process: Poll a running or completed process
//   - send_input: Write to a running process's stdin
package shell
