// Package invoke runs the external data-reduction tools.
//
// A Request carries named, typed arguments and renders to an argv without
// going through a shell. Path-list arguments are written to list files and
// passed by indirection. The Runner executes a request synchronously,
// captures its output and exit status, keeps a transcript per invocation,
// and reports failures as *InvocationError.
//
// MakeMap, ConfigEcho and Paste adapt the Runner to the three tools the
// iteration loop needs.
package invoke
