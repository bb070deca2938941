// Package schema provides the implementations for handling (Unix-based)
// operating system syscalls. Packages that touch the host, such as disk
// image access, depend on narrow provider interfaces satisfied by the types
// in this package, so that tests can substitute mocks.
package schema
