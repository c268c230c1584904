// Package shell runs external command-line tools and streams their output.
//
// Commands are described as an executable plus ordered option tokens (flags,
// key/value pairs, raw fragments, paths) and rendered into one shell line with
// every value single-quoted. The Runner starts the line under /bin/sh in its
// own process group with stdout and stderr merged, delivers cleaned output
// lines as they arrive, and kills the whole group when the context is
// cancelled. Consumers depend on the Executor interface so tests can stub the
// process boundary.
package shell
