// Package resource defines the exportable resources and the read-only registry
// the change listener looks them up in.
//
// A Resource materializes the current state of one database view into files
// beneath an output directory. Every file is written to a temporary file and
// renamed into place, so readers never observe partial output, and each written
// path is handed to a Sink exactly once, in the order the files were produced.
//
// Two kinds of resource are provided:
//
//   - ListResource writes all rows of a query into a single JSON array file
//     named after the resource.
//   - DirResource writes one file per row into a directory named after the
//     resource and removes files that are no longer produced.
//
// The Registry is built once at startup (NewRegistry, FromConfig) and never
// changes afterwards. Looking up a name that is not registered is not an
// error; callers report it and move on.
package resource
