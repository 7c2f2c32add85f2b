// Package mirror implements the sync consumer. It drains artifact paths from
// the dispatch queue at its own pace and copies each file to a remote host.
//
// Paths queued while a copy is in flight are taken as one batch and
// deduplicated, so a file that changed several times is copied once. Copy
// failures never reach the producer: they are logged, the transport connection
// is dropped and the next batch reconnects.
package mirror
