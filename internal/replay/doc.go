// Package replay drives a single forward pass over a recorded bag.
//
// A Source yields Records in log order. The Dispatcher routes each one:
// transform batches go to the Relay, which publishes them into a transform
// cache and waits a short pacing delay; point clouds go to the Exporter,
// which writes <output_dir>/<seq>.pcd. Processing is synchronous, so every
// transform batch is fully relayed before any later record is looked at.
//
// Failure classes:
//
//   - OpenError: the bag cannot be opened or read. Fatal.
//   - DirectoryCreateError: the output directory cannot be provisioned. Fatal.
//   - ExportError: one cloud could not be written. Logged; replay continues.
//   - RelayError: a transform publish failed. Counted only.
package replay
