// Package store persists the fleet snapshot: the whole mapping from vehicle
// key to record, serialized as indented JSON and rewritten in full on every
// change.
//
// Store sits on a Backend that only moves bytes:
//
//	memory : in-process buffer (tests, ephemeral runs)
//	file   : a single JSON file, compatible with fleet_data.json
//	sqlite : one row in a zombiezen sqlitex pool
//	redis  : one string key
//
// Load never fails: a missing snapshot is empty, an unreadable or corrupt one
// is logged and treated as empty. Save reports failures as ErrWrite after
// logging them. Update wraps load, one mutation and save; with
// WithSerializedUpdates it holds a mutex across the cycle, otherwise
// concurrent updates may overwrite each other.
package store
