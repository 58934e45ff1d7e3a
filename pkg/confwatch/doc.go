// Package confwatch reloads a config file when it changes on disk.
//
// Watch observes the file's parent directory rather than the file itself so
// that atomic saves (write a temp file, rename it over the original) keep
// triggering reloads: renaming over a watched file drops an inode watch, but
// the directory watch sees the new name appear. Bursts of events from one
// save are coalesced into a single reload.
//
// Both fleetpulse-server and fleetpulse-agent use it through their own
// config.Watch wrappers.
package confwatch
