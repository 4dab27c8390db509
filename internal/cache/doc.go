// Package cache holds the durable record of every cloud synthesis voxcache
// has performed. A Store owns matching and mutation; a Persister only
// serializes the full snapshot. Audio artifacts live next to the snapshot in
// the data directory, named after each record.
package cache
