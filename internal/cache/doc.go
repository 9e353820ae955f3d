// Package cache provides the persistent segment-audio store: an in-memory
// LRU front over a zstd-compressed disk store keyed by segment key.
package cache
