// Package cache implements the local in-memory tier of the tiered cache.
// Entries carry a fixed TTL (default 5 minutes) and are evicted lazily on
// read plus periodically by a janitor loop. The store package is the only
// writer; invalidation happens by key or by key prefix (category).
package cache
