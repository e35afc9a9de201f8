// Package cache provides an optional Redis-backed cache for catalog API
// pages.
//
// The catalog API serves mostly static metadata, so repeated development
// runs and same-day re-runs hit identical pages. Cached page bodies are
// stored under a deterministic key derived from the endpoint and query
// parameters, with a fixed TTL. Cache failures are never fatal: the client
// degrades to a direct API request.
package cache
