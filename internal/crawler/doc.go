// Package crawler implements the bounded-depth graph crawl: the domain model
// shared by every subsystem, the adapter and store contracts, the merge rule
// for upserts, and the Engine that walks a source graph from a seed.
package crawler
