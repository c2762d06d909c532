// Package rolegraph implements per-domain directed reachability graphs
// for role and group membership. Each named domain is an independent
// graph instance; reachability in one domain never consults the edges
// of another.
package rolegraph
