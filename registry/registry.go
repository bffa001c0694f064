// Package registry describes the backend nodes the transport balances over and
// where that list comes from.
//
// A Node is one endpoint entry in a pool. Pools are plain ordered slices of Node;
// insertion order matters for round-robin fairness. A Registry is an optional
// dynamic source of pools, keyed by pool name.
package registry

import "context"

// Node is one backend endpoint. Weight 0 means the node is unweighted.
type Node struct {
	URL    string `json:"url"`
	Weight int    `json:"weight,omitempty"`
}

// Nodes builds an unweighted pool from URLs, preserving order.
func Nodes(urls ...string) []Node {
	nodes := make([]Node, 0, len(urls))
	for _, u := range urls {
		nodes = append(nodes, Node{URL: u})
	}
	return nodes
}

// URLs returns the URLs of nodes in order.
func URLs(nodes []Node) []string {
	urls := make([]string, 0, len(nodes))
	for _, n := range nodes {
		urls = append(urls, n.URL)
	}
	return urls
}

type Registry interface {
	Register(ctx context.Context, pool string, node Node, ttl int64) error
	Deregister(ctx context.Context, pool string, url string) error
	Discover(ctx context.Context, pool string) ([]Node, error)
	// Watch emits the full node list of pool after every change until ctx is done.
	Watch(ctx context.Context, pool string) <-chan []Node
}
