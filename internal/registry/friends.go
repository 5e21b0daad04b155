package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcoot/wordquizzle/internal/model"
)

// friendGraph is an undirected graph keyed by user name. Neighbor lists only
// grow and keep insertion order.
type friendGraph struct {
	mu    sync.RWMutex
	nodes map[string]*friendNode
}

type friendNode struct {
	friends []string
	set     map[string]struct{}
}

func newFriendGraph() *friendGraph {
	return &friendGraph{nodes: make(map[string]*friendNode)}
}

func (g *friendGraph) add(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[name]; !ok {
		g.nodes[name] = &friendNode{set: make(map[string]struct{})}
	}
}

// link adds the edge in both directions. It returns false if the edge
// already existed.
func (g *friendGraph) link(a, b string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	na, nb := g.nodes[a], g.nodes[b]
	if _, ok := na.set[b]; ok {
		return false
	}
	na.set[b] = struct{}{}
	na.friends = append(na.friends, b)
	nb.set[a] = struct{}{}
	nb.friends = append(nb.friends, a)
	return true
}

// restore replaces the neighbor list of name, keeping the given order
func (g *friendGraph) restore(name string, friends []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := &friendNode{
		friends: append([]string{}, friends...),
		set:     make(map[string]struct{}, len(friends)),
	}
	for _, f := range friends {
		n.set[f] = struct{}{}
	}
	g.nodes[name] = n
}

func (g *friendGraph) areFriends(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[a]
	if !ok {
		return false
	}
	_, ok = n.set[b]
	return ok
}

func (g *friendGraph) friends(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	if !ok {
		return []string{}
	}
	return append([]string{}, n.friends...)
}

// AddFriendship makes a and b friends. The requester a must be logged in.
func (r *Registry) AddFriendship(ctx context.Context, a, b string) error {
	if a == b {
		return model.ErrSameUser
	}
	recA, err := r.lookup(a)
	if err != nil {
		return err
	}
	if _, err := r.lookup(b); err != nil {
		return err
	}
	if _, err := recA.endpointOf(); err != nil {
		return err
	}
	if !r.graph.link(a, b) {
		return model.ErrAlreadyFriends
	}

	r.logger.Info("friendship added", slog.String("user", a), slog.String("friend", b))
	return nil
}

// FriendsOf returns the user's friends in the order they were added
func (r *Registry) FriendsOf(ctx context.Context, name string) ([]string, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if _, err := rec.endpointOf(); err != nil {
		return nil, err
	}
	return r.graph.friends(name), nil
}
