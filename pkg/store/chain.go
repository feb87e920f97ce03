package store

import "sync/atomic"

// versionChain is the per-widget version history, newest first. Appending
// happens under the widget's id lock, so there is one writer at a time;
// readers walk the links lock-free. Vacuum truncates the oldest suffix by
// cutting a single link, which never disturbs a concurrent walk.
type chainNode struct {
	ver   *Version
	older atomic.Pointer[chainNode]
}

type versionChain struct {
	head atomic.Pointer[chainNode]
}

func newChainWith(v *Version) *versionChain {
	c := &versionChain{}
	c.head.Store(&chainNode{ver: v})
	return c
}

// append publishes v as the newest version. Caller holds the id lock.
func (c *versionChain) append(v *Version) {
	node := &chainNode{ver: v}
	node.older.Store(c.head.Load())
	c.head.Store(node)
}

func (c *versionChain) newest() *chainNode {
	return c.head.Load()
}

// walk visits versions newest to oldest until fn returns false.
func (c *versionChain) walk(fn func(*Version) bool) {
	for n := c.head.Load(); n != nil; n = n.older.Load() {
		if !fn(n.ver) {
			return
		}
	}
}
