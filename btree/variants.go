package btree

import "github.com/ngina-labs/btreestore/internal/node"

// NewSet opens or creates a btree_set<K>: unique keys, no mapped value
// (spec §6's four container variants).
func NewSet[K any](opt OpenOptions[K, struct{}]) (*Tree[K, struct{}], error) {
	opt.unique = true
	opt.keyOnly = true
	opt.splash = "btree_set"
	if opt.ValueCodec == nil {
		opt.ValueCodec = node.VoidCodec{}
	}
	return Open(opt)
}

// NewMultiSet opens or creates a btree_multiset<K>: duplicate keys allowed,
// stored in insertion order among equals.
func NewMultiSet[K any](opt OpenOptions[K, struct{}]) (*Tree[K, struct{}], error) {
	opt.unique = false
	opt.keyOnly = true
	opt.splash = "btree_multiset"
	if opt.ValueCodec == nil {
		opt.ValueCodec = node.VoidCodec{}
	}
	return Open(opt)
}

// NewMap opens or creates a btree_map<K,V>: unique keys, one mapped value each.
func NewMap[K any, V any](opt OpenOptions[K, V]) (*Tree[K, V], error) {
	opt.unique = true
	opt.keyOnly = false
	opt.splash = "btree_map"
	return Open(opt)
}

// NewMultiMap opens or creates a btree_multimap<K,V>: duplicate keys
// allowed, each with its own mapped value, in insertion order among equals.
func NewMultiMap[K any, V any](opt OpenOptions[K, V]) (*Tree[K, V], error) {
	opt.unique = false
	opt.keyOnly = false
	opt.splash = "btree_multimap"
	return Open(opt)
}
