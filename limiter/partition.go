package limiter

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// GlobalPolicy name under which the global policy is registered
const GlobalPolicy = "global"

// Built-in partition key functions (partition_by)
const (
	PartitionNone         = "none"
	PartitionUser         = "user"
	PartitionIP           = "ip"
	PartitionUserOrIP     = "user_or_ip"
	PartitionHeaderPrefix = "header:"
)

// PartitionKeyFunc derives the partition key of a request.
// An empty key selects the policy's shared partition.
type PartitionKeyFunc func(req *Request) string

// KeyByNone every request shares one partition
func KeyByNone(*Request) string {
	return ""
}

// KeyByUser partitions by authenticated user
func KeyByUser(req *Request) string {
	if req == nil || req.UserID == "" {
		return "anonymous"
	}
	return "user:" + req.UserID
}

// KeyByIP partitions by client address
func KeyByIP(req *Request) string {
	if req == nil || req.ClientIP == "" {
		return "ip:unknown"
	}
	return "ip:" + req.ClientIP
}

// KeyByUserOrIP authenticated user id, else client address
func KeyByUserOrIP(req *Request) string {
	if req != nil && req.UserID != "" {
		return "user:" + req.UserID
	}
	return KeyByIP(req)
}

// KeyByHeader partitions by a request header value
func KeyByHeader(name string) PartitionKeyFunc {
	return func(req *Request) string {
		v := req.header(name)
		if v == "" {
			return ""
		}
		return name + ":" + v
	}
}

// PartitionKeyFuncFor returns the built-in key function for a partition_by value
func PartitionKeyFuncFor(partitionBy string) PartitionKeyFunc {
	switch partitionBy {
	case PartitionUser:
		return KeyByUser
	case PartitionIP:
		return KeyByIP
	case PartitionUserOrIP:
		return KeyByUserOrIP
	}
	if name, ok := strings.CutPrefix(partitionBy, PartitionHeaderPrefix); ok && name != "" {
		return KeyByHeader(name)
	}
	return KeyByNone
}

// limiterID identifier of a partition limiter
func limiterID(policy, key string) string {
	if key == "" {
		return policy
	}
	return policy + ":" + key
}

// partitionRegistry lazily creates one limiter per partition key of a policy.
// The key->limiter mapping is the only structure shared across partitions.
//
// With max_partitions the LRU bounds the idle partitions only: a partition that
// holds state (outstanding permits, waiters, a spent window or token budget) is
// parked when the LRU pushes it out and keeps serving its key until it is idle.
type partitionRegistry struct {
	policy  string
	cfg     PolicyConfig
	clock   Clock
	publish func(Event)

	mu       sync.RWMutex
	keyFunc  PartitionKeyFunc
	limiters map[string]*gate          // unbounded
	bounded  *lru.Cache[string, *gate] // max_partitions > 0
	parked   map[string]*gate          // pushed out of bounded while busy

	onCreate func(key string, g *gate)
}

// newPartitionRegistry creates the registry of a validated policy
func newPartitionRegistry(policy string, cfg PolicyConfig, clock Clock, publish func(Event)) (*partitionRegistry, error) {
	r := &partitionRegistry{
		policy:  policy,
		cfg:     cfg,
		clock:   clock,
		publish: publish,
		keyFunc: PartitionKeyFuncFor(cfg.PartitionBy),
	}

	if cfg.MaxPartitions > 0 {
		// the callback runs inside bounded.Add, which is only called under r.mu
		cache, err := lru.NewWithEvict[string, *gate](cfg.MaxPartitions, r.onEvictLocked)
		if err != nil {
			return nil, err
		}
		r.bounded = cache
		r.parked = make(map[string]*gate)
	} else {
		r.limiters = make(map[string]*gate)
	}
	return r, nil
}

// onEvictLocked drops idle partitions and parks busy ones
func (r *partitionRegistry) onEvictLocked(key string, g *gate) {
	if !g.retireIfIdle() {
		r.parked[key] = g
	}
}

// setKeyFunc overrides the partition key function
func (r *partitionRegistry) setKeyFunc(fn PartitionKeyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyFunc = fn
}

// key computes the partition key of a request
func (r *partitionRegistry) key(req *Request) string {
	r.mu.RLock()
	fn := r.keyFunc
	r.mu.RUnlock()
	return fn(req)
}

// resolve returns the limiter of the request's partition, creating it on first access
func (r *partitionRegistry) resolve(req *Request) (*gate, string, error) {
	key := r.key(req)
	g, err := r.get(key)
	return g, key, err
}

// get returns the live limiter of a partition key, creating it on first access
func (r *partitionRegistry) get(key string) (*gate, error) {
	// Try to read first
	r.mu.RLock()
	g, ok := r.getLocked(key)
	r.mu.RUnlock()
	if ok {
		return g, nil
	}

	// Need to create, obtain write lock
	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check
	if g, ok := r.getLocked(key); ok {
		return g, nil
	}

	if r.bounded != nil {
		// a parked partition returns to the LRU instead of being recreated
		if g, ok := r.parked[key]; ok {
			delete(r.parked, key)
			r.bounded.Add(key, g)
			return g, nil
		}
		r.sweepParkedLocked()
	}

	g, err := newGate(limiterID(r.policy, key), r.policy, r.cfg, r.clock, r.publish)
	if err != nil {
		return nil, err
	}
	if r.bounded != nil {
		g.rebind = func() (*gate, error) { return r.get(key) }
		r.bounded.Add(key, g)
	} else {
		r.limiters[key] = g
	}

	if r.publish != nil {
		r.publish(&PartitionCreatedEvent{
			BaseEvent:    NewBaseEvent(EventPartitionCreated, r.policy, g.ID(), nil, r.clock.Now()),
			PartitionKey: key,
			Algorithm:    r.cfg.Algorithm,
		})
	}
	if r.onCreate != nil {
		r.onCreate(key, g)
	}
	return g, nil
}

// getLocked lookup under r.mu, bounded registries read the LRU only.
// Parked partitions are served by the write path so they rejoin the LRU.
func (r *partitionRegistry) getLocked(key string) (*gate, bool) {
	if r.bounded != nil {
		return r.bounded.Get(key)
	}
	g, ok := r.limiters[key]
	return g, ok
}

// sweepParkedLocked drops parked partitions that became idle
func (r *partitionRegistry) sweepParkedLocked() {
	for key, g := range r.parked {
		if g.retireIfIdle() {
			delete(r.parked, key)
		}
	}
}

// all snapshot of the live partition limiters
func (r *partitionRegistry) all() []*gate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.bounded != nil {
		out := r.bounded.Values()
		for _, g := range r.parked {
			out = append(out, g)
		}
		return out
	}
	out := make([]*gate, 0, len(r.limiters))
	for _, g := range r.limiters {
		out = append(out, g)
	}
	return out
}

// size number of live partitions, parked ones included
func (r *partitionRegistry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.bounded != nil {
		return r.bounded.Len() + len(r.parked)
	}
	return len(r.limiters)
}

// replenish ticks every partition, used by the background replenisher
func (r *partitionRegistry) replenish() {
	for _, g := range r.all() {
		g.TryReplenish()
	}
}

// close closes every partition limiter
func (r *partitionRegistry) close() {
	for _, g := range r.all() {
		g.Close()
	}
}
