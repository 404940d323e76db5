package event

import (
	"reflect"
	"sort"
	"sync"
)

// binding is one registered callback: the owning listener (for Unregister),
// its priority, whether it still runs once the event is cancelled, and a
// registration sequence number that keeps equal priorities deterministic.
type binding struct {
	owner           any
	priority        Priority
	ignoreCancelled bool
	seq             uint64
	fn              func(any)
}

// Bus is a typed, priority-ordered, cancellable publish/subscribe
// dispatcher. Matching is by exact concrete type: a binding for one event
// type never sees another, and there is no supertype matching.
//
// Registration and dispatch are safe from multiple connection goroutines;
// dispatch snapshots the binding list so a concurrent Subscribe never
// reorders an in-flight fire.
type Bus struct {
	mu      sync.RWMutex
	seq     uint64
	events  map[reflect.Type][]binding
	packets map[reflect.Type][]binding
}

func NewBus() *Bus {
	return &Bus{
		events:  make(map[reflect.Type][]binding),
		packets: make(map[reflect.Type][]binding),
	}
}

// Subscribe registers fn for events of exactly type *T, with the given
// priority and cancelled-event policy. The owner tag groups bindings so
// Unregister can remove them together.
func Subscribe[T any](b *Bus, owner any, pri Priority, ignoreCancelled bool, fn func(*T)) {
	key := reflect.TypeOf((*T)(nil))
	b.add(b.events, key, binding{
		owner:           owner,
		priority:        pri,
		ignoreCancelled: ignoreCancelled,
		fn:              func(ev any) { fn(ev.(*T)) },
	})
}

// SubscribePacket registers fn for PacketEvents wrapping exactly packet
// type *P, inbound or outbound.
func SubscribePacket[P any](b *Bus, owner any, pri Priority, ignoreCancelled bool, fn func(*PacketEvent)) {
	key := reflect.TypeOf((*P)(nil))
	b.add(b.packets, key, binding{
		owner:           owner,
		priority:        pri,
		ignoreCancelled: ignoreCancelled,
		fn:              func(ev any) { fn(ev.(*PacketEvent)) },
	})
}

func (b *Bus) add(table map[reflect.Type][]binding, key reflect.Type, bd binding) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	bd.seq = b.seq
	list := make([]binding, 0, len(table[key])+1)
	list = append(list, table[key]...)
	list = append(list, bd)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	table[key] = list
}

// Unregister removes every binding registered under owner, for both plain
// events and packets.
func (b *Bus) Unregister(owner any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, table := range []map[reflect.Type][]binding{b.events, b.packets} {
		for key, list := range table {
			// Build a fresh slice: a concurrent dispatch may still be
			// walking the old one.
			kept := make([]binding, 0, len(list))
			for _, bd := range list {
				if bd.owner != owner {
					kept = append(kept, bd)
				}
			}
			if len(kept) == 0 {
				delete(table, key)
			} else {
				table[key] = kept
			}
		}
	}
}

func (b *Bus) snapshot(table map[reflect.Type][]binding, key reflect.Type) []binding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return table[key]
}

// Fire dispatches ev (a pointer to an event struct) to its bindings in
// priority order. If ev is Cancellable, bindings that do not ignore
// cancellation are skipped once an earlier one cancels.
func (b *Bus) Fire(ev any) {
	dispatch(b.snapshot(b.events, reflect.TypeOf(ev)), ev, asCancellable(ev))
}

// FirePacket wraps pkt in a PacketEvent, dispatches it to the bindings for
// pkt's concrete type, and reports whether it ended cancelled. The caller
// drops the packet on true.
func (b *Bus) FirePacket(sess, pkt any) bool {
	list := b.snapshot(b.packets, reflect.TypeOf(pkt))
	if len(list) == 0 {
		return false
	}
	ev := &PacketEvent{Session: sess, Packet: pkt}
	dispatch(list, ev, ev)
	return ev.Cancelled()
}

func dispatch(list []binding, ev any, c Cancellable) {
	for _, bd := range list {
		if c != nil && c.Cancelled() && !bd.ignoreCancelled {
			continue
		}
		bd.fn(ev)
	}
}

func asCancellable(ev any) Cancellable {
	if c, ok := ev.(Cancellable); ok {
		return c
	}
	return nil
}
