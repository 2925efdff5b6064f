package store

import (
	"sync"
)

// Op identifies a row-change operation type.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Table names carried on change events.
const (
	TableUsers                = "users"
	TableWallets              = "wallets"
	TableTransactions         = "transactions"
	TableVerificationRequests = "verification_requests"
	TablePurchaseRequests     = "purchase_requests"
)

// ChangeEvent describes one committed row change. Fields carries the new row
// as column name to string value; subscribers filter by column equality.
type ChangeEvent struct {
	Table  string
	Op     Op
	Fields map[string]string
}

// Subscription is one subscriber's bounded event queue. When the queue is
// full the oldest event is dropped; subscribers are backpressure-free.
type Subscription struct {
	C      chan ChangeEvent
	table  string
	ops    map[Op]bool
	filter map[string]string
	bus    *Bus
	id     int
}

// Cancel removes the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.bus.cancel(s.id)
}

func (s *Subscription) matches(ev ChangeEvent) bool {
	if s.table != "" && s.table != ev.Table {
		return false
	}
	if len(s.ops) > 0 && !s.ops[ev.Op] {
		return false
	}
	for col, want := range s.filter {
		if ev.Fields[col] != want {
			return false
		}
	}
	return true
}

const subscriptionBuffer = 128

// Bus is an in-process change-event fanout. Publish never blocks.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*Subscription
	nextId int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe registers interest in changes to a table. Empty table or ops
// match everything; filter entries must all match the event fields.
func (b *Bus) Subscribe(table string, ops []Op, filter map[string]string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	opSet := make(map[Op]bool, len(ops))
	for _, op := range ops {
		opSet[op] = true
	}

	sub := &Subscription{
		C:      make(chan ChangeEvent, subscriptionBuffer),
		table:  table,
		ops:    opSet,
		filter: filter,
		bus:    b,
		id:     b.nextId,
	}
	b.nextId++
	if b.closed {
		close(sub.C)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers the event to every matching subscription, dropping the
// oldest queued event when a subscriber's buffer is full.
func (b *Bus) Publish(ev ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.matches(ev) {
			continue
		}
		for {
			select {
			case sub.C <- ev:
			default:
				select {
				case <-sub.C:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close cancels all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.C)
		delete(b.subs, id)
	}
}

func (b *Bus) cancel(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.C)
		delete(b.subs, id)
	}
}
