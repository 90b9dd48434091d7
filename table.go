// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// package dhash is a Go implementation of an open-addressing hash table
// using double hashing. See
// https://en.wikipedia.org/wiki/Double_hashing.
//
// # Layout
//
// A Table stores every entry directly in a single slot array; there are no
// chains or overflow buckets. Each slot is in one of three states: empty
// (never used), occupied, or deleted (a tombstone). A key's probe sequence is
//
//	p(i) := (h1 + i*step) mod capacity
//
// where h1 is the primary hash of the key reduced mod capacity (the key's
// "home slot") and step is derived from the secondary hash of the key. The
// step is forced to be coprime with the capacity so that the first capacity
// probes visit every slot exactly once. Probing is bounded to capacity
// attempts; an insertion that exhausts the sequence without finding a free
// slot fails with ErrTableFull rather than looping.
//
// # Deletion
//
// Deleting an entry marks its slot as a tombstone. It is invalid to mark the
// slot empty as doing so would cause lookups of keys whose probe sequence
// passed through that slot to terminate early. Lookups skip tombstones and
// stop at the first empty slot. Insertions remember the first tombstone they
// pass but keep probing until an empty slot, so that a key living further
// along the sequence is still detected as a duplicate; the new entry then
// reuses the tombstone.
//
// # Growth
//
// Before every insertion the load factor (occupied slots / capacity) is
// compared against the maximum load factor (0.6 by default). If it is
// exceeded, the table grows to ceil(capacity * 1.7) slots and every
// occupied entry is re-inserted, dropping all tombstones. Tables never
// shrink.
package dhash

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	debug = false

	defaultMaxLoad = 0.6
	defaultGrowth  = 1.7
)

var (
	// ErrInvalidCapacity is returned when constructing a table with a
	// capacity that is not positive.
	ErrInvalidCapacity = errors.New("dhash: invalid capacity")
	// ErrInvalidConfig is returned when constructing a table with an option
	// value out of range.
	ErrInvalidConfig = errors.New("dhash: invalid configuration")
	// ErrDuplicateKey is returned by Insert when the key is already present.
	ErrDuplicateKey = errors.New("dhash: duplicate key")
	// ErrTableFull is returned when the probe sequence of a key is exhausted
	// without finding a free slot.
	ErrTableFull = errors.New("dhash: table full")
)

// slotState is the occupancy of a slot. The zero value is slotEmpty so a
// freshly allocated slot array is entirely empty.
type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotDeleted
)

func (s slotState) String() string {
	switch s {
	case slotEmpty:
		return "empty"
	case slotOccupied:
		return "occupied"
	case slotDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("slotState(%d)", uint8(s))
	}
}

// Slot holds a key and value along with the occupancy of the slot.
type Slot[K comparable, V comparable] struct {
	key   K
	value V
	state slotState
}

// Table is a hash table from keys to values using open addressing with
// double hashing. Keys require equality and a Hasher; values require
// equality for Contains and Equal. By default a Table[K,V] uses
// DefaultHasher[K], though a different hasher can be specified using the
// WithHasher option.
//
// A Table is NOT goroutine-safe.
type Table[K comparable, V comparable] struct {
	hasher    Hasher[K]
	allocator Allocator[K, V]
	// slots is the backing array. Its length is the capacity of the table
	// and is never zero for an open table.
	slots []Slot[K, V]
	// The number of occupied slots (i.e. the number of elements in the
	// table).
	used int
	// The load factor above which an insertion first grows the table.
	maxLoad float64
	// The capacity multiplier applied by grow.
	growth float64
	// The seed used by NewRandom.
	seed   uint64
	seeded bool
}

// New constructs a new Table with the specified capacity. The capacity must
// be positive.
func New[K comparable, V comparable](capacity int, options ...Option[K, V]) (*Table[K, V], error) {
	t := &Table[K, V]{
		allocator: defaultAllocator[K, V]{},
		maxLoad:   defaultMaxLoad,
		growth:    defaultGrowth,
	}

	for _, op := range options {
		op.apply(t)
	}

	if t.hasher == nil {
		t.hasher = NewDefaultHasher[K]()
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if !(t.maxLoad > 0 && t.maxLoad <= 1) {
		return nil, fmt.Errorf("%w: max load factor %v not in (0, 1]", ErrInvalidConfig, t.maxLoad)
	}
	if !(t.growth > 1) || math.IsInf(t.growth, 1) {
		return nil, fmt.Errorf("%w: growth factor %v must be greater than 1", ErrInvalidConfig, t.growth)
	}

	t.slots = t.allocSlots(capacity)
	t.checkInvariants()
	return t, nil
}

// Close closes the table, releasing the slot array back to its configured
// allocator. It is unnecessary to close a table using the default allocator.
// It is invalid to use a Table after it has been closed, though Close itself
// is idempotent.
func (t *Table[K, V]) Close() {
	if t.slots != nil {
		t.allocator.FreeSlots(t.slots)
		t.slots = nil
		t.used = 0
	}
}

// Insert inserts an entry into the table. It returns an error wrapping
// ErrDuplicateKey, leaving the table unchanged, if an entry with the same key
// already exists, and an error wrapping ErrTableFull if the probe sequence
// for key has no free slot.
func (t *Table[K, V]) Insert(key K, value V) error {
	t.maybeGrow()
	_, err := t.put(key, value, false /* assign */)
	t.checkInvariants()
	return err
}

// InsertOrAssign inserts an entry into the table, overwriting the existing
// value if an entry with the same key already exists. It returns an error
// wrapping ErrTableFull if the key is not present and its probe sequence has
// no free slot.
func (t *Table[K, V]) InsertOrAssign(key K, value V) error {
	t.maybeGrow()
	_, err := t.put(key, value, true /* assign */)
	t.checkInvariants()
	return err
}

// Search retrieves the value from the table for the specified key, returning
// ok=false if the key is not present. The value is returned by copy and is
// unaffected by later mutations of the table.
func (t *Table[K, V]) Search(key K) (value V, ok bool) {
	i, found, _ := t.probe(key)
	if !found {
		return value, false
	}
	return t.slots[i].value, true
}

// Erase deletes the entry corresponding to the specified key from the table,
// returning true if an entry was removed. It is a noop to erase a
// non-existent key. Erase never shrinks the table.
func (t *Table[K, V]) Erase(key K) bool {
	i, found, _ := t.probe(key)
	if !found {
		if debug {
			fmt.Printf("erase(%v): not found\n", key)
		}
		return false
	}
	// Tombstones hold a zero key and value.
	t.slots[i] = Slot[K, V]{state: slotDeleted}
	t.used--
	if debug {
		fmt.Printf("erase(%v): index=%d used=%d\n", key, i, t.used)
	}
	t.checkInvariants()
	return true
}

// Contains returns true if any entry in the table holds value. It is a
// linear scan of the slot array.
func (t *Table[K, V]) Contains(value V) bool {
	for i := range t.slots {
		if s := &t.slots[i]; s.state == slotOccupied && s.value == value {
			return true
		}
	}
	return false
}

// Collisions returns the number of entries other than key whose home slot is
// the home slot of key, i.e. the number of entries that contend with key on
// the first probe. It is a diagnostic and is not used by any other
// operation. The key need not be present in the table.
func (t *Table[K, V]) Collisions(key K) int {
	home := t.home(key)
	var n int
	for i := range t.slots {
		s := &t.slots[i]
		if s.state == slotOccupied && s.key != key && t.home(s.key) == home {
			n++
		}
	}
	return n
}

// All calls yield sequentially for each key and value present in the table,
// in slot order. If yield returns false, iteration stops. The table can be
// mutated during iteration, though there is no guarantee that the mutations
// will be visible to the iteration.
//
// All has the signature of an iter.Seq2 and can be ranged over:
//
//	for k, v := range t.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
func (t *Table[K, V]) All(yield func(key K, value V) bool) {
	// Snapshot the slots so that iteration remains valid if the table is
	// resized during iteration.
	slots := t.slots
	for i := range slots {
		if s := &slots[i]; s.state == slotOccupied {
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// Len returns the number of entries in the table.
func (t *Table[K, V]) Len() int {
	return t.used
}

// Cap returns the number of slots in the table.
func (t *Table[K, V]) Cap() int {
	return len(t.slots)
}

// LoadFactor returns Len()/Cap().
func (t *Table[K, V]) LoadFactor() float64 {
	if len(t.slots) == 0 {
		return 0
	}
	return float64(t.used) / float64(len(t.slots))
}

// Equal returns true if t and o have the same capacity, the same number of
// entries, and every pair of slots at the same position holds the same
// state, key and value.
func (t *Table[K, V]) Equal(o *Table[K, V]) bool {
	if t == o {
		return true
	}
	if o == nil {
		return false
	}
	if len(t.slots) != len(o.slots) || t.used != o.used {
		return false
	}
	for i := range t.slots {
		if t.slots[i] != o.slots[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the table with its own slot array. The copy is
// Equal to t and shares its hasher, allocator and configuration; mutating
// either table does not affect the other.
func (t *Table[K, V]) Clone() *Table[K, V] {
	c := *t
	c.slots = t.allocSlots(len(t.slots))
	copy(c.slots, t.slots)
	c.checkInvariants()
	return &c
}

// String returns the entries of the table as "(key,value)" lines in slot
// order.
func (t *Table[K, V]) String() string {
	var buf strings.Builder
	t.All(func(k K, v V) bool {
		fmt.Fprintf(&buf, "(%v,%v)\n", k, v)
		return true
	})
	return buf.String()
}

// home returns the home slot of key: the first slot of its probe sequence.
func (t *Table[K, V]) home(key K) uint64 {
	return t.hasher.Primary(key) % uint64(len(t.slots))
}

func (t *Table[K, V]) probeSeq(key K) probeSeq {
	return makeProbeSeq(t.hasher.Primary(key), t.hasher.Secondary(key), uint64(len(t.slots)))
}

// probe walks the probe sequence for key. If an occupied slot holding key is
// found, it returns its index and found=true. Otherwise it returns the index
// of the first deleted or empty slot on the sequence, or -1 if the bounded
// sequence contains none. Probing stops at the first empty slot since key
// cannot live beyond it. collisions is the number of occupied slots holding
// other keys that were visited before the returned index.
func (t *Table[K, V]) probe(key K) (index int, found bool, collisions int) {
	index = -1
	seq := t.probeSeq(key)
	if debug {
		fmt.Printf("probe(%v): %s\n", key, seq)
	}

	for ; !seq.done(); seq = seq.next() {
		s := &t.slots[seq.offset]
		switch s.state {
		case slotEmpty:
			if debug {
				fmt.Printf("probe(empty): offset=%d\n", seq.offset)
			}
			if index < 0 {
				index = int(seq.offset)
			}
			return index, false, collisions

		case slotDeleted:
			if debug {
				fmt.Printf("probe(deleted): offset=%d\n", seq.offset)
			}
			if index < 0 {
				index = int(seq.offset)
			}

		case slotOccupied:
			if s.key == key {
				if debug {
					fmt.Printf("probe(found): offset=%d\n", seq.offset)
				}
				return int(seq.offset), true, collisions
			}
			if index < 0 {
				collisions++
			}
		}
	}

	if debug {
		fmt.Printf("probe(exhausted): %s free=%d\n", seq, index)
	}
	return index, false, collisions
}

// put is the placement path shared by Insert, InsertOrAssign, grow and the
// collision statistics. It does not check the load factor.
func (t *Table[K, V]) put(key K, value V, assign bool) (collisions int, err error) {
	i, found, collisions := t.probe(key)
	if found {
		if !assign {
			return collisions, fmt.Errorf("%w: %v", ErrDuplicateKey, key)
		}
		if debug {
			fmt.Printf("put(updating): index=%d key=%v\n", i, key)
		}
		t.slots[i].value = value
		return collisions, nil
	}
	if i < 0 {
		return collisions, fmt.Errorf("%w: no free slot for %v (used=%d capacity=%d)",
			ErrTableFull, key, t.used, len(t.slots))
	}

	t.slots[i] = Slot[K, V]{key: key, value: value, state: slotOccupied}
	t.used++
	if debug {
		fmt.Printf("put(inserting): index=%d key=%v used=%d\n", i, key, t.used)
	}
	return collisions, nil
}

// maybeGrow grows the table if the load factor exceeds the maximum.
func (t *Table[K, V]) maybeGrow() {
	if float64(t.used)/float64(len(t.slots)) > t.maxLoad {
		t.grow()
	}
}

// grow resizes the table to ceil(capacity*growth) slots by allocating a new
// array and putting each occupied entry of the old array into it. Tombstones
// are discarded.
func (t *Table[K, V]) grow() {
	oldSlots := t.slots
	newCapacity := int(math.Ceil(float64(len(oldSlots)) * t.growth))
	if newCapacity <= len(oldSlots) {
		newCapacity = len(oldSlots) + 1
	}

	if debug {
		fmt.Printf("grow: capacity=%d->%d used=%d\n", len(oldSlots), newCapacity, t.used)
	}

	t.slots = t.allocSlots(newCapacity)
	t.used = 0
	for i := range oldSlots {
		s := &oldSlots[i]
		if s.state != slotOccupied {
			continue
		}
		if _, err := t.put(s.key, s.value, false /* assign */); err != nil {
			// The old keys are unique and the new array is larger, so this
			// can only happen if the hasher is not deterministic.
			panic(fmt.Sprintf("invariant failed: grow: re-inserting slot %d: %v\n%s", i, err, t.debugString()))
		}
	}
	t.allocator.FreeSlots(oldSlots)
}

func (t *Table[K, V]) allocSlots(n int) []Slot[K, V] {
	slots := t.allocator.AllocSlots(n)
	clear(slots)
	return slots
}

func (t *Table[K, V]) checkInvariants() {
	if invariants {
		if len(t.slots) == 0 {
			panic("invariant failed: zero capacity")
		}

		// For every occupied slot, verify we can retrieve the key using
		// Search and that the key is not held by any other slot.
		seen := make(map[K]int, t.used)
		var used int
		for i := range t.slots {
			s := &t.slots[i]
			switch s.state {
			case slotEmpty, slotDeleted:
			case slotOccupied:
				if j, ok := seen[s.key]; ok {
					panic(fmt.Sprintf("invariant failed: slot(%d) and slot(%d) both hold %v\n%s",
						j, i, s.key, t.debugString()))
				}
				seen[s.key] = i
				if j, found, _ := t.probe(s.key); !found || j != i {
					panic(fmt.Sprintf("invariant failed: slot(%d): %v not found [home=%d]\n%s",
						i, s.key, t.home(s.key), t.debugString()))
				}
				used++
			default:
				panic(fmt.Sprintf("invariant failed: slot(%d): unexpected state %s", i, s.state))
			}
		}

		if used != t.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, t.used, t.debugString()))
		}
	}
}

func (t *Table[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d\n", len(t.slots), t.used)
	for i := range t.slots {
		switch s := &t.slots[i]; s.state {
		case slotOccupied:
			fmt.Fprintf(&buf, "  %4d: %v=%v [home=%d]\n", i, s.key, s.value, t.home(s.key))
		default:
			fmt.Fprintf(&buf, "  %4d: %s\n", i, s.state)
		}
	}
	return buf.String()
}

// probeSeq maintains the state for a probe sequence. The sequence is of the
// form
//
//	p(i) := (h1 + i*step) mod capacity
//
// Because step is coprime with capacity, p is a bijection on [0, capacity)
// for i in [0, capacity) and the sequence visits every slot exactly once
// before done reports true.
type probeSeq struct {
	capacity uint64
	step     uint64
	offset   uint64
	index    uint64
}

func makeProbeSeq(h1, h2, capacity uint64) probeSeq {
	return probeSeq{
		capacity: capacity,
		step:     probeStep(h2, capacity),
		offset:   h1 % capacity,
		index:    0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset = (s.offset + s.step) % s.capacity
	return s
}

func (s probeSeq) done() bool {
	return s.index >= s.capacity
}

func (s probeSeq) String() string {
	return fmt.Sprintf("capacity=%d step=%d offset=%d index=%d", s.capacity, s.step, s.offset, s.index)
}

// probeStep reduces the secondary hash h2 to a step in [1, capacity) that is
// coprime with capacity. Stepping from a non-coprime step only visits
// capacity/gcd(step, capacity) distinct slots.
func probeStep(h2, capacity uint64) uint64 {
	if capacity <= 2 {
		return 1
	}
	step := 1 + h2%(capacity-1)
	for gcd(step, capacity) != 1 {
		step++
		if step == capacity {
			step = 1
		}
	}
	return step
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
