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

package dhash

// Option provides an interface to do work on Table while it is being created.
type Option[K comparable, V comparable] interface {
	apply(t *Table[K, V])
}

type hasherOption[K comparable, V comparable] struct {
	hasher Hasher[K]
}

func (op hasherOption[K, V]) apply(t *Table[K, V]) {
	t.hasher = op.hasher
}

// WithHasher is an option to specify the Hasher to use for a Table[K,V]. The
// default is DefaultHasher[K].
func WithHasher[K comparable, V comparable](hasher Hasher[K]) Option[K, V] {
	return hasherOption[K, V]{hasher}
}

// Allocator specifies an interface for allocating and releasing the slot
// arrays used by a Table. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots be
// freed then Table.Close must be called in order to ensure FreeSlots is
// called for the final slot array.
type Allocator[K comparable, V comparable] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[K,V], n).
	AllocSlots(n int) []Slot[K, V]

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[K, V])
}

type defaultAllocator[K comparable, V comparable] struct{}

func (defaultAllocator[K, V]) AllocSlots(n int) []Slot[K, V] {
	return make([]Slot[K, V], n)
}

func (defaultAllocator[K, V]) FreeSlots(v []Slot[K, V]) {
}

type allocatorOption[K comparable, V comparable] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(t *Table[K, V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Table[K,V].
func WithAllocator[K comparable, V comparable](allocator Allocator[K, V]) Option[K, V] {
	return allocatorOption[K, V]{allocator}
}

type maxLoadOption[K comparable, V comparable] struct {
	maxLoad float64
}

func (op maxLoadOption[K, V]) apply(t *Table[K, V]) {
	t.maxLoad = op.maxLoad
}

// WithMaxLoadFactor is an option to specify the load factor above which an
// insertion first grows the table. It must be in (0, 1]. The default is 0.6.
func WithMaxLoadFactor[K comparable, V comparable](maxLoad float64) Option[K, V] {
	return maxLoadOption[K, V]{maxLoad}
}

type growthOption[K comparable, V comparable] struct {
	growth float64
}

func (op growthOption[K, V]) apply(t *Table[K, V]) {
	t.growth = op.growth
}

// WithGrowthFactor is an option to specify the multiplier applied to the
// capacity when the table grows. It must be greater than 1. The default is
// 1.7.
func WithGrowthFactor[K comparable, V comparable](growth float64) Option[K, V] {
	return growthOption[K, V]{growth}
}

type seedOption[K comparable, V comparable] struct {
	seed uint64
}

func (op seedOption[K, V]) apply(t *Table[K, V]) {
	t.seed = op.seed
	t.seeded = true
}

// WithSeed is an option to specify the seed of the random source used by
// NewRandom. Without it NewRandom seeds from the current time.
func WithSeed[K comparable, V comparable](seed uint64) Option[K, V] {
	return seedOption[K, V]{seed}
}
