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

import (
	"encoding/binary"
	"hash/maphash"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"golang.org/x/exp/constraints"
)

// Hasher computes the two hashes used by the double hashing probe sequence.
// Primary selects the home slot of a key (Primary(key) mod capacity) and
// Secondary selects the probe step. Both must be deterministic: equal keys
// must always produce equal hashes. The two hashes should be independent of
// each other, otherwise keys sharing a home slot will also share their probe
// sequence.
type Hasher[K comparable] interface {
	Primary(key K) uint64
	Secondary(key K) uint64
}

// HasherFunc adapts a pair of ordinary functions into a Hasher.
type HasherFunc[K comparable] struct {
	PrimaryFunc   func(key K) uint64
	SecondaryFunc func(key K) uint64
}

// Primary implements Hasher.
func (h HasherFunc[K]) Primary(key K) uint64 {
	return h.PrimaryFunc(key)
}

// Secondary implements Hasher.
func (h HasherFunc[K]) Secondary(key K) uint64 {
	return h.SecondaryFunc(key)
}

// DefaultHasher hashes the byte encoding of a key with xxhash for the primary
// hash and murmur3 for the secondary hash. Keys of the predeclared integer,
// float, bool and string types are encoded directly. Any other comparable
// type (named types included) falls back to hash/maphash with two fixed
// seeds, which is deterministic for the lifetime of the process. The zero
// DefaultHasher uses seeds shared by the whole process.
type DefaultHasher[K comparable] struct {
	seeds *[2]maphash.Seed
}

var sharedSeeds = [2]maphash.Seed{maphash.MakeSeed(), maphash.MakeSeed()}

func (h DefaultHasher[K]) seed(i int) maphash.Seed {
	if h.seeds == nil {
		return sharedSeeds[i]
	}
	return h.seeds[i]
}

// NewDefaultHasher returns a DefaultHasher ready for use.
func NewDefaultHasher[K comparable]() DefaultHasher[K] {
	return DefaultHasher[K]{seeds: &[2]maphash.Seed{maphash.MakeSeed(), maphash.MakeSeed()}}
}

// Primary implements Hasher.
func (h DefaultHasher[K]) Primary(key K) uint64 {
	var buf [8]byte
	if b, ok := encodeKey(buf[:0], key); ok {
		return xxhash.Sum64(b)
	}
	return maphash.Comparable(h.seed(0), key)
}

// Secondary implements Hasher.
func (h DefaultHasher[K]) Secondary(key K) uint64 {
	var buf [8]byte
	if b, ok := encodeKey(buf[:0], key); ok {
		return murmur3.Sum64(b)
	}
	return maphash.Comparable(h.seed(1), key)
}

// IdentityHasher uses an integer key as its own primary hash, so the home
// slot of key k is k mod capacity. This makes home slots predictable, which
// is what collision analysis wants. The secondary hash is murmur3 of the key.
type IdentityHasher[K constraints.Integer] struct{}

// Primary implements Hasher.
func (IdentityHasher[K]) Primary(key K) uint64 {
	return uint64(key)
}

// Secondary implements Hasher.
func (IdentityHasher[K]) Secondary(key K) uint64 {
	var buf [8]byte
	return murmur3.Sum64(binary.LittleEndian.AppendUint64(buf[:0], uint64(key)))
}

// encodeKey appends a fixed byte encoding of key to b. It returns false if
// key is not of a basic type it knows how to encode. Strings are returned
// as-is rather than appended.
func encodeKey[K comparable](b []byte, key K) ([]byte, bool) {
	switch k := any(key).(type) {
	case int:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case int8:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case int16:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case int32:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case int64:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case uint:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case uint8:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case uint16:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case uint32:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case uint64:
		return binary.LittleEndian.AppendUint64(b, k), true
	case uintptr:
		return binary.LittleEndian.AppendUint64(b, uint64(k)), true
	case float32:
		if k == 0 {
			// +0 and -0 compare equal.
			k = 0
		}
		return binary.LittleEndian.AppendUint64(b, uint64(math.Float32bits(k))), true
	case float64:
		if k == 0 {
			k = 0
		}
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(k)), true
	case bool:
		if k {
			return append(b, 1), true
		}
		return append(b, 0), true
	case string:
		return []byte(k), true
	}
	return nil, false
}
