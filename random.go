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
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/rand"
)

// ErrInvalidRange is returned when a random value range has min > max.
var ErrInvalidRange = errors.New("dhash: invalid range")

// NewRandom constructs a new Table with the specified capacity and fills it
// with capacity entries whose keys are 0, 1, ..., capacity-1 and whose values
// are drawn independently and uniformly from [min, max]. The table is filled
// completely and is not grown while doing so, which makes it useful for
// observing collision behavior; the first subsequent insertion grows it.
//
// The values are reproducible when a seed is given with WithSeed.
func NewRandom[K, V constraints.Integer](
	capacity int, min, max V, options ...Option[K, V],
) (*Table[K, V], error) {
	t, err := New[K, V](capacity, options...)
	if err != nil {
		return nil, err
	}
	if min > max {
		t.Close()
		return nil, fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, min, max)
	}
	// Keys 0..capacity-1 must all be representable in K.
	if last := uint64(capacity - 1); uint64(K(last)) != last {
		t.Close()
		return nil, fmt.Errorf("%w: %d keys do not fit in %T", ErrInvalidCapacity, capacity, K(0))
	}

	seed := t.seed
	if !t.seeded {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < capacity; i++ {
		if _, err := t.put(K(i), randomIn(rng, min, max), false /* assign */); err != nil {
			// Keys are distinct and every probe sequence covers the whole
			// array, so a slot is always free.
			panic(fmt.Sprintf("invariant failed: random fill of key %d: %v\n%s", i, err, t.debugString()))
		}
	}
	t.checkInvariants()
	return t, nil
}

// randomIn returns a value drawn uniformly from [min, max]. It requires
// min <= max.
func randomIn[V constraints.Integer](rng *rand.Rand, min, max V) V {
	// The subtraction is performed in uint64 so that it wraps rather than
	// overflowing V for signed types; the result is the exact width of the
	// range minus one.
	span := uint64(max) - uint64(min)
	var n uint64
	if span == math.MaxUint64 {
		n = rng.Uint64()
	} else {
		n = rng.Uint64n(span + 1)
	}
	return V(uint64(min) + n)
}
