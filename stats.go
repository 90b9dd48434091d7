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
	"fmt"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/rand"
)

// InsertCounting inserts or overwrites an entry like InsertOrAssign, but
// never grows the table, and returns the number of occupied slots holding
// other keys that were probed before the entry was placed. It exists for
// collision analysis at a fixed capacity.
func (t *Table[K, V]) InsertCounting(key K, value V) (collisions int, err error) {
	collisions, err = t.put(key, value, true /* assign */)
	t.checkInvariants()
	return collisions, err
}

// MeasureCollisions inserts pairs random entries into t using
// InsertCounting, with keys and values drawn uniformly from [min, max], and
// returns the total number of collisions. Drawing a key that is already
// present overwrites its value. It returns an error wrapping ErrTableFull if
// the table runs out of free slots.
func MeasureCollisions[T constraints.Integer](
	t *Table[T, T], rng *rand.Rand, pairs int, min, max T,
) (int, error) {
	if min > max {
		return 0, fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, min, max)
	}
	var total int
	for i := 0; i < pairs; i++ {
		key := randomIn(rng, min, max)
		value := randomIn(rng, min, max)
		n, err := t.InsertCounting(key, value)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// CollisionReport summarizes the collisions observed by CollisionStats.
type CollisionReport struct {
	// Size is the capacity of every table measured.
	Size int
	// Pairs is the number of random entries inserted into each table.
	Pairs int
	// Trials is the number of tables measured.
	Trials int
	// Total is the sum of collisions over all trials.
	Total int
}

// Average returns the mean number of collisions per trial.
func (r CollisionReport) Average() float64 {
	if r.Trials == 0 {
		return 0
	}
	return float64(r.Total) / float64(r.Trials)
}

func (r CollisionReport) String() string {
	return fmt.Sprintf("size=%d    average count of collisions=%.2f", r.Size, r.Average())
}

// CollisionStats measures trials fresh tables of capacity size, each filled
// by MeasureCollisions with pairs entries drawn from [min, max] using rng.
// The options are applied to every table.
func CollisionStats[T constraints.Integer](
	rng *rand.Rand, size, pairs, trials int, min, max T, options ...Option[T, T],
) (CollisionReport, error) {
	r := CollisionReport{Size: size, Pairs: pairs, Trials: trials}
	for i := 0; i < trials; i++ {
		t, err := New[T, T](size, options...)
		if err != nil {
			return r, err
		}
		n, err := MeasureCollisions(t, rng, pairs, min, max)
		t.Close()
		r.Total += n
		if err != nil {
			return r, fmt.Errorf("trial %d: %w", i, err)
		}
	}
	return r, nil
}
