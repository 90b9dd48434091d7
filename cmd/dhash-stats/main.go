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

// dhash-stats prints the average number of probe collisions observed when
// filling fixed-capacity tables with random entries, for a range of table
// sizes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/dhash"
	"golang.org/x/exp/rand"
)

var (
	sizes  = flag.String("sizes", "26,30,35,40,50,75,100", "comma separated table capacities to measure")
	pairs  = flag.Int("pairs", 26, "random entries inserted into each table")
	trials = flag.Int("trials", 100, "tables measured per capacity")
	minVal = flag.Int("min", 0, "smallest random key and value")
	maxVal = flag.Int("max", 1000, "largest random key and value")
	seed   = flag.Uint64("seed", 0, "random seed (0 seeds from the current time)")
	hasher = flag.String("hasher", "identity", "hash function: identity or default")
)

func main() {
	flag.Parse()

	capacities, err := parseSizes(*sizes)
	if err != nil {
		log.Fatalf("-sizes: %v", err)
	}
	s := *seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}

	if err := run(os.Stdout, capacities, *pairs, *trials, *minVal, *maxVal, s, *hasher); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, capacities []int, pairs, trials, min, max int, seed uint64, hasher string) error {
	var options []dhash.Option[int, int]
	switch hasher {
	case "identity":
		options = append(options, dhash.WithHasher[int, int](dhash.IdentityHasher[int]{}))
	case "default":
	default:
		return fmt.Errorf("unknown hasher %q", hasher)
	}
	if pairs < 0 || trials <= 0 {
		return errors.New("need -pairs >= 0 and -trials > 0")
	}

	rng := rand.New(rand.NewSource(seed))
	for _, size := range capacities {
		r, err := dhash.CollisionStats(rng, size, pairs, trials, min, max, options...)
		if err != nil {
			return fmt.Errorf("size=%d: %w", size, err)
		}
		fmt.Fprintln(w, r)
	}
	return nil
}

func parseSizes(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, errors.New("no sizes")
	}
	return out, nil
}
