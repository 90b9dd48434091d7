package dhash

import (
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
	"golang.org/x/exp/rand"
)

func BenchmarkTableIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkRuntimeMapIter[int64], genKeys[int64]))
	})
	b.Run("impl=dhash", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkTableIter[int64], genKeys[int64]))
	})
}

func BenchmarkTableSearchHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetHit[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetHit[string], genKeys[string]))
	})
	b.Run("impl=dhash", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableSearchHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkTableSearchHit[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkTableSearchHit[string], genKeys[string]))
	})
}

func BenchmarkTableSearchMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetMiss[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetMiss[string], genKeys[string]))
	})
	b.Run("impl=dhash", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableSearchMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkTableSearchMiss[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkTableSearchMiss[string], genKeys[string]))
	})
}

func BenchmarkTableInsertGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutGrow[string], genKeys[string]))
	})
	b.Run("impl=dhash", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableInsertGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkTableInsertGrow[string], genKeys[string]))
	})
}

func BenchmarkTableInsertErase(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutDelete[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutDelete[string], genKeys[string]))
	})
	b.Run("impl=dhash", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableInsertErase[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkTableInsertErase[string], genKeys[string]))
	})
}

func BenchmarkCollisionStats(b *testing.B) {
	for _, size := range []int{26, 32, 52, 104} {
		b.Run("size="+strconv.Itoa(size), func(b *testing.B) {
			rng := newBenchRand()
			identity := WithHasher[int, int](IdentityHasher[int]{})
			b.ResetTimer()
			perfbench.Open(b)
			var total int
			for i := 0; i < b.N; i++ {
				r, err := CollisionStats(rng, size, 26, 1, 0, 1000, identity)
				if err != nil {
					b.Fatal(err)
				}
				total += r.Total
			}
			b.ReportMetric(float64(total)/float64(b.N), "collisions/op")
		})
	}
}

type benchTypes interface {
	int32 | int64 | string
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	var t T
	switch any(t).(type) {
	case int32:
		keys := make([]int32, end-start)
		for i := range keys {
			keys[i] = int32(start + i)
		}
		return any(keys).([]T)
	case int64:
		keys := make([]int64, end-start)
		for i := range keys {
			keys[i] = int64(start + i)
		}
		return any(keys).([]T)
	case string:
		keys := make([]string, end-start)
		for i := range keys {
			keys[i] = strconv.Itoa(start + i)
		}
		return any(keys).([]T)
	default:
		panic("not reached")
	}
}

func newBenchRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func newBenchTable[T comparable](b *testing.B, capacity int) *Table[T, T] {
	t, err := New[T, T](capacity)
	if err != nil {
		b.Fatal(err)
	}
	return t
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
}

func benchmarkTableIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		_ = m.Insert(k, k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	var tmp T
	for i := 0; i < b.N; i++ {
		m.All(func(k, v T) bool {
			tmp += k + v
			return true
		})
	}
}

func benchmarkRuntimeMapGetMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[miss[i%len(miss)]]
	}
}

func benchmarkTableSearchMiss[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T](b, 1)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for j := range keys {
		_ = m.Insert(keys[j], keys[j])
	}
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Search(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}

	// Go's builtin map has an optimization to avoid string comparisons if
	// there is pointer equality. Defeat this optimization to get a better
	// apples-to-apples comparison.
	keys = genKeys(0, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
}

func benchmarkTableSearchHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		_ = m.Insert(k, k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Search(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkTableInsertGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := newBenchTable[T](b, 1)
		for _, k := range keys {
			_ = m.Insert(k, k)
		}
	}
}

func benchmarkRuntimeMapPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = keys[j]
	}
}

func benchmarkTableInsertErase[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		_ = m.Insert(k, k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		j := i % n
		m.Erase(keys[j])
		_ = m.Insert(keys[j], keys[j])
	}
}
