package chunk

import (
	"errors"
	"math/rand"
	"testing"
)

func TestByCountRejectsNonPositive(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := ByCount([]int{1, 2}, n); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("size=%d: want ErrInvalidSize, got %v", n, err)
		}
	}
}

func TestByCountCompleteness(t *testing.T) {
	cases := []struct{ n, size int }{
		{0, 3}, {1, 1}, {5, 2}, {6, 3}, {7, 10}, {1001, 100},
	}
	for _, tc := range cases {
		items := make([]int, tc.n)
		for i := range items {
			items[i] = i
		}
		chunks, err := ByCount(items, tc.size)
		if err != nil {
			t.Fatal(err)
		}
		want := (tc.n + tc.size - 1) / tc.size
		if len(chunks) != want {
			t.Fatalf("n=%d size=%d: %d chunks, want %d", tc.n, tc.size, len(chunks), want)
		}
		seen := make(map[int]int, tc.n)
		next := 0
		for _, c := range chunks {
			if len(c) == 0 || len(c) > tc.size {
				t.Fatalf("bad chunk length %d", len(c))
			}
			for _, v := range c {
				if v != next {
					t.Fatalf("order broken: got %d want %d", v, next)
				}
				next++
				seen[v]++
			}
		}
		if len(seen) != tc.n {
			t.Fatalf("n=%d: union has %d items", tc.n, len(seen))
		}
		for v, cnt := range seen {
			if cnt != 1 {
				t.Fatalf("item %d seen %d times", v, cnt)
			}
		}
	}
}

func TestByCountChunksDoNotAlias(t *testing.T) {
	chunks, _ := ByCount([]int{1, 2, 3, 4}, 2)
	chunks[0] = append(chunks[0], 99)
	if chunks[1][0] != 3 {
		t.Fatalf("append to first chunk overwrote the second: %v", chunks[1])
	}
}

func TestBySizeRejectsNonPositive(t *testing.T) {
	if _, err := BySize([]string{"a"}, 0, func(s string) int { return len(s) }); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("want ErrInvalidSize, got %v", err)
	}
}

func TestBySizeNeverSplitsEntries(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const budget = 100
	for round := 0; round < 200; round++ {
		sizes := make([]int, rng.Intn(40))
		total := 0
		for i := range sizes {
			sizes[i] = 1 + rng.Intn(160) // some entries exceed the budget
			total += sizes[i]
		}
		chunks, err := BySize(sizes, budget, func(n int) int { return n })
		if err != nil {
			t.Fatal(err)
		}
		got := 0
		for _, c := range chunks {
			sum := 0
			for _, n := range c {
				sum += n
			}
			got += sum
			if sum > budget && len(c) != 1 {
				t.Fatalf("chunk %v sums to %d > %d with %d entries", c, sum, budget, len(c))
			}
		}
		if got != total {
			t.Fatalf("entries dropped: %d != %d", got, total)
		}
	}
}

func TestBySizeOversizedAlone(t *testing.T) {
	chunks, _ := BySize([]int{10, 500, 10, 10}, 50, func(n int) int { return n })
	if len(chunks) != 3 {
		t.Fatalf("got %v", chunks)
	}
	if len(chunks[1]) != 1 || chunks[1][0] != 500 {
		t.Fatalf("oversized entry not isolated: %v", chunks)
	}
}
