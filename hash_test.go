package redisent

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/redisent/internal/chunk"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func newTestHash(t *testing.T, s *memStore, opts HashOptions[user]) *Hash[user] {
	t.Helper()
	c := newTestContext(t, s, nil)
	h := NewHash[user]("Users", opts)
	require.NoError(t, c.Register(h))
	return h
}

func usersN(n int) map[string]user {
	out := make(map[string]user, n)
	for i := 0; i < n; i++ {
		out["u"+strconv.Itoa(i)] = user{ID: i, Name: "n" + strconv.Itoa(i)}
	}
	return out
}

func TestHashWriteReadInvalidateScenario(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})

	require.NoError(t, h.WriteField(ctx, "1", user{ID: 1, Name: "Alice"}))
	s.resetCalls()

	got, ok := h.ReadField(ctx, "1", false)
	require.True(t, ok)
	assert.Equal(t, user{ID: 1, Name: "Alice"}, got)
	assert.Zero(t, s.total(), "cache hit expected")

	h.InvalidateField("1")
	got, ok = h.ReadField(ctx, "1", false)
	require.True(t, ok)
	assert.Equal(t, user{ID: 1, Name: "Alice"}, got)
	assert.Equal(t, 1, s.count("HGET"))
	assert.Equal(t, 1, s.total())
}

func TestHashPublishGrammar(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})

	require.NoError(t, h.WriteField(ctx, "42", user{ID: 42}))
	assert.Equal(t, []string{"Users|42"}, s.messages())

	s.published = nil
	require.NoError(t, h.WriteFields(ctx, map[string]user{"1": {ID: 1}, "2": {ID: 2}}, true))
	assert.Equal(t, []string{"Users|all"}, s.messages(), "bulk write announces once")

	s.published = nil
	require.NoError(t, h.WriteFields(ctx, map[string]user{"3": {ID: 3}, "4": {ID: 4}}, false))
	msgs := s.messages()
	sort.Strings(msgs)
	assert.Equal(t, []string{"Users|3", "Users|4"}, msgs)
}

func TestHashBulkWriteOnEmptyHash(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})

	require.NoError(t, h.WriteFields(ctx, map[string]user{"1": {ID: 1}, "2": {ID: 2}}, true))
	assert.Equal(t, 1, s.count("HSET"))
	assert.Equal(t, []string{"Users|all"}, s.messages())

	n, err := h.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestHashCapacityGuard(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		existing int
		incoming int
		allowed  bool
	}{
		{"one below the ceiling", 3999, 1, true},
		{"at the ceiling", 4000, 1, false},
		{"batch crossing the ceiling", 3990, 11, false},
		{"batch landing on the ceiling", 3990, 10, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newMemStore()
			h := newTestHash(t, s, HashOptions[user]{})
			s.seedHash("Users", tc.existing)
			s.resetCalls()

			err := h.WriteFields(ctx, usersN(tc.incoming), false)
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, 1, s.count("HSET"))
				return
			}
			var cerr *CapacityError
			require.ErrorAs(t, err, &cerr)
			assert.EqualValues(t, tc.existing, cerr.Current)
			assert.Equal(t, tc.incoming, cerr.Incoming)
			assert.EqualValues(t, DefaultMaxFields, cerr.Limit)
			assert.Zero(t, s.count("HSET"), "rejected write must not reach the store")
			assert.Empty(t, s.messages())
		})
	}
}

func TestHashCapacityGuardSingleField(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})

	s.seedHash("Users", 3999)
	require.NoError(t, h.WriteField(ctx, "new", user{ID: 1}))

	s.resetCalls()
	var cerr *CapacityError
	require.ErrorAs(t, h.WriteField(ctx, "another", user{ID: 2}), &cerr)
	assert.Zero(t, s.count("HSET"))
}

func TestHashCapacityGuardCountFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("HLEN down uses HKEYS", func(t *testing.T) {
		s := newMemStore()
		h := newTestHash(t, s, HashOptions[user]{MaxFields: 5})
		s.seedHash("Users", 5)
		s.setFail("HLEN", errDown)

		var cerr *CapacityError
		require.ErrorAs(t, h.WriteField(ctx, "x", user{}), &cerr)
		assert.False(t, cerr.Unknown)
		assert.EqualValues(t, 5, cerr.Current)
		assert.Equal(t, 1, s.count("HKEYS"))
	})
	t.Run("both down fails closed", func(t *testing.T) {
		s := newMemStore()
		h := newTestHash(t, s, HashOptions[user]{})
		s.setFail("HLEN", errDown)
		s.setFail("HKEYS", errDown)

		var cerr *CapacityError
		require.ErrorAs(t, h.WriteField(ctx, "x", user{}), &cerr)
		assert.True(t, cerr.Unknown)
		assert.Zero(t, s.count("HSET"))
	})
}

func TestHashReadFieldsBatchesMisses(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})

	require.NoError(t, h.WriteFields(ctx, map[string]user{"1": {ID: 1}, "2": {ID: 2}, "3": {ID: 3}}, true))
	h.InvalidateFields([]string{"2", "3"})
	s.resetCalls()

	got := h.ReadFields(ctx, []string{"1", "2", "3", "missing", "2", ""}, false)
	assert.Equal(t, map[string]user{"1": {ID: 1}, "2": {ID: 2}, "3": {ID: 3}}, got)
	assert.Equal(t, 1, s.count("HMGET"))
	assert.Equal(t, 1, s.total())

	s.resetCalls()
	got = h.ReadFields(ctx, []string{"1", "2", "3"}, false)
	assert.Len(t, got, 3)
	assert.Zero(t, s.total(), "misses were backfilled")

	s.resetCalls()
	_ = h.ReadFields(ctx, []string{"1", "2"}, true)
	assert.Equal(t, 1, s.count("HMGET"))
}

func TestHashReadFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	require.NoError(t, h.WriteFields(ctx, map[string]user{"1": {ID: 1}, "2": {ID: 2}}, true))

	s.putHashRaw("Users", "1", "not json")
	got, ok := h.ReadField(ctx, "1", true)
	require.True(t, ok)
	assert.Equal(t, 1, got.ID)

	s.setFail("HMGET", errDown)
	many := h.ReadFields(ctx, []string{"1", "2"}, true)
	assert.Equal(t, map[string]user{"1": {ID: 1}, "2": {ID: 2}}, many)
}

func TestHashForcedReadEvictsRemoteDeletion(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	require.NoError(t, h.WriteFields(ctx, map[string]user{"1": {ID: 1}, "2": {ID: 2}}, true))

	// deleted behind our back, no invalidation received
	require.NoError(t, s.HDel(ctx, "Users", "1", "2"))

	_, ok := h.ReadField(ctx, "1", true)
	assert.False(t, ok)
	assert.Empty(t, h.ReadFields(ctx, []string{"2"}, true))

	s.resetCalls()
	_, ok = h.ReadField(ctx, "1", false)
	assert.False(t, ok)
	assert.Empty(t, h.ReadFields(ctx, []string{"2"}, false))
	assert.Equal(t, 1, s.count("HGET"), "evicted field must go remote")
	assert.Equal(t, 1, s.count("HMGET"), "evicted field must go remote")
}

func TestHashBackfillTracksFieldsIndependently(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	require.NoError(t, h.WriteFields(ctx, map[string]user{"a": {ID: 1}, "b": {ID: 2}}, true))
	h.Invalidate()

	s.onGet = func() { _ = h.WriteField(ctx, "b", user{ID: 20}) }
	got, ok := h.ReadField(ctx, "a", false)
	s.onGet = nil
	require.True(t, ok)
	assert.Equal(t, 1, got.ID)

	s.resetCalls()
	_, ok = h.ReadField(ctx, "a", false)
	require.True(t, ok)
	assert.Zero(t, s.total(), "a write to b must not block backfilling a")

	h.InvalidateField("a")
	s.onGet = func() { _ = h.WriteField(ctx, "a", user{ID: 10}) }
	got, ok = h.ReadField(ctx, "a", false)
	s.onGet = nil
	require.True(t, ok)
	assert.Equal(t, 1, got.ID, "the read returns what the store held")

	s.resetCalls()
	got, ok = h.ReadField(ctx, "a", false)
	require.True(t, ok)
	assert.Equal(t, 10, got.ID, "the older read must not overwrite the write")
	assert.Zero(t, s.total())
}

func TestHashBareValueFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	require.NoError(t, h.WriteField(ctx, "1", user{ID: 1, Name: "Alice"}))

	for _, raw := range []string{`{"id":9,"name":"Mallory"}`, `{}`, `null`} {
		s.putHashRaw("Users", "1", raw)
		got, ok := h.ReadField(ctx, "1", true)
		require.True(t, ok, raw)
		assert.Equal(t, user{ID: 1, Name: "Alice"}, got, raw)
	}
}

func TestHashNonPositiveMaxFieldsUsesDefault(t *testing.T) {
	ctx := context.Background()
	for _, limit := range []int64{0, -5} {
		s := newMemStore()
		h := newTestHash(t, s, HashOptions[user]{MaxFields: limit})
		require.NoError(t, h.WriteField(ctx, "1", user{ID: 1}))

		s.seedHash("Users", int(DefaultMaxFields))
		var cerr *CapacityError
		require.ErrorAs(t, h.WriteField(ctx, "new", user{ID: 2}), &cerr)
		assert.Equal(t, DefaultMaxFields, cerr.Limit)
	}
}

func TestHashValidation(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	s.resetCalls()

	assert.ErrorIs(t, h.WriteField(ctx, "", user{}), ErrEmptyField)
	assert.ErrorIs(t, h.WriteFields(ctx, map[string]user{"": {}}, false), ErrEmptyField)
	assert.ErrorIs(t, h.RemoveField(ctx, ""), ErrEmptyField)
	_, ok := h.ReadField(ctx, "", false)
	assert.False(t, ok)
	assert.NoError(t, h.WriteFields(ctx, nil, true))
	assert.Zero(t, s.total())
	assert.Empty(t, s.messages())
}

func TestHashRemove(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	require.NoError(t, h.WriteFields(ctx, usersN(4), true))
	s.published = nil

	require.NoError(t, h.RemoveField(ctx, "u0"))
	assert.Equal(t, []string{"Users|u0"}, s.messages())
	_, ok := h.ReadField(ctx, "u0", false)
	assert.False(t, ok)

	require.NoError(t, h.RemoveFields(ctx, []string{"u1", "u2"}))
	names, err := h.FieldNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, names)

	require.NoError(t, h.RemoveAll(ctx))
	n, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok = h.ReadField(ctx, "u3", false)
	assert.False(t, ok)
	assert.Equal(t, []string{"Users|u0", "Users|all", "Users|all"}, s.messages())
}

func TestHashSize(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	require.NoError(t, h.WriteField(ctx, "1", user{ID: 1}))

	assert.Positive(t, h.Size(ctx))
	s.setFail("MEMORY", errDown)
	assert.Zero(t, h.Size(ctx))
}

func TestHashWriteInChunksCallCount(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct{ n, size, calls int }{
		{10, 3, 4},
		{9, 3, 3},
		{1, 5, 1},
		{0, 5, 0},
	} {
		t.Run(strconv.Itoa(tc.n)+"/"+strconv.Itoa(tc.size), func(t *testing.T) {
			s := newMemStore()
			h := newTestHash(t, s, HashOptions[user]{})
			s.resetCalls()

			in := usersN(tc.n)
			require.NoError(t, h.WriteInChunks(ctx, in, tc.size, true))
			assert.Equal(t, tc.calls, s.count("HSET"))

			seen := make(map[string]int)
			for _, batch := range s.writes {
				assert.LessOrEqual(t, len(batch), tc.size)
				for f := range batch {
					seen[f]++
				}
			}
			assert.Len(t, seen, tc.n)
			for f, n := range seen {
				assert.Equal(t, 1, n, "field %s written more than once", f)
			}
		})
	}
}

func TestHashChunkSizeValidatedBeforeIO(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	s.resetCalls()

	assert.ErrorIs(t, h.WriteInChunks(ctx, usersN(3), 0, false), chunk.ErrInvalidSize)
	_, err := h.ReadInChunks(ctx, []string{"a"}, -1, false)
	assert.ErrorIs(t, err, chunk.ErrInvalidSize)
	assert.ErrorIs(t, h.RemoveInChunks(ctx, []string{"a"}, 0), chunk.ErrInvalidSize)
	assert.ErrorIs(t, h.WriteInByteChunks(ctx, usersN(3), 0, false), chunk.ErrInvalidSize)
	assert.Zero(t, s.total())
}

func TestHashChunkFailureAborts(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	s.failAt["HSET"] = 2

	err := h.WriteInChunks(ctx, usersN(10), 3, false)
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 2, s.count("HSET"), "remaining chunks are skipped")
	assert.Len(t, serr.Fields, 3)

	// fields are sorted before chunking: u0 u1 u2 landed
	s.resetCalls()
	for _, f := range []string{"u0", "u1", "u2"} {
		_, ok := h.ReadField(ctx, f, false)
		assert.True(t, ok, f)
	}
	assert.Zero(t, s.total(), "committed chunk stays cached")
	assert.Equal(t, []string{"Users|all"}, s.messages())
}

func TestHashReadAndRemoveInChunks(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	in := usersN(7)
	require.NoError(t, h.WriteFields(ctx, in, true))
	h.Invalidate()
	s.resetCalls()

	fields := make([]string, 0, len(in))
	for f := range in {
		fields = append(fields, f)
	}
	got, err := h.ReadInChunks(ctx, fields, 3, false)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.Equal(t, 3, s.count("HMGET"))

	s.published = nil
	require.NoError(t, h.RemoveInChunks(ctx, fields, 2))
	assert.Equal(t, 4, s.count("HDEL"))
	assert.Equal(t, []string{"Users|all"}, s.messages())
	n, _ := h.Count(ctx)
	assert.Zero(t, n)
}

func TestHashWriteInByteChunks(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	s.resetCalls()

	in := map[string]user{
		"a": {ID: 1, Name: "x"},
		"b": {ID: 2, Name: strings.Repeat("y", 40)},
		"c": {ID: 3, Name: strings.Repeat("z", 400)},
		"d": {ID: 4, Name: "w"},
		"e": {ID: 5, Name: strings.Repeat("v", 80)},
	}
	const budget = 200
	require.NoError(t, h.WriteInByteChunks(ctx, in, budget, true))

	seen := 0
	for _, batch := range s.writes {
		size := 0
		for f, raw := range batch {
			size += len(f) + len(raw)
		}
		seen += len(batch)
		if len(batch) > 1 {
			assert.LessOrEqual(t, size, budget)
		}
	}
	assert.Equal(t, len(in), seen)
	assert.Greater(t, len(s.writes), 1)
	assert.Equal(t, []string{"Users|all"}, s.messages())

	got := h.ReadFields(ctx, []string{"a", "b", "c", "d", "e"}, true)
	assert.Equal(t, in, got)
}

func TestHashConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	h := newTestHash(t, s, HashOptions[user]{})
	require.NoError(t, h.WriteFields(ctx, usersN(20), true))

	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				f := "u" + strconv.Itoa(i%20)
				switch (i + w) % 4 {
				case 0:
					h.InvalidateField(f)
				case 1:
					h.Invalidate()
				default:
					if got, ok := h.ReadField(ctx, f, false); ok && "u"+strconv.Itoa(got.ID) != f {
						t.Errorf("field %s returned %+v", f, got)
					}
				}
			}
		}(w)
	}
	for i := 0; i < 4; i++ {
		<-done
	}
}
