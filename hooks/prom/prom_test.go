package prom

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersFollowEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New("app", reg)
	if err != nil {
		t.Fatal(err)
	}

	h.CacheHit("Users", 3)
	h.CacheHit("Users", 2)
	h.CacheMiss("Users", 1)
	h.StoreFailed("Users", "HSET", errors.New("boom"))
	h.CapacityRejected("Users", 4000, 1)
	h.Published("inval", "Users|1")
	h.PublishFailed("inval", errors.New("down"))

	if got := testutil.ToFloat64(h.hits.WithLabelValues("Users")); got != 5 {
		t.Fatalf("hits=%v want 5", got)
	}
	if got := testutil.ToFloat64(h.misses.WithLabelValues("Users")); got != 1 {
		t.Fatalf("misses=%v want 1", got)
	}
	if got := testutil.ToFloat64(h.stores.WithLabelValues("Users", "HSET")); got != 1 {
		t.Fatalf("store failures=%v want 1", got)
	}
	if got := testutil.ToFloat64(h.rejected.WithLabelValues("Users")); got != 1 {
		t.Fatalf("rejections=%v want 1", got)
	}
	if got := testutil.ToFloat64(h.published.WithLabelValues("inval")); got != 1 {
		t.Fatalf("published=%v want 1", got)
	}
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New("app", reg); err != nil {
		t.Fatal(err)
	}
	if _, err := New("app", reg); err == nil {
		t.Fatal("second registration under the same names should fail")
	}
}
