package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	c := New(ttl, clock, zerolog.Nop())
	t.Cleanup(c.Close)
	return c, clock
}

func TestCacheBasicOperations(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	c.Set("key1", "value1")
	value, exists := c.Get("key1")
	if !exists {
		t.Error("Expected key1 to exist")
	}
	if value != "value1" {
		t.Errorf("Expected value1, got %v", value)
	}

	if _, exists := c.Get("key2"); exists {
		t.Error("Expected key2 to not exist")
	}

	c.Delete("key1")
	if _, exists := c.Get("key1"); exists {
		t.Error("Expected key1 to be deleted")
	}
}

func TestCacheSlidingExpiration(t *testing.T) {
	c, clock := newTestCache(t, time.Hour)

	c.Set("key1", 1)

	clock.Advance(50 * time.Minute)
	if _, ok := c.Get("key1"); !ok {
		t.Fatal("Expected key1 to exist before ttl")
	}

	// the read above restarted the ttl
	clock.Advance(50 * time.Minute)
	if _, ok := c.Get("key1"); !ok {
		t.Fatal("Expected read to extend the ttl")
	}

	clock.Advance(61 * time.Minute)
	if _, ok := c.Get("key1"); ok {
		t.Error("Expected key1 to be expired")
	}
}

func TestCacheInvalidateByTag(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	c.Set("lookup:og_1", 1, "gamedata", "og_1")
	c.Set("lookup:oz_2", 2, "gamedata", "oz_2")
	c.Set("status", 3, "status")

	c.Invalidate("og_1")
	if _, ok := c.Get("lookup:og_1"); ok {
		t.Error("Expected lookup:og_1 to be invalidated")
	}
	if _, ok := c.Get("lookup:oz_2"); !ok {
		t.Error("Expected lookup:oz_2 to survive")
	}

	c.Invalidate("gamedata")
	if _, ok := c.Get("lookup:oz_2"); ok {
		t.Error("Expected lookup:oz_2 to be invalidated")
	}
	if _, ok := c.Get("status"); !ok {
		t.Error("Expected untagged group to survive")
	}
}

func TestCacheSetReplacesTags(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	c.Set("key", 1, "a")
	c.Set("key", 2, "b")

	c.Invalidate("a")
	if v, ok := c.Get("key"); !ok || v != 2 {
		t.Errorf("Expected key to keep value 2, got %v (%v)", v, ok)
	}

	c.Invalidate("b")
	if _, ok := c.Get("key"); ok {
		t.Error("Expected key to be invalidated by its new tag")
	}
}

func TestWrapCachesValuesNotErrors(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Wrap(ctx, c, "answer", []string{"t"}, load)
		if err != nil || v != 42 {
			t.Fatalf("Expected 42, got %v (%v)", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("Expected 1 load, got %d", calls)
	}

	failing := func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	}
	for i := 0; i < 2; i++ {
		if _, err := Wrap(ctx, c, "broken", nil, failing); err == nil {
			t.Fatal("Expected error")
		}
	}
	if calls != 3 {
		t.Errorf("Expected errors to be retried, got %d loads", calls)
	}
}

func TestCacheStats(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Keys != 1 {
		t.Errorf("Expected 1 hit, 1 miss, 1 key, got %+v", s)
	}
}
