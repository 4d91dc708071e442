// Package cachetest holds the behavioural suite every cache.Cache adapter runs.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/satorinet/neuronfeed/internal/port/cache"
)

// Run runs the standard compliance suite against c.
func Run(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "overview:compliance", []byte(`{"value":1}`), time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found, err := c.Get(ctx, "overview:compliance")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != `{"value":1}` {
			t.Fatalf("expected stored overview, got %s", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "overview:nonexistent")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for nonexistent key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "overview:del", []byte("{}"), time.Minute)
		if err := c.Delete(ctx, "overview:del"); err != nil {
			t.Fatal(err)
		}
		_, found, err := c.Get(ctx, "overview:del")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		if err := c.Delete(ctx, "overview:never-existed"); err != nil {
			t.Fatal("Delete of nonexistent key should not error")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "overview:ow", []byte(`{"v":1}`), time.Minute)
		_ = c.Set(ctx, "overview:ow", []byte(`{"v":2}`), time.Minute)
		val, found, err := c.Get(ctx, "overview:ow")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after overwrite")
		}
		if string(val) != `{"v":2}` {
			t.Fatalf("expected latest overview after overwrite, got %s", val)
		}
	})
}
