package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestStore_SetAndGet(t *testing.T) {
	store := New()
	ctx := context.Background()
	key := "foo"
	value := "bar"

	if err := store.Set(ctx, key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, found, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatalf("expected %q to be present", key)
	}
	if got != value {
		t.Errorf("expected %v, got %v", value, got)
	}
}

func TestStore_Missing(t *testing.T) {
	store := New()

	got, found, err := store.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found || got != nil {
		t.Errorf("expected miss, got (%v, %v)", got, found)
	}
}

func TestStore_FalsyValuesArePresent(t *testing.T) {
	store := New()
	ctx := context.Background()

	values := map[string]interface{}{
		"zero":  0.0,
		"empty": []string{},
		"nil":   nil,
		"false": false,
	}
	for key, value := range values {
		if err := store.Set(ctx, key, value); err != nil {
			t.Fatalf("Set(%s) failed: %v", key, err)
		}
	}

	for key := range values {
		_, found, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", key, err)
		}
		if !found {
			t.Errorf("expected falsy value under %q to be present", key)
		}
	}
}

func TestStore_Overwrite(t *testing.T) {
	store := New()
	ctx := context.Background()

	_ = store.Set(ctx, "k", 1)
	_ = store.Set(ctx, "k", 2)

	got, _, _ := store.Get(ctx, "k")
	if got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", store.Len())
	}
}

func TestStore_CancelledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Set(ctx, "k", "v"); err == nil {
		t.Error("expected Set to fail on cancelled context")
	}
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Error("expected Get to fail on cancelled context")
	}
	if store.Len() != 0 {
		t.Errorf("expected no entries, got %d", store.Len())
	}
}

func TestStore_Concurrency(t *testing.T) {
	store := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := store.Set(ctx, fmt.Sprintf("key-%d", i), i); err != nil {
				t.Errorf("Set failed: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, _, err := store.Get(ctx, fmt.Sprintf("key-%d", i)); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if store.Len() != 50 {
		t.Errorf("expected 50 entries, got %d", store.Len())
	}
}
