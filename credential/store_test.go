package credential

import (
	"context"
	"testing"
)

// storeTests runs the common suite against any Store implementation.
func storeTests(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyIsNil", func(t *testing.T) {
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		pair, err := store.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if pair != nil {
			t.Fatalf("expected nil pair, got %+v", pair)
		}
	})

	t.Run("SetAndGet", func(t *testing.T) {
		if err := store.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		pair, err := store.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if pair == nil || pair.AccessToken != "A1" || pair.RefreshToken != "R1" {
			t.Fatalf("got %+v, want A1/R1", pair)
		}
	})

	t.Run("SetAccessTokenKeepsRefresh", func(t *testing.T) {
		if err := store.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := store.SetAccessToken(ctx, "A2"); err != nil {
			t.Fatalf("SetAccessToken: %v", err)
		}
		access, err := AccessToken(ctx, store)
		if err != nil || access != "A2" {
			t.Fatalf("access = %q, %v; want A2", access, err)
		}
		refresh, err := RefreshToken(ctx, store)
		if err != nil || refresh != "R1" {
			t.Fatalf("refresh = %q, %v; want R1", refresh, err)
		}
	})

	t.Run("PartialPair", func(t *testing.T) {
		if err := store.Set(ctx, Pair{RefreshToken: "R-only"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		pair, err := store.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if pair == nil || pair.AccessToken != "" || pair.RefreshToken != "R-only" {
			t.Fatalf("got %+v, want refresh only", pair)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		if err := store.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("second Clear: %v", err)
		}
		access, err := AccessToken(ctx, store)
		if err != nil || access != "" {
			t.Fatalf("access after Clear = %q, %v", access, err)
		}
	})

	t.Run("CompareAndSet", func(t *testing.T) {
		if err := store.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		ok, err := store.CompareAndSet(ctx, "R1", Pair{AccessToken: "A2", RefreshToken: "R1"})
		if err != nil || !ok {
			t.Fatalf("CompareAndSet on matching refresh = %v, %v; want true", ok, err)
		}
		access, _ := AccessToken(ctx, store)
		if access != "A2" {
			t.Fatalf("access = %q, want A2", access)
		}

		// A newer sign-in replaced R1; the stale write must not land.
		if err := store.Set(ctx, Pair{AccessToken: "B1", RefreshToken: "S1"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		ok, err = store.CompareAndSet(ctx, "R1", Pair{AccessToken: "A3", RefreshToken: "R1"})
		if err != nil || ok {
			t.Fatalf("CompareAndSet on replaced refresh = %v, %v; want false", ok, err)
		}
		pair, _ := store.Get(ctx)
		if pair == nil || pair.AccessToken != "B1" || pair.RefreshToken != "S1" {
			t.Fatalf("got %+v, want B1/S1 untouched", pair)
		}

		// After a clear nothing matches R1, so no access-only entry appears.
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		ok, err = store.CompareAndSet(ctx, "R1", Pair{AccessToken: "A4", RefreshToken: "R1"})
		if err != nil || ok {
			t.Fatalf("CompareAndSet after Clear = %v, %v; want false", ok, err)
		}
		if pair, _ := store.Get(ctx); pair != nil {
			t.Fatalf("got %+v after rejected write, want nil", pair)
		}
	})

	t.Run("CompareAndSetClears", func(t *testing.T) {
		if err := store.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		ok, err := store.CompareAndSet(ctx, "R1", Pair{})
		if err != nil || !ok {
			t.Fatalf("CompareAndSet to empty = %v, %v; want true", ok, err)
		}
		if pair, _ := store.Get(ctx); pair != nil {
			t.Fatalf("got %+v, want nil", pair)
		}

		// "" matches an absent refresh entry and drops a leftover access token.
		if err := store.SetAccessToken(ctx, "A-only"); err != nil {
			t.Fatalf("SetAccessToken: %v", err)
		}
		ok, err = store.CompareAndSet(ctx, "", Pair{})
		if err != nil || !ok {
			t.Fatalf("CompareAndSet on absent refresh = %v, %v; want true", ok, err)
		}
		if pair, _ := store.Get(ctx); pair != nil {
			t.Fatalf("got %+v, want nil", pair)
		}
	})

	t.Run("LastWriteWins", func(t *testing.T) {
		_ = store.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"})
		_ = store.Set(ctx, Pair{AccessToken: "B1", RefreshToken: "S1"})
		pair, err := store.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if pair.AccessToken != "B1" || pair.RefreshToken != "S1" {
			t.Fatalf("got %+v, want B1/S1", pair)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeTests(t, NewMemoryStore())
}

func TestPairEmpty(t *testing.T) {
	if !(Pair{}).Empty() {
		t.Fatal("zero pair should be empty")
	}
	if (Pair{RefreshToken: "r"}).Empty() {
		t.Fatal("pair with refresh token should not be empty")
	}
}
