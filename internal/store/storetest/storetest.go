// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"reflect"
	"testing"

	"github.com/loykin/drwatch/internal/store"
)

// Factory opens a fresh, empty store with the given logical name.
type Factory func(t *testing.T, name string) store.Store

// Run exercises the store contract against backends produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyReads", func(t *testing.T) {
		s := newStore(t, "empty")
		recs, err := s.ReadAll(ctx)
		if err != nil {
			t.Fatalf("read all: %v", err)
		}
		if len(recs) != 0 {
			t.Fatalf("expected no records, got %v", recs)
		}
		blob, err := s.ReadBlob(ctx)
		if err != nil {
			t.Fatalf("read blob: %v", err)
		}
		if blob != "" {
			t.Fatalf("expected empty blob, got %q", blob)
		}
	})

	t.Run("AppendKeepsOrder", func(t *testing.T) {
		s := newStore(t, "order")
		for _, r := range []string{"r1", "r2", "r3"} {
			if err := s.AppendLine(ctx, r); err != nil {
				t.Fatalf("append %s: %v", r, err)
			}
		}
		assertRecords(t, s, []string{"r1", "r2", "r3"})
		blob, err := s.ReadBlob(ctx)
		if err != nil {
			t.Fatalf("read blob: %v", err)
		}
		if blob != "r1\nr2\nr3" {
			t.Fatalf("unexpected blob %q", blob)
		}
	})

	t.Run("BlobTrimsTrailingWhitespace", func(t *testing.T) {
		s := newStore(t, "trim")
		if err := s.AppendLine(ctx, "hello world  "); err != nil {
			t.Fatalf("append: %v", err)
		}
		blob, err := s.ReadBlob(ctx)
		if err != nil {
			t.Fatalf("read blob: %v", err)
		}
		if blob != "hello world" {
			t.Fatalf("unexpected blob %q", blob)
		}
	})

	t.Run("BlobTrimsUnicodeSpace", func(t *testing.T) {
		s := newStore(t, "unicode-space")
		if err := s.AppendLine(ctx, "data\u00a0\u2003"); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := s.AppendLine(ctx, "\v\f\u00a0"); err != nil {
			t.Fatalf("append: %v", err)
		}
		blob, err := s.ReadBlob(ctx)
		if err != nil {
			t.Fatalf("read blob: %v", err)
		}
		if blob != "data" {
			t.Fatalf("unexpected blob %q", blob)
		}
	})

	t.Run("ClearEmpties", func(t *testing.T) {
		s := newStore(t, "clear")
		if err := s.AppendLine(ctx, "data"); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := s.Clear(ctx); err != nil {
			t.Fatalf("clear: %v", err)
		}
		assertRecords(t, s, []string{})
	})

	t.Run("WriteAllOverwrites", func(t *testing.T) {
		s := newStore(t, "overwrite")
		for _, r := range []string{"a", "b", "c"} {
			if err := s.AppendLine(ctx, r); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		if err := s.WriteAll(ctx, []string{"a", "b"}); err != nil {
			t.Fatalf("write all: %v", err)
		}
		assertRecords(t, s, []string{"a", "b"})
		if err := s.WriteAll(ctx, nil); err != nil {
			t.Fatalf("write all empty: %v", err)
		}
		assertRecords(t, s, []string{})
		if err := s.AppendLine(ctx, "d"); err != nil {
			t.Fatalf("append after rewrite: %v", err)
		}
		assertRecords(t, s, []string{"d"})
	})

	t.Run("StoresAreIsolated", func(t *testing.T) {
		a := newStore(t, "iso-a")
		b := newStore(t, "iso-b")
		if err := a.AppendLine(ctx, "only-a"); err != nil {
			t.Fatalf("append: %v", err)
		}
		assertRecords(t, b, []string{})
		assertRecords(t, a, []string{"only-a"})
	})
}

func assertRecords(t *testing.T, s store.Store, want []string) {
	t.Helper()
	got, err := s.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("records mismatch: want %q got %q", want, got)
	}
}
