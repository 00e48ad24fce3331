package registry

import (
	"context"
	"os"
	"reflect"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "tiwaz-registry-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSetAndGetSelected(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetSelected(ctx, []string{"b.txt", "a.txt"}); err != nil {
		t.Fatalf("SetSelected: %v", err)
	}
	got, err := db.Selected(ctx)
	if err != nil {
		t.Fatalf("Selected: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a.txt", "b.txt"}) {
		t.Errorf("Selected = %v", got)
	}
}

func TestSetSelectedReplacesAll(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.SetSelected(ctx, []string{"a.txt", "b.txt"})
	if err := db.SetSelected(ctx, []string{"c.txt"}); err != nil {
		t.Fatal(err)
	}
	got, _ := db.Selected(ctx)
	if !reflect.DeepEqual(got, []string{"c.txt"}) {
		t.Errorf("Selected = %v, want [c.txt]", got)
	}
}

func TestSelectAndDeselect(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Select(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	// Selecting again is a no-op, not an error.
	if err := db.Select(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	got, _ := db.Selected(ctx)
	if len(got) != 1 {
		t.Fatalf("Selected = %v", got)
	}

	if err := db.Deselect(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	if err := db.Deselect(ctx, "a.txt"); err != nil {
		t.Fatal(err) // deselecting an absent name is a no-op
	}
	got, _ = db.Selected(ctx)
	if len(got) != 0 {
		t.Fatalf("Selected = %v, want empty", got)
	}
}

func TestListAllJoinsVectorCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.SetSelected(ctx, []string{"a.txt", "b.txt"})
	counts := map[string]int{"a.txt": 10, "orphan.txt": 3}

	sources, err := db.ListAll(ctx, counts)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	want := []Source{
		{Name: "a.txt", Selected: true, VectorCount: 10},
		{Name: "b.txt", Selected: true, VectorCount: 0},
		{Name: "orphan.txt", Selected: false, VectorCount: 3},
	}
	if !reflect.DeepEqual(sources, want) {
		t.Errorf("ListAll = %+v, want %+v", sources, want)
	}
}
