package gallery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/revelation/internal/embedding"
	"github.com/hyperjump/revelation/internal/errs"
)

type countingProgress struct {
	total, added, finished int
}

func (p *countingProgress) Start(total int) { p.total = total }
func (p *countingProgress) Add(n int)       { p.added += n }
func (p *countingProgress) Finish()         { p.finished++ }

func TestBuilder_Build(t *testing.T) {
	root := makeTree(t, map[string][]string{
		"beta":  {"1.png", "2.png", "3.png"},
		"alpha": {"1.png"},
		"gamma": {"1.png", "2.png"},
	})
	progress := &countingProgress{}
	idx, err := NewBuilder(embedding.NewMockProvider(8), WithBatchSize(2), WithProgress(progress)).
		Build(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	wantLabels := []string{"alpha", "beta", "beta", "beta", "gamma", "gamma"}
	if idx.Len() != len(wantLabels) {
		t.Fatalf("Len = %d", idx.Len())
	}
	for i, l := range wantLabels {
		if idx.Label(i) != l {
			t.Errorf("entry %d label = %s, want %s", i, idx.Label(i), l)
		}
	}
	if progress.total != 6 || progress.added != 6 || progress.finished != 1 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestBuilder_BatchSizeDoesNotChangeResult(t *testing.T) {
	root := makeTree(t, map[string][]string{
		"a": {"1.png", "2.png", "3.png"},
		"b": {"1.png", "2.png"},
	})
	ctx := context.Background()
	p := embedding.NewMockProvider(8)
	one, err := NewBuilder(p, WithBatchSize(1), WithConcurrency(1)).Build(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	all, err := NewBuilder(p, WithBatchSize(128), WithConcurrency(8)).Build(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if one.Len() != all.Len() {
		t.Fatalf("lengths differ: %d vs %d", one.Len(), all.Len())
	}
	for i := 0; i < one.Len(); i++ {
		if one.Label(i) != all.Label(i) {
			t.Errorf("label %d differs", i)
		}
		a, b := one.Vector(i), all.Vector(i)
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("entry %d differs at %d", i, j)
			}
		}
	}
}

func TestBuilder_FailFastOnCorruptImage(t *testing.T) {
	root := makeTree(t, map[string][]string{"a": {"1.png"}, "b": {"1.png"}})
	bad := filepath.Join(root, "b", "0_corrupt.png")
	if err := os.WriteFile(bad, []byte("definitely not a png"), 0644); err != nil {
		t.Fatal(err)
	}
	idx, err := NewBuilder(embedding.NewMockProvider(8)).Build(context.Background(), root)
	if err == nil {
		t.Fatal("expected build failure")
	}
	if idx != nil {
		t.Error("no partial gallery may be returned")
	}
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBuilder_EmptyTree(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "empty_label"), 0755); err != nil {
		t.Fatal(err)
	}
	_, err := NewBuilder(embedding.NewMockProvider(8)).Build(context.Background(), root)
	if !errors.Is(err, errs.ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestBuilder_Cancelled(t *testing.T) {
	root := makeTree(t, map[string][]string{"a": {"1.png"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBuilder(embedding.NewMockProvider(8)).Build(ctx, root); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
