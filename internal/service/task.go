package service

import (
	"context"

	"github.com/hyperjump/revelation/internal/ranking"
)

type taskResult struct {
	results []ranking.Result
	err     error
}

// task is one unit of request-time compute with its own result channel.
type task struct {
	fn   func(context.Context, int) ([]ranking.Result, error)
	k    int
	done chan taskResult
}

func runTask(ctx context.Context, t *task) error {
	results, err := t.fn(ctx, t.k)
	t.done <- taskResult{results: results, err: err}
	return err
}
