package dedupe

import (
	"context"
	"runtime"
	"sync"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

// minParallelBatch is the batch size below which CheckAll stays on one goroutine.
const minParallelBatch = 64

type checkJob struct {
	index int
	tx    model.ParsedTransaction
}

// CheckAll scores every transaction against existing on a pool of workers.
// Results are in input order. It stops early with ctx.Err() when ctx is done.
func (d *Detector) CheckAll(ctx context.Context, txs []model.ParsedTransaction, existing []model.ExistingTransaction, workers int) ([]model.DuplicateStatus, error) {
	idx := NewIndex(existing)
	out := make([]model.DuplicateStatus, len(txs))

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if len(txs) < minParallelBatch || workers == 1 {
		for i, tx := range txs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = d.CheckIndex(tx, idx)
		}
		return out, nil
	}

	jobs := make(chan checkJob, workers*4)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				// each worker writes only its own slots
				out[job.index] = d.CheckIndex(job.tx, idx)
			}
		}()
	}

	var err error
feed:
	for i, tx := range txs {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- checkJob{index: i, tx: tx}:
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return out, nil
}
