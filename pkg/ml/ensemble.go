package ml

import (
	"context"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const leafNode = -1

// treeRand returns the random source of tree i. Seeding per tree keeps a
// forest identical regardless of how many workers build it.
func treeRand(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)+1))
}

func workerLimit(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}

// buildEach calls build for every tree index on a bounded worker group.
func buildEach(ctx context.Context, n, workers int, build func(i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(workers))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return build(i)
		})
	}
	return g.Wait()
}
