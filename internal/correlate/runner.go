package correlate

import (
	"context"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"opfinder/internal/config"
	"opfinder/internal/result"
)

// Runner probes top-level signatures in parallel. Results are committed in
// configuration order, so output does not depend on scheduling.
type Runner struct {
	finder  *Finder
	workers int
}

// NewRunner returns a runner using at most workers goroutines. workers <= 0
// selects runtime.NumCPU.
func NewRunner(f *Finder, workers int) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{finder: f, workers: workers}
}

// Run probes every signature and returns one report per signature, in
// configuration order.
func (r *Runner) Run(ctx context.Context, sigs []config.Signature) ([]Report, error) {
	reports := make([]Report, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range sigs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = r.finder.Probe(&sigs[i])
			reports[i].Index = i
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Debugf("correlate: probed %d signatures with %d workers", len(sigs), r.workers)
	return reports, nil
}

// Commit adds every finding to res in report order. The first value
// recorded for a name is kept.
func Commit(reports []Report, res *result.Map) {
	for _, rep := range reports {
		for _, fd := range rep.Findings {
			if fd.Found {
				res.Add(fd.Name, fd.Value)
			} else {
				res.AddNotFound(fd.Name)
			}
		}
	}
}

// Analyze runs cfg's signatures against the finder and returns the result
// map with the per-signature reports.
func Analyze(ctx context.Context, f *Finder, cfg *config.Config, workers int) (*result.Map, []Report, error) {
	reports, err := NewRunner(f, workers).Run(ctx, cfg.Signatures)
	if err != nil {
		return nil, nil, err
	}
	res := result.New()
	Commit(reports, res)
	return res, reports, nil
}
