package validator

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// ScriptCheck is one deferred input verification. Everything it touches is captured
// when it is created, so checks can run on any goroutine.
type ScriptCheck struct {
	Tx         *bt.Tx
	InputIndex int
	PrevOut    *bt.Output
	Flags      scriptflag.Flag
}

func (c *ScriptCheck) Run(verifier ScriptVerifier) error {
	return verifier.VerifyInput(c.Tx, c.InputIndex, c.PrevOut, c.Flags)
}

// CheckQueue runs batches of script checks on a bounded number of goroutines.
type CheckQueue struct {
	verifier ScriptVerifier
	workers  int
}

// NewCheckQueue creates a queue running at most workers checks at a time. One worker
// runs every check on the calling goroutine.
func NewCheckQueue(verifier ScriptVerifier, workers int) *CheckQueue {
	initPrometheusMetrics()

	if workers < 1 {
		workers = 1
	}

	return &CheckQueue{
		verifier: verifier,
		workers:  workers,
	}
}

func (q *CheckQueue) Workers() int {
	return q.workers
}

// Run verifies all checks and returns nil only if every one passed. After a failure,
// checks with a higher index are skipped while lower ones still run, so the error
// returned is always that of the lowest failing index, the same one a sequential run
// reports. Run waits for all in-flight checks before returning.
func (q *CheckQueue) Run(ctx context.Context, checks []*ScriptCheck) error {
	if len(checks) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		prometheusScriptCheckBatch.Observe(time.Since(start).Seconds())
		prometheusScriptChecks.Add(float64(len(checks)))
	}()

	if q.workers == 1 {
		for _, check := range checks {
			if err := check.Run(q.verifier); err != nil {
				prometheusScriptCheckFailures.Inc()
				return err
			}
		}

		return nil
	}

	var (
		failures  = make([]error, len(checks))
		firstFail = atomic.NewInt64(int64(len(checks)))
		g         errgroup.Group
	)

	g.SetLimit(q.workers)

	for i, check := range checks {
		if ctx.Err() != nil || int64(i) > firstFail.Load() {
			break
		}

		g.Go(func() error {
			if int64(i) > firstFail.Load() {
				return nil
			}

			if err := check.Run(q.verifier); err != nil {
				failures[i] = err

				for {
					current := firstFail.Load()
					if int64(i) >= current || firstFail.CompareAndSwap(current, int64(i)) {
						break
					}
				}
			}

			return nil
		})
	}

	_ = g.Wait()

	if idx := firstFail.Load(); idx < int64(len(checks)) {
		prometheusScriptCheckFailures.Inc()
		return failures[idx]
	}

	if ctx.Err() != nil {
		return errors.NewContextCanceledError("script checks canceled", ctx.Err())
	}

	return nil
}
