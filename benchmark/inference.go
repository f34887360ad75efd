// Package benchmark measures the latency of inference passes.
package benchmark

import (
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/zap"

	"example.com/fieldctl/core/fuzzy"
)

const (
	minLatency = 1             // ns
	maxLatency = 1_000_000_000 // ns
	sigFigures = 3
)

// Inputs returns pseudo-random crisp inputs covering the universe of every
// antecedent variable of c.
func Inputs(c *fuzzy.Config, rng *rand.Rand) map[string]float64 {
	in := map[string]float64{}
	for _, v := range c.Variables() {
		if v.Role() != fuzzy.Antecedent {
			continue
		}
		u := v.Universe()
		in[v.Name()] = u.Min() + rng.Float64()*(u.Max()-u.Min())
	}
	return in
}

// RunInferenceBenchmark performs numPasses full inference passes (fuzzify
// plus one Compute per output) in each of numGoroutines goroutines and
// prints the latency distribution in nanoseconds to w. The merged histogram
// is returned.
func RunInferenceBenchmark(log *zap.Logger, w io.Writer, c *fuzzy.Config,
	numGoroutines, numPasses int) *hdrhistogram.Histogram {
	var mu sync.Mutex
	total := hdrhistogram.New(minLatency, maxLatency, sigFigures)
	sg := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := numGoroutines; i > 0; i-- {
		seed := uint64(i)
		go func() {
			defer wg.Done()
			hg := hdrhistogram.New(minLatency, maxLatency, sigFigures)
			rng := rand.New(rand.NewPCG(seed, 0x5eed))
			outs := c.Outputs()
			<-sg
			for j := numPasses; j > 0; j-- {
				crisp := Inputs(c, rng)
				t0 := time.Now()
				in := c.Fuzzify(crisp)
				for _, out := range outs {
					_, err := c.Compute(out, in)
					var nrf *fuzzy.NoRuleFiredWarning
					if err != nil && !errors.As(err, &nrf) {
						log.Error("inference failed", zap.String("output", out), zap.Error(err))
						return
					}
				}
				err := hg.RecordValue(max(time.Since(t0).Nanoseconds(), minLatency))
				if err != nil {
					log.Error("failed to record histogram value", zap.Error(err))
					return
				}
			}
			mu.Lock()
			defer mu.Unlock()
			total.Merge(hg)
		}()
	}
	t0 := time.Now()
	close(sg)
	wg.Wait()
	log.Info("benchmark finished",
		zap.Int("goroutines", numGoroutines),
		zap.Int("passes", numPasses),
		zap.Duration("elapsed", time.Since(t0)))
	total.PercentilesPrint(w, 1, 1.0)
	return total
}
