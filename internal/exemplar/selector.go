package exemplar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/acuity/internal/acuity"
	"github.com/linnemanlabs/acuity/internal/casebank"
	"github.com/linnemanlabs/acuity/internal/classify"
	"github.com/linnemanlabs/acuity/internal/specialize"
)

// SelectorOptions tune a Selector.
type SelectorOptions struct {
	// Weights are the safety metric penalties used to score candidates.
	Weights acuity.Weights

	// Concurrency bounds parallel classifier calls during candidate
	// evaluation. Values below 1 mean sequential.
	Concurrency int

	// RateLimit paces classifier calls (calls per second). Zero means
	// unpaced.
	RateLimit float64
}

// Selector compiles exemplar sets by bootstrapping against the
// classifier: every candidate case is classified zero-shot and scored
// with the safety metric, and the top scorers become the set.
type Selector struct {
	classifier classify.Classifier
	weights    acuity.Weights
	limiter    *rate.Limiter
	parallel   int
	logger     log.Logger
}

// NewSelector creates a selector around the given classifier.
func NewSelector(classifier classify.Classifier, logger log.Logger, opts SelectorOptions) *Selector {
	if logger == nil {
		logger = log.Nop()
	}
	weights := opts.Weights
	if weights == (acuity.Weights{}) {
		weights = acuity.DefaultWeights()
	}
	parallel := opts.Concurrency
	if parallel < 1 {
		parallel = 1
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Selector{
		classifier: classifier,
		weights:    weights,
		limiter:    limiter,
		parallel:   parallel,
		logger:     logger,
	}
}

// outcome is the evaluation result for one candidate. failed marks
// candidates whose classifier call errored twice; those are
// non-selectable rather than merely low-scoring.
type outcome struct {
	score  float64
	failed bool
}

// Compile builds a new exemplar Set for the profile from the bank's
// candidate cases. It may invoke the classifier many times and honors
// ctx cancellation mid-run, returning an error and discarding partial
// results without touching any previously compiled set.
func (s *Selector) Compile(ctx context.Context, profile *specialize.Profile, bank *casebank.Bank, maxBootstrapped, maxLabeled int) (*Set, error) {
	// the general role trains on every case regardless of tag
	candidates := bank.ForSpecialization(profile.ID)
	if profile.ID == specialize.GeneralID {
		candidates = bank.All()
	}
	if len(candidates) < profile.MinTrainingCases {
		return nil, &InsufficientDataError{
			Specialization: profile.ID,
			Have:           len(candidates),
			Need:           profile.MinTrainingCases,
		}
	}

	L := s.logger.With("specialization", profile.ID)
	L.Info(ctx, "compiling exemplar set",
		"candidates", len(candidates),
		"max_bootstrapped", maxBootstrapped,
		"max_labeled", maxLabeled,
	)

	outcomes := make([]outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i := range candidates {
		g.Go(func() error {
			out, err := s.evaluate(gctx, &candidates[i])
			if err != nil {
				// only context errors abort the run
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", profile.ID, err)
	}

	// rank by score descending; stable sort keeps ties in input order
	// so compilation is deterministic given a deterministic classifier
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return outcomes[order[a]].score > outcomes[order[b]].score
	})

	var pool []casebank.LabeledCase
	for _, idx := range order {
		if len(pool) >= maxBootstrapped {
			break
		}
		if outcomes[idx].failed {
			continue
		}
		pool = append(pool, candidates[idx])
	}

	exemplars := pool
	if len(exemplars) > maxLabeled {
		exemplars = exemplars[:maxLabeled]
	}

	set := &Set{
		Specialization: profile.ID,
		Exemplars:      append([]casebank.LabeledCase(nil), exemplars...),
		BootstrapPool:  append([]casebank.LabeledCase(nil), pool...),
		CompiledAt:     time.Now(),
		Version:        ulid.Make().String(),
	}

	L.Info(ctx, "compiled exemplar set",
		"version", set.Version,
		"pool", len(set.BootstrapPool),
		"exemplars", len(set.Exemplars),
	)
	return set, nil
}

// evaluate classifies one candidate zero-shot and scores the result.
// A failed call is retried once; a second failure marks the candidate
// non-selectable instead of aborting the compilation.
func (s *Selector) evaluate(ctx context.Context, c *casebank.LabeledCase) (outcome, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return outcome{}, err
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return outcome{}, err
			}
		}

		decision, err := s.classifier.Classify(ctx, &classify.Request{Symptoms: c.Symptoms})
		if err != nil {
			if ctx.Err() != nil {
				return outcome{}, ctx.Err()
			}
			s.logger.Warn(ctx, "bootstrap classification failed",
				"case", c.ID,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}
		return outcome{score: s.weights.Score(c.GoldLevel, decision.Level)}, nil
	}
	return outcome{score: 0.0, failed: true}, nil
}
