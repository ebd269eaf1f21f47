// Package pipeline chains the scoring stages: read phone tables, aggregate
// per utterance, normalize to quality scores, and report. Utterances are
// independent, so aggregation and normalization fan out across a bounded
// worker pool with a final sort-by-id merge.
package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gopscore/pkg/aggregate"
	"gopscore/pkg/config"
	"gopscore/pkg/gop"
	"gopscore/pkg/messaging"
	"gopscore/pkg/metrics"
	"gopscore/pkg/score"
)

// Publisher delivers scored utterances to an external consumer. Satisfied
// by messaging.AMQPClient.
type Publisher interface {
	PublishResult(runID string, result score.Result) error
}

// Pipeline runs one scoring batch. Each run carries its own id so log
// lines and published messages from concurrent invocations stay
// attributable.
type Pipeline struct {
	logger    *logrus.Logger
	cfg       *config.Config
	runID     string
	publisher Publisher
}

// New builds a Pipeline from validated configuration.
func New(logger *logrus.Logger, cfg *config.Config) *Pipeline {
	return &Pipeline{
		logger: logger,
		cfg:    cfg,
		runID:  uuid.NewString(),
	}
}

// RunID returns this run's unique id.
func (p *Pipeline) RunID() string {
	return p.runID
}

// WithPublisher attaches an optional result publisher.
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	p.publisher = pub
	return p
}

// ReadGroups reads the input table in the configured format.
func (p *Pipeline) ReadGroups(path string) (*gop.GroupSet, error) {
	var (
		set *gop.GroupSet
		err error
	)
	switch p.cfg.Input.Format {
	case "post":
		set, err = gop.ReadPosteriorFile(path)
	default:
		set, err = gop.ReadFlatFile(path)
	}
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"run_id":     p.runID,
		"input":      path,
		"format":     p.cfg.Input.Format,
		"utterances": set.Len(),
	}).Info("Read phone score table")

	return set, nil
}

// Aggregate reduces every utterance group under the configured policy.
func (p *Pipeline) Aggregate(set *gop.GroupSet) ([]aggregate.Result, error) {
	method, err := p.cfg.Method()
	if err != nil {
		return nil, err
	}

	agg := aggregate.New(p.logger.WithField("run_id", p.runID), aggregate.Options{
		Method:      method,
		SkipSilence: p.cfg.Aggregate.SkipSilence,
	})

	return agg.AggregateSet(set)
}

// Score normalizes aggregates across the worker pool and returns the
// terminal records in utterance-id order.
func (p *Pipeline) Score(aggregates []aggregate.Result) []score.Result {
	mapper := p.cfg.Mapper()

	workers := p.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(aggregates) {
		workers = len(aggregates)
	}

	results := make([]score.Result, len(aggregates))
	if workers <= 1 {
		for i, agg := range aggregates {
			results[i] = mapper.Normalize(agg)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup

		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()
				for i := range jobs {
					results[i] = mapper.Normalize(aggregates[i])
				}
			}()
		}
		for i := range aggregates {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	}

	sort.Slice(results, func(i, j int) bool { return results[i].UtteranceID < results[j].UtteranceID })

	for _, r := range results {
		metrics.ObserveScore(r.PronunciationScore)
	}

	return results
}

// Run executes the full batch: read, aggregate, score, publish.
func (p *Pipeline) Run(inputPath string) ([]score.Result, error) {
	start := time.Now()

	set, err := p.ReadGroups(inputPath)
	if err != nil {
		return nil, err
	}

	aggregates, err := p.Aggregate(set)
	if err != nil {
		return nil, err
	}

	results := p.Score(aggregates)
	p.Publish(results)

	metrics.ObserveRun(start)
	p.logger.WithFields(logrus.Fields{
		"run_id":     p.runID,
		"utterances": len(results),
		"duration":   time.Since(start).String(),
	}).Info("Scoring run complete")

	return results, nil
}

// Publish sends results to the attached publisher, if any. Publish
// failures are warnings; a batch run never fails on delivery.
func (p *Pipeline) Publish(results []score.Result) {
	if p.publisher == nil {
		return
	}

	for _, r := range results {
		if err := p.publisher.PublishResult(p.runID, r); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"run_id":       p.runID,
				"utterance_id": r.UtteranceID,
			}).Warn("Failed to publish scored utterance")
		}
	}
}

// NewPublisher connects the AMQP result publisher when messaging is
// configured; returns nil (disabled) otherwise.
func NewPublisher(logger *logrus.Logger, cfg *config.Config) *messaging.AMQPClient {
	if cfg.Messaging.AMQPURL == "" || cfg.Messaging.QueueName == "" {
		return nil
	}

	client := messaging.NewAMQPClient(logger, messaging.AMQPConfig{
		URL:       cfg.Messaging.AMQPURL,
		QueueName: cfg.Messaging.QueueName,
	})
	if err := client.Connect(); err != nil {
		logger.WithError(err).Warn("AMQP publisher disabled")
		return nil
	}
	return client
}
