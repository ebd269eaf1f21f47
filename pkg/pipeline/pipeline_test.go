package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopscore/pkg/aggregate"
	"gopscore/pkg/config"
	"gopscore/pkg/report"
	"gopscore/pkg/score"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workers = 2
	return cfg
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "phone_scores.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

type capturePublisher struct {
	mu      sync.Mutex
	results []score.Result
	fail    bool
}

func (c *capturePublisher) PublishResult(runID string, result score.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return assert.AnError
	}
	c.results = append(c.results, result)
	return nil
}

func TestRunEndToEnd(t *testing.T) {
	input := writeInput(t, "utt1.0\t0.5\nutt1.1\t-0.5\nutt2.0\t1.0\n")

	p := New(testLogger(), testConfig())
	results, err := p.Run(input)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "utt1", results[0].UtteranceID)
	assert.Equal(t, 0.0, results[0].GOPScore)
	assert.Equal(t, 90.0, results[0].PronunciationScore)
	assert.Equal(t, score.GradeExcellent, results[0].Grade)
	assert.Equal(t, 2, results[0].NumPhones)

	assert.Equal(t, "utt2", results[1].UtteranceID)
	assert.Equal(t, 1.0, results[1].GOPScore)
	assert.Equal(t, 92.0, results[1].PronunciationScore)
}

func TestAggregateTableOutput(t *testing.T) {
	input := writeInput(t, "utt1.0\t0.5\nutt1.1\t-0.5\nutt2.0\t1.0\n")

	p := New(testLogger(), testConfig())
	set, err := p.ReadGroups(input)
	require.NoError(t, err)

	aggregates, err := p.Aggregate(set)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.UtteranceTable(&buf, aggregates))

	want := "utt1\t0.0000\t2\t-0.5000\t0.5000\t0.5000\n" +
		"utt2\t1.0000\t1\t1.0000\t1.0000\t0.0000\n"
	assert.Equal(t, want, buf.String())
}

func TestRunInputOrderIndependence(t *testing.T) {
	forward := writeInput(t, "utt1.0\t0.5\nutt1.1\t-0.5\nutt2.0\t1.0\n")
	shuffled := writeInput(t, "utt2.0\t1.0\nutt1.1\t-0.5\nutt1.0\t0.5\n")

	a, err := New(testLogger(), testConfig()).Run(forward)
	require.NoError(t, err)
	b, err := New(testLogger(), testConfig()).Run(shuffled)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestRunPosteriorFormatWithSilence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gop_post.txt")
	content := "utt1 [ 0 1.0 ] [ 5 -2.0 ] [ 1 3.0 ]\nsilent [ 0 0.5 ] [ 2 0.5 ]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := testConfig()
	cfg.Input.Format = "post"

	results, err := New(testLogger(), cfg).Run(path)
	require.NoError(t, err)

	// "silent" has only silence phones and is dropped; utt1 keeps only
	// the one non-silence phone.
	require.Len(t, results, 1)
	assert.Equal(t, "utt1", results[0].UtteranceID)
	assert.Equal(t, -2.0, results[0].GOPScore)
	assert.Equal(t, 1, results[0].NumPhones)
}

func TestRunParseFailureIsFatal(t *testing.T) {
	input := writeInput(t, "utt1.0\t0.5\nutt1.1\tbroken\n")

	_, err := New(testLogger(), testConfig()).Run(input)
	assert.Error(t, err)
}

func TestRunMissingInputIsFatal(t *testing.T) {
	_, err := New(testLogger(), testConfig()).Run(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestScoreWithBaseline(t *testing.T) {
	cfg := testConfig()
	baseline := 1.0
	cfg.Scoring.Baseline = &baseline

	p := New(testLogger(), cfg)
	results := p.Score([]aggregate.Result{
		{UtteranceID: "utt1", Score: 1.0, NumPhones: 3},
		{UtteranceID: "utt2", Score: -1.0, NumPhones: 3},
	})

	assert.Equal(t, 100.0, results[0].PronunciationScore)
	assert.Equal(t, 90.0, results[1].PronunciationScore)
}

func TestScoreManyUtterancesParallel(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 8

	aggregates := make([]aggregate.Result, 100)
	for i := range aggregates {
		aggregates[i] = aggregate.Result{
			UtteranceID: fmt.Sprintf("utt%03d", i),
			Score:       float64(i%10) - 5,
			NumPhones:   1,
		}
	}

	results := New(testLogger(), cfg).Score(aggregates)

	require.Len(t, results, 100)
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1].UtteranceID, results[i].UtteranceID)
	}
}

func TestPublish(t *testing.T) {
	pub := &capturePublisher{}
	input := writeInput(t, "utt1.0\t0.5\nutt2.0\t-1.0\n")

	p := New(testLogger(), testConfig()).WithPublisher(pub)
	results, err := p.Run(input)
	require.NoError(t, err)

	assert.Equal(t, results, pub.results)
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	pub := &capturePublisher{fail: true}
	input := writeInput(t, "utt1.0\t0.5\n")

	_, err := New(testLogger(), testConfig()).WithPublisher(pub).Run(input)
	assert.NoError(t, err)
}

func TestNewPublisherDisabledWithoutConfig(t *testing.T) {
	assert.Nil(t, NewPublisher(testLogger(), testConfig()))
}

func TestRunIDsAreUnique(t *testing.T) {
	cfg := testConfig()
	a, b := New(testLogger(), cfg), New(testLogger(), cfg)
	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.NotEmpty(t, a.RunID())
}
