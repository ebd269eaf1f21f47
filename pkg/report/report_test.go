package report

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopscore/pkg/aggregate"
	"gopscore/pkg/score"
)

func TestUtteranceTable(t *testing.T) {
	results := []aggregate.Result{
		{UtteranceID: "utt2", Score: 1.0, NumPhones: 1, Min: 1.0, Max: 1.0, Stddev: 0.0},
		{UtteranceID: "utt1", Score: 0.0, NumPhones: 2, Min: -0.5, Max: 0.5, Stddev: 0.5},
	}

	var buf bytes.Buffer
	require.NoError(t, UtteranceTable(&buf, results))

	want := "utt1\t0.0000\t2\t-0.5000\t0.5000\t0.5000\n" +
		"utt2\t1.0000\t1\t1.0000\t1.0000\t0.0000\n"
	assert.Equal(t, want, buf.String())
}

func TestPronunciationReport(t *testing.T) {
	results := []score.Result{
		{UtteranceID: "b", GOPScore: -1.0, PronunciationScore: 80.0, NumPhones: 3, Grade: score.GradeGood},
		{UtteranceID: "a", GOPScore: 0.0, PronunciationScore: 90.0, NumPhones: 2, Grade: score.GradeExcellent},
	}

	var buf bytes.Buffer
	require.NoError(t, PronunciationReport(&buf, results))

	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "Utterance_ID\tGOP_Score\tPronunciation_Score\tNum_Phones\tGrade", lines[0])
	assert.Equal(t, "a\t0.0000\t90.00\t2\tExcellent", lines[1])
	assert.Equal(t, "b\t-1.0000\t80.00\t3\tGood", lines[2])
	assert.Equal(t, "", lines[3])
	assert.Equal(t, "# Average GOP: -0.5000", lines[4])
	assert.Equal(t, "# Average Pronunciation Score: 85.00/100", lines[5])
}

func TestPronunciationReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PronunciationReport(&buf, nil))

	// Header only, no summary block for an empty run.
	assert.Equal(t, "Utterance_ID\tGOP_Score\tPronunciation_Score\tNum_Phones\tGrade\n", buf.String())
}

func TestAverageScore(t *testing.T) {
	assert.Equal(t, 0.0, AverageScore(nil))

	results := []aggregate.Result{
		{UtteranceID: "a", Score: 1.0},
		{UtteranceID: "b", Score: 2.0},
	}
	assert.InDelta(t, 1.5, AverageScore(results), 1e-12)
}

func TestWriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	err := WriteTo(path, func(w io.Writer) error {
		_, err := w.Write([]byte("hello\n"))
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestWriteToFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	err := WriteTo(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return assert.AnError
	})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "destination must not exist after a failed write")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be cleaned up")
}

func TestWriteToUnwritableDir(t *testing.T) {
	err := WriteTo("/no/such/dir/out.txt", func(w io.Writer) error {
		return nil
	})
	assert.Error(t, err)
}
