// Package report formats scoring results as tab-separated tables and
// writes them atomically to a file or to standard output.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopscore/pkg/aggregate"
	"gopscore/pkg/errors"
	"gopscore/pkg/score"
)

// UtteranceTable writes one line per aggregate in utterance-id order:
// utterance id, aggregate score, phone count, min, max, stddev.
func UtteranceTable(w io.Writer, results []aggregate.Result) error {
	for _, r := range sortedAggregates(results) {
		_, err := fmt.Fprintf(w, "%s\t%.4f\t%d\t%.4f\t%.4f\t%.4f\n",
			r.UtteranceID, r.Score, r.NumPhones, r.Min, r.Max, r.Stddev)
		if err != nil {
			return errors.Wrap(err, "writing utterance table")
		}
	}
	return nil
}

// PronunciationReport writes the graded report: a header, one row per
// utterance in id order, and (when any rows exist) a trailing summary
// block with the across-run averages.
func PronunciationReport(w io.Writer, results []score.Result) error {
	if _, err := fmt.Fprintln(w, "Utterance_ID\tGOP_Score\tPronunciation_Score\tNum_Phones\tGrade"); err != nil {
		return errors.Wrap(err, "writing report header")
	}

	sorted := sortedScores(results)
	for _, r := range sorted {
		_, err := fmt.Fprintf(w, "%s\t%.4f\t%.2f\t%d\t%s\n",
			r.UtteranceID, r.GOPScore, r.PronunciationScore, r.NumPhones, r.Grade)
		if err != nil {
			return errors.Wrap(err, "writing report row")
		}
	}

	if len(sorted) > 0 {
		avgGOP, avgPron := Averages(sorted)
		if _, err := fmt.Fprintf(w, "\n# Average GOP: %.4f\n# Average Pronunciation Score: %.2f/100\n", avgGOP, avgPron); err != nil {
			return errors.Wrap(err, "writing report summary")
		}
	}

	return nil
}

// AverageScore returns the mean aggregate score across utterances, or zero
// for an empty run.
func AverageScore(results []aggregate.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}

// Averages returns the across-run means of the raw GOP aggregate and the
// pronunciation score.
func Averages(results []score.Result) (avgGOP, avgPron float64) {
	if len(results) == 0 {
		return 0, 0
	}
	for _, r := range results {
		avgGOP += r.GOPScore
		avgPron += r.PronunciationScore
	}
	n := float64(len(results))
	return avgGOP / n, avgPron / n
}

// WriteTo runs the write function against the chosen destination. An empty
// path or "-" buffers to standard output; a file path goes through a
// temporary file in the same directory renamed into place on success, so a
// late failure never leaves a truncated report behind.
func WriteTo(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		buf := bufio.NewWriter(os.Stdout)
		if err := write(buf); err != nil {
			return err
		}
		if err := buf.Flush(); err != nil {
			return errors.NewIOError("write", "stdout", err)
		}
		return nil
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.NewIOError("create temp file in", dir, err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("close", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("rename to", path, err)
	}

	return nil
}

func sortedAggregates(results []aggregate.Result) []aggregate.Result {
	sorted := make([]aggregate.Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UtteranceID < sorted[j].UtteranceID })
	return sorted
}

func sortedScores(results []score.Result) []score.Result {
	sorted := make([]score.Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UtteranceID < sorted[j].UtteranceID })
	return sorted
}
