package report

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"gopscore/pkg/aggregate"
	"gopscore/pkg/errors"
)

// ReadUtteranceTable parses an utterance score table back into aggregates,
// for scoring a table produced by an earlier aggregation run. Only the
// first three columns (id, score, phone count) are consumed; summary
// columns are ignored. Lines with fewer than two fields are skipped; a
// numeric field that fails to parse is fatal.
func ReadUtteranceTable(r io.Reader) ([]aggregate.Result, error) {
	var results []aggregate.Result

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.Split(strings.TrimSpace(scanner.Text()), "\t")
		if len(parts) < 2 {
			continue
		}

		score, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, errors.NewParseError("utterance score", parts[1], err).
				WithField("utterance_id", parts[0])
		}

		numPhones := 0
		if len(parts) > 2 {
			numPhones, err = strconv.Atoi(parts[2])
			if err != nil {
				return nil, errors.NewParseError("phone count", parts[2], err).
					WithField("utterance_id", parts[0])
			}
		}

		results = append(results, aggregate.Result{
			UtteranceID: parts[0],
			Score:       score,
			NumPhones:   numPhones,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading utterance score table")
	}

	return results, nil
}

// ReadUtteranceTableFile opens and parses an utterance score table.
func ReadUtteranceTableFile(path string) ([]aggregate.Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open utterance score file", path, err)
	}
	defer file.Close()

	return ReadUtteranceTable(file)
}
