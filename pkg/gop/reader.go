// Package gop reads phone-level goodness-of-pronunciation tables and groups
// them by utterance for downstream aggregation.
package gop

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopscore/pkg/errors"
	"gopscore/pkg/metrics"
)

// PhoneScore is one phone-level record from an input table. PhoneID is only
// meaningful when HasPhoneID is set; the flat format does not carry ids.
type PhoneScore struct {
	Key        string
	Value      float64
	PhoneID    int
	HasPhoneID bool
}

// UtteranceGroup collects the phone values contributed to one utterance.
// PhoneIDs is parallel to Values when the source format carries phone ids,
// and nil otherwise.
type UtteranceGroup struct {
	ID       string
	Values   []float64
	PhoneIDs []int
}

// GroupSet is the utterance-id-keyed collection built by the readers.
// Insertion order is not preserved; callers iterate in sorted id order via
// SortedIDs so output ordering is decided once, at write time.
type GroupSet struct {
	groups map[string]*UtteranceGroup
}

// NewGroupSet returns an empty GroupSet.
func NewGroupSet() *GroupSet {
	return &GroupSet{groups: make(map[string]*UtteranceGroup)}
}

// Add appends a phone value without a phone id to the utterance's group.
func (s *GroupSet) Add(utteranceID string, value float64) {
	group, ok := s.groups[utteranceID]
	if !ok {
		group = &UtteranceGroup{ID: utteranceID}
		s.groups[utteranceID] = group
	}
	group.Values = append(group.Values, value)
}

// AddWithPhone appends a (phone id, value) pair to the utterance's group.
func (s *GroupSet) AddWithPhone(utteranceID string, phoneID int, value float64) {
	group, ok := s.groups[utteranceID]
	if !ok {
		group = &UtteranceGroup{ID: utteranceID}
		s.groups[utteranceID] = group
	}
	group.Values = append(group.Values, value)
	group.PhoneIDs = append(group.PhoneIDs, phoneID)
}

// Get returns the group for an utterance id, or nil.
func (s *GroupSet) Get(utteranceID string) *UtteranceGroup {
	return s.groups[utteranceID]
}

// Len returns the number of utterance groups.
func (s *GroupSet) Len() int {
	return len(s.groups)
}

// SortedIDs returns all utterance ids in lexicographic order.
func (s *GroupSet) SortedIDs() []string {
	ids := make([]string, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UtteranceID recovers the utterance id from a phone key by removing the
// last dot-delimited segment ("utt1.3" yields "utt1"). A key without a dot
// yields the empty string.
func UtteranceID(phoneKey string) string {
	idx := strings.LastIndex(phoneKey, ".")
	if idx < 0 {
		return ""
	}
	return phoneKey[:idx]
}

// ParseFlat reads the flat phone score format: one record per line,
// tab-separated "key value [extra...]" where key is
// "<utterance_id>.<phone_index>". Lines with fewer than two fields are
// skipped; a value that fails to parse as a float is fatal for the run.
func ParseFlat(r io.Reader) (*GroupSet, error) {
	set := NewGroupSet()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.Split(strings.TrimSpace(scanner.Text()), "\t")
		if len(parts) < 2 {
			metrics.SkipLine("short_line")
			continue
		}

		value, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, errors.NewParseError("phone score", parts[1], err).
				WithField("phone_key", parts[0])
		}

		set.Add(UtteranceID(parts[0]), value)
		metrics.AddRecords(1)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading phone score table")
	}

	return set, nil
}

// ParsePosterior reads the text posterior format emitted by the upstream
// toolchain: "utterance_id [ phone_id value ] [ phone_id value ] ...".
// Tool log lines and lines with fewer than two tokens are skipped, and so
// is any pair whose numeric halves fail to parse; the posterior table is
// produced mechanically upstream, so malformed pairs are noise rather than
// a correctness signal.
func ParsePosterior(r io.Reader) (*GroupSet, error) {
	set := NewGroupSet()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.Contains(line, "LOG") || strings.Contains(line, "Done") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			metrics.SkipLine("short_line")
			continue
		}

		utteranceID := parts[0]
		for _, pair := range splitPairs(parts[1:]) {
			set.AddWithPhone(utteranceID, pair.phoneID, pair.value)
			metrics.AddRecords(1)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading posterior table")
	}

	return set, nil
}

type postPair struct {
	phoneID int
	value   float64
}

// splitPairs extracts the "[ id value ]" pairs from tokenized posterior
// entries, tolerating both "[ 1 0.5 ]" and the compact "[1 0.5]" spellings.
func splitPairs(tokens []string) []postPair {
	var pairs []postPair

	i := 0
	for i < len(tokens) {
		if !strings.HasPrefix(tokens[i], "[") {
			i++
			continue
		}

		idToken := strings.TrimPrefix(tokens[i], "[")
		i++
		if idToken == "" {
			if i >= len(tokens) {
				break
			}
			idToken = tokens[i]
			i++
		}
		if i >= len(tokens) {
			break
		}
		valueToken := strings.TrimSuffix(tokens[i], "]")
		i++

		phoneID, idErr := strconv.Atoi(idToken)
		value, valErr := strconv.ParseFloat(valueToken, 64)
		if idErr != nil || valErr != nil {
			continue
		}
		pairs = append(pairs, postPair{phoneID: phoneID, value: value})
	}

	return pairs
}

// ReadFlatFile opens and parses a flat phone score file.
func ReadFlatFile(path string) (*GroupSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open phone score file", path, err)
	}
	defer file.Close()

	return ParseFlat(file)
}

// ReadPosteriorFile opens and parses a text posterior file.
func ReadPosteriorFile(path string) (*GroupSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open posterior file", path, err)
	}
	defer file.Close()

	return ParsePosterior(file)
}

// ReadScript resolves the archive path from the first line of a Kaldi
// script (.scp) file, stripping the "ark:" prefix. An empty or malformed
// script is a fatal input error.
func ReadScript(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.NewIOError("open scp file", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return "", errors.New("empty scp file").WithField("path", path)
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) < 2 {
		return "", errors.NewMalformedRecord("scp entry", scanner.Text()).WithField("path", path)
	}

	return strings.TrimPrefix(parts[1], "ark:"), nil
}
