// Package phones holds the phone symbol table and the silence-phone
// classification used when aggregating pronunciation scores.
package phones

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopscore/pkg/errors"
)

// Unknown is the name reported for phone ids absent from the symbol table.
const Unknown = "UNK"

// SilenceIDs is the default set of non-scored phone classes. Ids 0-2 are
// the silence/noise phones in the upstream recipe and carry no
// pronunciation signal.
var SilenceIDs = map[int]bool{0: true, 1: true, 2: true}

// IsSilence reports whether the given phone id belongs to a silence class.
func IsSilence(id int) bool {
	return SilenceIDs[id]
}

// Table maps phone ids to phone names.
type Table struct {
	names map[int]string
}

// Name returns the phone name for id, or Unknown when the id is not mapped.
func (t *Table) Name(id int) string {
	if t == nil {
		return Unknown
	}
	if name, ok := t.names[id]; ok {
		return name
	}
	return Unknown
}

// Len returns the number of mapped phones.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// LoadTable reads a whitespace-separated "phone_name phone_id" symbol table.
// Lines with fewer than two fields are skipped; a phone id that fails to
// parse as an integer is skipped as well, matching the tolerant handling of
// symbol tables upstream.
func LoadTable(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open phone table", path, err)
	}
	defer file.Close()

	table := &Table{names: make(map[int]string)}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		table.names[id] = parts[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIOError("read phone table", path, err)
	}

	return table, nil
}

// FindTable resolves the phone symbol table beside a lang directory,
// preferring phones-pure.txt over phones.txt. Returns an empty string when
// neither exists.
func FindTable(langDir string) string {
	for _, name := range []string{"phones-pure.txt", "phones.txt"} {
		path := filepath.Join(langDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
