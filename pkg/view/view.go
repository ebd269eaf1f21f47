// Package view pretty-prints phone-level GOP tables with phone names and
// per-phone quality labels for interactive inspection.
package view

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"gopscore/pkg/errors"
	"gopscore/pkg/gop"
	"gopscore/pkg/phones"
	"gopscore/pkg/score"
)

const rule = 70

// Viewer renders posterior tables to a writer.
type Viewer struct {
	logger *logrus.Logger
	table  *phones.Table
	out    io.Writer
}

// New creates a Viewer. A nil phone table renders every phone as UNK.
func New(logger *logrus.Logger, table *phones.Table, out io.Writer) *Viewer {
	return &Viewer{logger: logger, table: table, out: out}
}

// ViewScript resolves the archive behind a Kaldi .scp file, converts it to
// text form with the external copy-post tool, and renders it.
func (v *Viewer) ViewScript(scpPath string) error {
	arkPath, err := gop.ReadScript(scpPath)
	if err != nil {
		return err
	}

	v.logger.WithFields(logrus.Fields{
		"scp": scpPath,
		"ark": arkPath,
	}).Debug("Converting posterior archive to text")

	var stdout bytes.Buffer
	cmd := exec.Command("copy-post", "ark:"+arkPath, "ark,t:-")
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "running copy-post", map[string]interface{}{"ark": arkPath})
	}

	return v.render(&stdout)
}

// ViewText renders a posterior table already in text form.
func (v *Viewer) ViewText(path string) error {
	set, err := gop.ReadPosteriorFile(path)
	if err != nil {
		return err
	}
	return v.renderSet(set)
}

func (v *Viewer) render(r io.Reader) error {
	set, err := gop.ParsePosterior(r)
	if err != nil {
		return err
	}
	return v.renderSet(set)
}

func (v *Viewer) renderSet(set *gop.GroupSet) error {
	for _, id := range set.SortedIDs() {
		group := set.Get(id)

		fmt.Fprintf(v.out, "\n%s\n", strings.Repeat("=", rule))
		fmt.Fprintf(v.out, "Utterance: %s\n", id)
		fmt.Fprintf(v.out, "%s\n", strings.Repeat("=", rule))
		fmt.Fprintf(v.out, "%-12s %-20s %-15s %-15s\n", "Phone ID", "Phone Name", "GOP Score", "Quality")
		fmt.Fprintf(v.out, "%s\n", strings.Repeat("-", rule))

		for i, value := range group.Values {
			phoneID := -1
			if i < len(group.PhoneIDs) {
				phoneID = group.PhoneIDs[i]
			}
			fmt.Fprintf(v.out, "%-12d %-20s %-15.3f %-15s\n",
				phoneID, v.table.Name(phoneID), value, score.PhoneQuality(value))
		}

		fmt.Fprintf(v.out, "%s\n\n", strings.Repeat("=", rule))
	}
	return nil
}

// ResolveTable finds and loads the phone symbol table for a .scp file,
// looking in the lang_nosp directory beside the scp's parent, or at an
// explicit path when one is configured. Missing tables are not an error;
// phones render as UNK.
func ResolveTable(logger *logrus.Logger, scpPath, explicit string) *phones.Table {
	path := explicit
	if path == "" {
		langDir := filepath.Join(filepath.Dir(filepath.Dir(scpPath)), "lang_nosp")
		path = phones.FindTable(langDir)
	}
	if path == "" {
		logger.Warn("No phone symbol table found, phone names will show as UNK")
		return nil
	}

	table, err := phones.LoadTable(path)
	if err != nil {
		logger.WithError(err).Warn("Failed to load phone symbol table")
		return nil
	}

	logger.WithFields(logrus.Fields{
		"path":   path,
		"phones": table.Len(),
	}).Debug("Loaded phone symbol table")
	return table
}
