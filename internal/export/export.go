// Package export writes a run's postings to local files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

var csvHeader = []string{"source", "title", "company", "link", "tag", "posted_at", "summary"}

// WriteDigest writes the rendered digest body to path, replacing any previous
// file.
func WriteDigest(path string, msg model.Message) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(msg.Body), 0o644); err != nil {
		return fmt.Errorf("writing digest %s: %w", path, err)
	}
	return nil
}

// WriteCSV appends one row per posting to path. A header row is written when
// the file is new or empty.
func WriteCSV(path string, items []model.Classified) (err error) {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening csv %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing csv %s: %w", path, cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat csv %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing csv header: %w", err)
		}
	}
	for _, it := range items {
		if err := w.Write(row(it)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing csv %s: %w", path, err)
	}
	return nil
}

func row(it model.Classified) []string {
	p := it.Posting
	posted := ""
	if p.PostedAt != nil {
		posted = p.PostedAt.UTC().Format(time.RFC3339)
	}
	return []string{p.Source, p.Title, p.Company, p.Link, string(it.Tag), posted, p.Summary}
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
