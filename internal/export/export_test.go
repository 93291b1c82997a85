package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

func sampleItems() []model.Classified {
	posted := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return []model.Classified{
		{Posting: model.Posting{Source: "RemoteOK", Title: "ML Engineer, Google", Link: "https://x/1", Company: "Google", Summary: `says "hi"`, PostedAt: &posted}, Tag: model.TagCompany},
		{Posting: model.Posting{Source: "WWR", Title: "Founding Engineer", Link: "https://x/2"}, Tag: model.TagStartup},
	}
}

func TestWriteDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "digest.txt")
	if err := WriteDigest(path, model.Message{Body: "first"}); err != nil {
		t.Fatalf("WriteDigest: %v", err)
	}
	if err := WriteDigest(path, model.Message{Body: "second"}); err != nil {
		t.Fatalf("WriteDigest: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("digest = %q, want the latest body only", data)
	}
}

func TestWriteCSV_AppendsWithSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postings.csv")
	items := sampleItems()

	if err := WriteCSV(path, items[:1]); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if err := WriteCSV(path, items[1:]); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "source" {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"RemoteOK", "ML Engineer, Google", "Google", "https://x/1", "COMPANY_MATCH", "2026-03-01T09:30:00Z", `says "hi"`}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("row 1 col %d = %q, want %q", i, rows[1][i], want[i])
		}
	}
	if rows[2][4] != "STARTUP_MATCH" || rows[2][5] != "" {
		t.Errorf("row 2 = %v", rows[2])
	}
}
