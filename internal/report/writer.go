package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// Writer serializes a PriorityReport to disk. Files are written to a temp
// path in the target directory and renamed into place, so a cancelled or
// crashed run never leaves a partial report behind.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// WriteAll emits the tabular and hierarchical forms side by side and
// returns the paths written.
func (w *Writer) WriteAll(report *domain.PriorityReport) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	csvPath := filepath.Join(w.dir, "priority_report.csv")
	if err := w.writeAtomic(csvPath, func(f *os.File) error {
		return writeCSV(f, report)
	}); err != nil {
		return nil, err
	}

	jsonPath := filepath.Join(w.dir, "priority_report.json")
	if err := w.writeAtomic(jsonPath, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}); err != nil {
		return nil, err
	}

	return []string{csvPath, jsonPath}, nil
}

func (w *Writer) writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(w.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming %s into place: %w", filepath.Base(path), err)
	}
	return nil
}

// writeCSV renders the pipe-separated table. Failures get their own rows
// after the rankings so the operator sees every input finding accounted for.
func writeCSV(f *os.File, report *domain.PriorityReport) error {
	cw := csv.NewWriter(f)
	cw.Comma = '|'

	header := []string{"rank", "id", "smell", "file", "lines", "severity", "score", "blended", "rationale"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range report.Rankings {
		row := []string{
			strconv.Itoa(r.Rank),
			strconv.FormatInt(r.Finding.ID, 10),
			r.Finding.Category,
			r.Finding.FilePath,
			r.Finding.Lines.String(),
			string(r.Finding.Severity),
			formatScore(r.Judgment.Score),
			formatScore(r.Blended),
			r.Judgment.Rationale,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	for _, fail := range report.Failures {
		row := []string{
			"-",
			strconv.FormatInt(fail.FindingID, 10),
			fail.Category,
			fail.FilePath,
			"",
			"",
			"",
			"",
			fmt.Sprintf("FAILED (%s): %s", fail.Stage, fail.Reason),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', 4, 64)
}
