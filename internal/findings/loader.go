// Package findings loads and normalizes the external detector's report.
// The detector is an external collaborator; this package only consumes its
// output and never re-runs it.
package findings

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// Detector report columns. The loader maps by header name, not position,
// so detector versions that reorder columns still load.
const (
	colType        = "type"
	colName        = "name"
	colFile        = "file"
	colModuleClass = "module/class"
	colLineNumber  = "line number"
	colDescription = "description"
	colSeverity    = "severity"
)

// LoadOptions controls filtering and ordering of the loaded findings.
type LoadOptions struct {
	// Smells restricts loading to these smell names; empty loads everything.
	Smells []string
	// ShuffleSeed fixes the deterministic shuffle applied after filtering
	// so the model cannot learn positional bias from detector order.
	ShuffleSeed int64
}

// Load reads the detector's CSV report and returns normalized findings with
// sequential IDs assigned after filtering and shuffling.
func Load(path, project string, opts LoadOptions) ([]domain.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.InputError{Path: path, Err: err}
	}
	defer f.Close()

	findings, err := parse(f, path, project, opts.Smells)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.ShuffleSeed))
	rng.Shuffle(len(findings), func(i, j int) {
		findings[i], findings[j] = findings[j], findings[i]
	})

	for i := range findings {
		findings[i].ID = int64(i + 1)
	}

	slog.Debug("findings loaded",
		"path", path,
		"count", len(findings),
		"smell_filter", opts.Smells)

	return findings, nil
}

func parse(r io.Reader, path, project string, smells []string) ([]domain.Finding, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // validated per row against the header

	header, err := reader.Read()
	if err != nil {
		return nil, &domain.InputError{Path: path, Err: fmt.Errorf("reading header: %w", err)}
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{colName, colFile, colLineNumber} {
		if _, ok := cols[required]; !ok {
			return nil, &domain.InputError{Path: path, Err: fmt.Errorf("missing column %q", required)}
		}
	}

	wanted := make(map[string]bool, len(smells))
	for _, s := range smells {
		wanted[strings.ToLower(s)] = true
	}

	var findings []domain.Finding
	seen := make(map[string]bool)
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &domain.InputError{Path: path, Err: fmt.Errorf("row %d: %w", line, err)}
		}

		name := field(record, cols, colName)
		if len(wanted) > 0 && !wanted[strings.ToLower(name)] {
			continue
		}

		filePath := field(record, cols, colFile)
		if filePath == "" {
			return nil, &domain.InputError{Path: path, Err: fmt.Errorf("row %d: empty file path", line)}
		}

		lineNo, err := strconv.Atoi(field(record, cols, colLineNumber))
		if err != nil || lineNo < 1 {
			return nil, &domain.InputError{Path: path, Err: fmt.Errorf("row %d: bad line number %q", line, field(record, cols, colLineNumber))}
		}

		rawSeverity := field(record, cols, colSeverity)
		finding := domain.Finding{
			Project:     project,
			FilePath:    normalizePath(filePath),
			Lines:       domain.LineRange{Start: lineNo, End: lineNo},
			Category:    name,
			SmellType:   field(record, cols, colType),
			Module:      field(record, cols, colModuleClass),
			Severity:    domain.ParseSeverity(rawSeverity),
			RawSeverity: rawSeverity,
			Message:     field(record, cols, colDescription),
		}

		if seen[finding.Key()] {
			slog.Warn("duplicate finding skipped", "key", finding.Key(), "row", line)
			continue
		}
		seen[finding.Key()] = true

		findings = append(findings, finding)
	}

	return findings, nil
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// normalizePath strips the detector's relative prefix so paths resolve
// against the project root.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "../")
	return p
}
