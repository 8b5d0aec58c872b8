// Package source gives the pipeline read-only access to the project tree.
package source

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// skipDirs are never walked when rendering the project structure.
var skipDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	"venv":         true,
	".venv":        true,
	"vendor":       true,
}

// ReadFile reads one project file; failure is an InputError carrying the
// offending path, fatal for the run.
func ReadFile(projectRoot, relPath string) (string, error) {
	full := filepath.Join(projectRoot, relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return "", &domain.InputError{Path: full, Err: err}
	}
	return string(data), nil
}

// Span extracts the finding's own code span: the covered lines plus
// contextLines below, since detectors report the entity's first line only.
func Span(content string, lines domain.LineRange, contextLines int) string {
	all := strings.Split(content, "\n")
	start := lines.Start - 1
	if start < 0 {
		start = 0
	}
	if start >= len(all) {
		return ""
	}
	end := lines.End + contextLines
	if end > len(all) {
		end = len(all)
	}
	return strings.Join(all[start:end], "\n")
}

// codeExtensions marks files worth chunking for retrieval. Everything else
// (docs, lockfiles, assets) only adds index noise.
var codeExtensions = map[string]bool{
	".py": true, ".go": true, ".java": true, ".js": true, ".jsx": true,
	".ts": true, ".tsx": true, ".rb": true, ".cs": true, ".cpp": true,
	".cc": true, ".c": true, ".h": true, ".hpp": true, ".rs": true,
	".kt": true, ".scala": true, ".php": true, ".swift": true,
}

// ListSourceFiles walks the project and returns relative paths of source
// files, sorted for deterministic chunk ordering.
func ListSourceFiles(projectRoot string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(projectRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != projectRoot && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !codeExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, &domain.InputError{Path: projectRoot, Err: err}
	}
	sort.Strings(files)
	return files, nil
}

// Structure renders a textual tree of the project's directories and files,
// for optional inclusion in the prompt.
func Structure(projectRoot string) (string, error) {
	var sb strings.Builder
	if err := writeTree(&sb, projectRoot, ""); err != nil {
		return "", &domain.InputError{Path: projectRoot, Err: err}
	}
	return sb.String(), nil
}

func writeTree(sb *strings.Builder, dir, indent string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || skipDirs[name] {
			continue
		}
		if e.IsDir() {
			sb.WriteString(indent + name + "/\n")
			if err := writeTree(sb, filepath.Join(dir, name), indent+"  "); err != nil {
				return err
			}
		} else {
			sb.WriteString(indent + name + "\n")
		}
	}
	return nil
}
