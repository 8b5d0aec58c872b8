// Package chunker splits source files into bounded, overlapping line windows
// suitable for embedding. Chunk boundaries are a pure function of content and
// configuration, so re-chunking unchanged content yields identical chunks.
package chunker

import (
	"strings"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// Config bounds the window size and overlap, both in lines.
type Config struct {
	Size    int
	Overlap int
}

// Chunk splits file content into overlapping windows. The overlap ensures a
// finding near a window boundary is still captured with surrounding context
// in at least one chunk. Degenerate inputs (empty file, single line) produce
// exactly one chunk; the union of chunk ranges covers every input line.
func Chunk(sourceFile, content string, cfg Config) []domain.Chunk {
	lines := splitLines(content)

	if len(lines) == 0 {
		return []domain.Chunk{{
			SourceFile: sourceFile,
			StartLine:  1,
			EndLine:    1,
			Text:       "",
		}}
	}

	size := cfg.Size
	if size < 1 {
		size = 1
	}
	stride := size - cfg.Overlap
	if stride < 1 {
		stride = 1
	}

	var chunks []domain.Chunk
	for start := 0; ; start += stride {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, domain.Chunk{
			SourceFile: sourceFile,
			StartLine:  start + 1,
			EndLine:    end,
			Text:       strings.Join(lines[start:end], "\n"),
		})
		if end == len(lines) {
			break
		}
	}

	return chunks
}

// splitLines splits content on newlines, dropping a single trailing empty
// line so "a\nb\n" counts as two lines, not three.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
