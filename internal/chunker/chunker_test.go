package chunker_test

import (
	"fmt"
	"strings"

	"github.com/SINTEF-9012/TDPrioritization/internal/chunker"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func content(lines int) string {
	var sb strings.Builder
	for i := 1; i <= lines; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	return sb.String()
}

var _ = Describe("Chunk", func() {
	cfg := chunker.Config{Size: 10, Overlap: 2}

	It("covers every input line", func() {
		chunks := chunker.Chunk("a.py", content(37), cfg)

		covered := make(map[int]bool)
		for _, c := range chunks {
			for line := c.StartLine; line <= c.EndLine; line++ {
				covered[line] = true
			}
		}
		for line := 1; line <= 37; line++ {
			Expect(covered[line]).To(BeTrue(), "line %d not covered", line)
		}
	})

	It("is deterministic for identical content and config", func() {
		first := chunker.Chunk("a.py", content(100), cfg)
		second := chunker.Chunk("a.py", content(100), cfg)
		Expect(second).To(Equal(first))
	})

	It("overlaps consecutive windows by the configured amount", func() {
		chunks := chunker.Chunk("a.py", content(30), cfg)

		Expect(len(chunks)).To(BeNumerically(">", 1))
		for i := 1; i < len(chunks); i++ {
			Expect(chunks[i].StartLine).To(Equal(chunks[i-1].StartLine + 8))
		}
	})

	It("carries the source file and text on every chunk", func() {
		chunks := chunker.Chunk("pkg/mod.py", content(12), cfg)

		Expect(chunks[0].SourceFile).To(Equal("pkg/mod.py"))
		Expect(chunks[0].Text).To(HavePrefix("line 1\n"))
		Expect(chunks[0].StartLine).To(Equal(1))
		Expect(chunks[0].EndLine).To(Equal(10))
	})

	Context("degenerate inputs", func() {
		It("returns one empty chunk for empty content", func() {
			chunks := chunker.Chunk("empty.py", "", cfg)

			Expect(chunks).To(HaveLen(1))
			Expect(chunks[0].StartLine).To(Equal(1))
			Expect(chunks[0].EndLine).To(Equal(1))
			Expect(chunks[0].Text).To(BeEmpty())
		})

		It("returns one chunk for content shorter than the window", func() {
			chunks := chunker.Chunk("short.py", "only line\n", cfg)

			Expect(chunks).To(HaveLen(1))
			Expect(chunks[0].Text).To(Equal("only line"))
		})

		It("does not count a trailing newline as an extra line", func() {
			chunks := chunker.Chunk("a.py", "one\ntwo\n", cfg)

			Expect(chunks).To(HaveLen(1))
			Expect(chunks[0].EndLine).To(Equal(2))
		})

		It("still advances when overlap would exceed the window", func() {
			chunks := chunker.Chunk("a.py", content(5), chunker.Config{Size: 2, Overlap: 5})

			Expect(chunks[len(chunks)-1].EndLine).To(Equal(5))
			for i := 1; i < len(chunks); i++ {
				Expect(chunks[i].StartLine).To(BeNumerically(">", chunks[i-1].StartLine))
			}
		})
	})
})
