package gitmetrics

import (
	"context"
	"errors"
	"time"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Log output with two commits touching two files. The second commit is a
// bug fix by a different author.
const sampleLog = `--commit--alice@example.com|1700000000|Add feature
10	2	src/app.py
5	0	src/util.py
--commit--bob@example.com|1702592000|Fix crash on empty input
3	3	src/app.py
`

func fakeRunner(output string, err error) commandRunner {
	return func(context.Context, string, ...string) ([]byte, error) {
		return []byte(output), err
	}
}

var _ = Describe("Miner", func() {
	var ctx context.Context

	// Fixed clock 30 days after the last commit.
	now := time.Unix(1702592000, 0).Add(30 * 24 * time.Hour)

	newMiner := func(output string, err error) *Miner {
		m := NewMiner("/repo")
		m.run = fakeRunner(output, err)
		m.now = func() time.Time { return now }
		return m
	}

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("accumulates per-file commit, churn, author and bug-fix counts", func() {
		metrics, err := newMiner(sampleLog, nil).Mine(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(metrics).To(HaveLen(2))

		app := metrics["src/app.py"]
		Expect(app.CommitCount).To(Equal(2))
		Expect(app.Churn).To(Equal(18))
		Expect(app.BugFixCommits).To(Equal(1))
		Expect(app.AuthorCount).To(Equal(2))

		util := metrics["src/util.py"]
		Expect(util.CommitCount).To(Equal(1))
		Expect(util.Churn).To(Equal(5))
		Expect(util.BugFixCommits).To(Equal(0))
		Expect(util.AuthorCount).To(Equal(1))
	})

	It("derives recency from the newest commit", func() {
		metrics, err := newMiner(sampleLog, nil).Mine(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(metrics["src/app.py"].RecencyDays).To(BeNumerically("~", 30, 0.01))
		Expect(metrics["src/app.py"].FirstCommit.Unix()).To(Equal(int64(1700000000)))
		Expect(metrics["src/app.py"].LastCommit.Unix()).To(Equal(int64(1702592000)))
	})

	It("scores the most change-prone file highest", func() {
		metrics, err := newMiner(sampleLog, nil).Mine(ctx)

		Expect(err).NotTo(HaveOccurred())
		app := metrics["src/app.py"]
		util := metrics["src/util.py"]
		Expect(app.ChangeProneness).To(BeNumerically(">", util.ChangeProneness))
		Expect(app.ChangeProneness).To(BeNumerically("<=", 1))
		Expect(util.ChangeProneness).To(BeNumerically(">=", 0))
	})

	It("returns empty metrics for an empty history", func() {
		metrics, err := newMiner("", nil).Mine(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(metrics).To(BeEmpty())
	})

	It("surfaces git invocation failures", func() {
		_, err := newMiner("", errors.New("not a git repository")).Mine(ctx)

		Expect(err).To(HaveOccurred())
	})

	It("skips binary numstat rows", func() {
		log := "--commit--a@x.com|1700000000|Add image\n-\t-\tassets/logo.png\n3\t1\tsrc/app.py\n"
		metrics, err := newMiner(log, nil).Mine(ctx)

		Expect(err).NotTo(HaveOccurred())
		// Binary rows parse to zero churn but still count the commit.
		Expect(metrics["assets/logo.png"].Churn).To(Equal(0))
		Expect(metrics["src/app.py"].Churn).To(Equal(4))
	})
})

var _ = Describe("containsBugfixKeyword", func() {
	DescribeTable("flags fault-related commit messages",
		func(message string, expected bool) {
			Expect(containsBugfixKeyword(message)).To(Equal(expected))
		},
		Entry("fix", "Fix crash on startup", true),
		Entry("bug", "resolve BUG in parser", true),
		Entry("issue", "closes issue #42", true),
		Entry("error", "handle error path", true),
		Entry("feature", "Add export feature", false),
		Entry("empty", "", false),
	)
})

var _ = Describe("FileSummary", func() {
	summaryFor := func(commits int, recencyDays float64) string {
		return FileSummary(domain.FileMetrics{
			FilePath:    "src/app.py",
			CommitCount: commits,
			RecencyDays: recencyDays,
		})
	}

	It("labels activity and recency", func() {
		summary := summaryFor(60, 100)

		Expect(summary).To(ContainSubstring("very active"))
		Expect(summary).To(ContainSubstring("inactive for a while"))
		Expect(summary).To(ContainSubstring("Change-proneness score"))
	})

	It("labels quiet legacy files", func() {
		summary := summaryFor(2, 400)

		Expect(summary).To(ContainSubstring("rarely changed"))
		Expect(summary).To(ContainSubstring("stagnant or legacy code"))
	})

	It("labels recently touched files", func() {
		summary := summaryFor(20, 5)

		Expect(summary).To(ContainSubstring("moderately active"))
		Expect(summary).To(ContainSubstring("recently modified"))
	})
})
