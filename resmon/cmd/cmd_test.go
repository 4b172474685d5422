package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/resmon/scenario"
)

const queueScenario = "../../scenario/testdata/queue.yaml"

func execute(args ...string) (string, error) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())

	return out.String(), err
}

var _ = Describe("resmon", func() {
	BeforeEach(func() {
		runOpts = runOptions{clickHouseDB: "default"}
		replayBegin = 0
		replayEnd = math.Inf(1)
		replayServe = false
	})

	It("should run a scenario", func() {
		out, err := execute("run", "--log-level", "error", queueScenario)

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("queue, seed 1"))
		Expect(out).To(ContainSubstring("counter"))
		Expect(out).To(ContainSubstring("0.7500"))
		Expect(out).To(ContainSubstring("0.5625"))
	})

	It("should print replications as JSON", func() {
		out, err := execute("run", "--log-level", "error",
			"--json", "--seeds", "1,2", queueScenario)
		Expect(err).NotTo(HaveOccurred())

		var summary scenario.Summary
		Expect(json.Unmarshal([]byte(out), &summary)).To(Succeed())
		Expect(summary.Runs).To(HaveLen(2))
		Expect(summary.Stations).To(HaveLen(1))
		Expect(summary.Stations[0].Utilization.Mean).
			To(BeNumerically("~", 0.75, 1e-12))
	})

	It("should write a periodic CSV report", func() {
		csvFile := filepath.Join(GinkgoT().TempDir(), "report.csv")

		_, err := execute("run", "--log-level", "error",
			"--csv", csvFile, "--period", "8", queueScenario)
		Expect(err).NotTo(HaveOccurred())

		content, err := os.ReadFile(csvFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(HavePrefix("Start,End,Where,What,Value,Unit"))
		Expect(string(content)).To(ContainSubstring("counter,Utilization"))
	})

	It("should refuse remote write without a period", func() {
		_, err := execute("run", "--log-level", "error",
			"--remote-write", "http://localhost:1/write", queueScenario)

		Expect(err).To(HaveOccurred())
	})

	It("should reject unknown log levels", func() {
		_, err := execute("run", "--log-level", "loud", queueScenario)

		Expect(err).To(HaveOccurred())
	})

	It("should replay a recorded run", func() {
		prefix := filepath.Join(GinkgoT().TempDir(), "q")

		_, err := execute("run", "--log-level", "error",
			"--record", "--output", prefix, queueScenario)
		Expect(err).NotTo(HaveOccurred())

		out, err := execute("replay", "--log-level", "error",
			prefix+"_seed1.sqlite3")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("counter"))
		Expect(out).To(ContainSubstring("1.0000"))
		Expect(out).To(ContainSubstring("0.7500"))
	})
})
