package wiring

import (
	"context"
	"os"
	"path/filepath"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"crucible/internal/config"
	"crucible/internal/orchestrate"
	"crucible/internal/pipeline"
	"crucible/internal/session"
	"crucible/internal/tools"
)

var _ = ginkgo.Describe("Run", func() {
	var (
		coord *orchestrate.Coordinator
		done  func() error
		ctx   context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		cfg := config.Default()
		cfg.Workers.Conversion.OutputDir = ginkgo.GinkgoT().TempDir()

		var err error
		coord, done, err = Build(ctx, cfg)
		gomega.Expect(err).To(gomega.Succeed())
	})

	ginkgo.AfterEach(func() {
		gomega.Expect(done()).To(gomega.Succeed())
	})

	ginkgo.It("carries a dataset through all four stages and fills every slot", func() {
		dir := ginkgo.GinkgoT().TempDir()
		dataset := filepath.Join(dir, "readings.csv")
		gomega.Expect(os.WriteFile(dataset, []byte("t,v\n1,2\n"), 0o644)).To(gomega.Succeed())

		state, err := Run(ctx, coord, "wiring-session", dataset, "json")
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(state.Stage).To(gomega.Equal(pipeline.StageEnriched))

		gomega.Expect(state.Slots[session.SlotLastAnalyzedDataset]).To(gomega.Equal(dataset))
		gomega.Expect(state.Slots[session.SlotNormalizedMetadata]).NotTo(gomega.BeNil())
		gomega.Expect(state.Slots[session.SlotConversionStatus]).To(gomega.Equal("converted"))
		gomega.Expect(state.Slots[session.SlotEvaluationReport]).NotTo(gomega.BeNil())
		gomega.Expect(state.Slots[session.SlotKnowledgeGraphRef]).To(gomega.HavePrefix("kg://"))

		outPath, _ := state.Slots[session.SlotCurrentOutputPath].(string)
		gomega.Expect(outPath).NotTo(gomega.BeEmpty())
		_, statErr := os.Stat(outPath)
		gomega.Expect(statErr).To(gomega.Succeed(), "conversion manifest should exist on disk")

		gomega.Expect(state.History).To(gomega.HaveLen(4))
		gomega.Expect(state.History[0].Tool).To(gomega.Equal(tools.ToolAnalyzeDataset))
		gomega.Expect(state.History[3].To).To(gomega.Equal(pipeline.StageEnriched))
	})

	ginkgo.It("stops at the first failing stage and reports the error kind", func() {
		dir := ginkgo.GinkgoT().TempDir()
		missing := filepath.Join(dir, "never-written.csv")

		_, err := Run(ctx, coord, "wiring-broken", missing, "json")
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("analyze_dataset"))
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("handler_error"))

		state, stateErr := coord.State("wiring-broken")
		gomega.Expect(stateErr).To(gomega.Succeed())
		gomega.Expect(state.Stage).To(gomega.Equal(pipeline.StageEmpty))
	})

	ginkgo.It("runs the ladder again after a reset", func() {
		dir := ginkgo.GinkgoT().TempDir()
		dataset := filepath.Join(dir, "d.csv")
		gomega.Expect(os.WriteFile(dataset, []byte("x\n"), 0o644)).To(gomega.Succeed())

		_, err := Run(ctx, coord, "wiring-reset", dataset, "json")
		gomega.Expect(err).To(gomega.Succeed())

		gomega.Expect(coord.Reset("wiring-reset")).To(gomega.Succeed())

		state, err := Run(ctx, coord, "wiring-reset", dataset, "parquet")
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(state.Stage).To(gomega.Equal(pipeline.StageEnriched))
	})
})
