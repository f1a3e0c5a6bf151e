package dispatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/forksmith/internal/config"
	"github.com/skaphos/forksmith/internal/dispatch"
	"github.com/skaphos/forksmith/internal/execx"
	"github.com/skaphos/forksmith/internal/registry"
	"github.com/skaphos/forksmith/internal/vcs"
)

func writeFile(path string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
	Expect(os.WriteFile(path, []byte("rule\n"), 0o644)).To(Succeed())
}

var _ = Describe("Dispatcher", func() {
	It("routes every supported kind to its engine", func() {
		d := dispatch.New(vcs.NewGitAdapter(&gitStub{}), &fakeExec{}, config.DefaultConfig().Engines, nil)
		for _, kind := range registry.EngineKinds {
			engine, err := d.Engine(kind)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Kind()).To(Equal(kind))
		}
	})

	It("rejects unknown kinds", func() {
		d := dispatch.New(nil, nil, config.DefaultConfig().Engines, nil)
		_, err := d.Apply(context.Background(), registry.PatchSet{ID: "x", Engine: "gritql"}, dispatch.Target{}, true)
		Expect(errors.Is(err, dispatch.ErrUnsupportedEngine)).To(BeTrue())
	})
})

var _ = Describe("RawDiff", func() {
	var (
		ws     string
		git    *gitStub
		engine *dispatch.RawDiff
		ps     registry.PatchSet
	)

	BeforeEach(func() {
		ws = GinkgoT().TempDir()
		writeFile(filepath.Join(ws, "patches", "a.diff"))
		writeFile(filepath.Join(ws, "patches", "b.diff"))
		git = &gitStub{}
		engine = &dispatch.RawDiff{Adapter: vcs.NewGitAdapter(git)}
		ps = registry.PatchSet{ID: "branding", Engine: registry.EngineRawDiff, Rules: []string{"patches/a.diff", "patches/b.diff"}}
	})

	It("reports the same count for dry run and apply", func() {
		target := dispatch.Target{Workspace: ws, Tree: filepath.Join(ws, "vendor")}
		dry, err := engine.Apply(context.Background(), ps, target, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(dry.Label).To(Equal("dry-run"))
		for _, call := range git.calls {
			Expect(call).To(ContainSubstring("--check"))
		}

		applied, err := engine.Apply(context.Background(), ps, target, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(applied.Label).To(Equal("applied"))
		Expect(*applied.Matches).To(Equal(*dry.Matches))
		Expect(*applied.Matches).To(Equal(2))
		Expect(git.calls[len(git.calls)-1]).To(Equal("apply --3way --allow-empty --whitespace=nowarn " + filepath.Join(ws, "patches", "b.diff")))
	})

	It("fails the whole patch set on the first rule that does not apply", func() {
		git.failOn = map[string]error{"a.diff": &execx.CommandError{Bin: "git", Stderr: "error: patch failed: src/main.rs:10", ExitCode: 1, Err: errors.New("exit status 1")}}
		_, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws}, false)
		var applyErr *dispatch.ApplyError
		Expect(errors.As(err, &applyErr)).To(BeTrue())
		Expect(applyErr.PatchSet).To(Equal("branding"))
		Expect(applyErr.Rule).To(Equal("patches/a.diff"))
		Expect(execx.Stderr(err)).To(ContainSubstring("patch failed"))
		Expect(git.calls).To(HaveLen(1))
	})

	It("treats a missing patch file as fatal", func() {
		ps.Rules = []string{"patches/missing.diff"}
		_, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws}, true)
		var applyErr *dispatch.ApplyError
		Expect(errors.As(err, &applyErr)).To(BeTrue())
		Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
	})
})

var _ = Describe("Structural", func() {
	var (
		ws     string
		tree   string
		fx     *fakeExec
		engine *dispatch.Structural
		ps     registry.PatchSet
	)

	BeforeEach(func() {
		ws = GinkgoT().TempDir()
		tree = filepath.Join(ws, "vendor")
		writeFile(filepath.Join(ws, "rules", "one.yml"))
		writeFile(filepath.Join(ws, "rules", "two.yaml"))
		writeFile(filepath.Join(ws, "rules", "README.md"))
		one := filepath.Join(ws, "rules", "one.yml")
		two := filepath.Join(ws, "rules", "two.yaml")
		fx = &fakeExec{paths: map[string]string{"ast-grep": "/usr/bin/ast-grep"}, responses: map[string]fakeResult{}}
		fx.responses["/usr/bin/ast-grep scan --rule "+one+" --json=stream "+tree] = fakeResult{stdout: "{\"a\":1}\n{\"a\":2}\n\n"}
		fx.responses["/usr/bin/ast-grep scan --rule "+two+" --json=stream "+tree] = fakeResult{stdout: "{\"b\":1}"}
		fx.responses["/usr/bin/ast-grep scan --rule "+one+" --update-all "+tree] = fakeResult{}
		fx.responses["/usr/bin/ast-grep scan --rule "+two+" --update-all "+tree] = fakeResult{}
		engine = &dispatch.Structural{Runner: fx, Binary: "ast-grep", RulesDir: "rules"}
		ps = registry.PatchSet{ID: "telemetry", Engine: registry.EngineStructural}
	})

	It("skips when the binary is not on PATH", func() {
		fx.paths = nil
		out, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Skipped).To(BeTrue())
		Expect(out.Matches).To(BeNil())
		Expect(out.Label).To(Equal("skipped: ast-grep binary not found"))
		Expect(fx.calls).To(BeEmpty())
	})

	It("skips when the rule config directory is missing", func() {
		engine.RulesDir = "nope"
		out, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Skipped).To(BeTrue())
		Expect(out.Reason).To(Equal("rule config " + filepath.Join(ws, "nope") + " missing"))
	})

	It("counts preview lines without rewriting on a dry run", func() {
		out, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(*out.Matches).To(Equal(3))
		Expect(out.Rules).To(HaveLen(2))
		Expect(fx.callsWith("--update-all")).To(BeEmpty())
	})

	It("rewrites on apply and reports the dry-run count", func() {
		dry, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, true)
		Expect(err).NotTo(HaveOccurred())
		applied, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(*applied.Matches).To(Equal(*dry.Matches))
		Expect(applied.Label).To(Equal("applied"))
		Expect(fx.callsWith("--update-all")).To(HaveLen(2))
	})

	It("records a failing rule and keeps going", func() {
		two := filepath.Join(ws, "rules", "two.yaml")
		fx.responses["/usr/bin/ast-grep scan --rule "+two+" --json=stream "+tree] = fakeResult{stderr: "bad rule", exitCode: 2}
		out, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(*out.Matches).To(Equal(2))
		Expect(out.Label).To(Equal("partial: 1 of 2 rules failed"))
		Expect(out.FailedRules()).To(Equal(1))
		Expect(out.Rules[1].ExitCode).To(Equal(2))
		Expect(out.Rules[1].Error).To(Equal("bad rule"))
		Expect(out.Warnings).To(ContainElement(ContainSubstring("rules/two.yaml")))
	})
})

var _ = Describe("Semantic", func() {
	var (
		ws     string
		tree   string
		fx     *fakeExec
		engine *dispatch.Semantic
		ps     registry.PatchSet
		first  string
		second string
	)

	BeforeEach(func() {
		ws = GinkgoT().TempDir()
		tree = filepath.Join(ws, "vendor")
		first = filepath.Join(ws, "cocci", "a.cocci")
		second = filepath.Join(ws, "cocci", "b.cocci")
		writeFile(first)
		writeFile(second)
		writeFile(filepath.Join(ws, "cocci", "notes.txt"))
		fx = &fakeExec{paths: map[string]string{"coccinelle-for-rust": "/opt/cfr"}, responses: map[string]fakeResult{}}
		fx.responses["/opt/cfr --patch "+first+" "+tree] = fakeResult{}
		fx.responses["/opt/cfr --patch "+second+" "+tree] = fakeResult{stderr: "parse error", exitCode: 1}
		fx.responses["/opt/cfr --patch "+first+" "+tree+" --apply"] = fakeResult{}
		fx.responses["/opt/cfr --patch "+second+" "+tree+" --apply"] = fakeResult{stderr: "parse error", exitCode: 1}
		engine = &dispatch.Semantic{Runner: fx, Binary: "coccinelle-for-rust", RulesDir: "cocci", Extension: ".cocci"}
		ps = registry.PatchSet{ID: "sandbox", Engine: registry.EngineSemantic}
	})

	It("skips the engine when the binary is missing", func() {
		fx.paths = nil
		out, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Skipped).To(BeTrue())
		Expect(out.Warnings).To(ConsistOf("coccinelle-for-rust binary not found"))
	})

	It("records each rule independently", func() {
		out, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(*out.Matches).To(Equal(1))
		Expect(out.Label).To(Equal("partial: 1 of 2 rules failed"))
		Expect(out.Rules[0].OK).To(BeTrue())
		Expect(out.Rules[0].Rule).To(Equal("cocci/a.cocci"))
		Expect(out.Rules[1].OK).To(BeFalse())
		Expect(fx.callsWith("--apply")).To(HaveLen(2))
	})

	It("matches the apply count on a dry run", func() {
		dry, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(fx.callsWith("--apply")).To(BeEmpty())
		applied, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(*dry.Matches).To(Equal(*applied.Matches))
	})

	It("uses declared rules instead of discovery", func() {
		ps.Rules = []string{"cocci/a.cocci"}
		out, err := engine.Apply(context.Background(), ps, dispatch.Target{Workspace: ws, Tree: tree}, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(*out.Matches).To(Equal(1))
		Expect(out.Label).To(Equal("dry-run"))
	})
})
