package discovery_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/forksmith/internal/discovery"
)

func touch(path string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
	Expect(os.WriteFile(path, []byte("rule"), 0o644)).To(Succeed())
}

var _ = Describe("Discovery", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		touch(filepath.Join(dir, "b.yml"))
		touch(filepath.Join(dir, "a.yaml"))
		touch(filepath.Join(dir, "notes.md"))
		touch(filepath.Join(dir, "disabled.off.yml"))
		touch(filepath.Join(dir, "nested", "c.yml"))
		touch(filepath.Join(dir, "drafts", "d.yml"))
		touch(filepath.Join(dir, "fix.cocci"))
	})

	It("matches exclude patterns", func() {
		Expect(discovery.MatchesExclude("repo/.git/config", []string{"**/.git/**"})).To(BeTrue())
		Expect(discovery.MatchesExclude("repo/src", []string{"**/node_modules/**"})).To(BeFalse())
	})

	It("builds extension patterns", func() {
		Expect(discovery.ExtensionPatterns(".yml", ".yaml")).To(Equal([]string{"*.yml", "*.yaml"}))
	})

	It("finds top-level rules in lexical order", func() {
		rules, err := discovery.Rules(context.Background(), discovery.Options{
			Dir:     dir,
			Include: discovery.ExtensionPatterns(".yml", ".yaml"),
			Exclude: []string{"*.off.yml"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(rules).To(Equal([]string{
			filepath.Join(dir, "a.yaml"),
			filepath.Join(dir, "b.yml"),
		}))
	})

	It("recurses with ** patterns and skips excluded directories", func() {
		rules, err := discovery.Rules(context.Background(), discovery.Options{
			Dir:     dir,
			Include: []string{"**/*.yml"},
			Exclude: []string{"drafts", "**/*.off.yml"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(rules).To(ConsistOf(
			filepath.Join(dir, "b.yml"),
			filepath.Join(dir, "nested", "c.yml"),
		))
	})

	It("reports a missing directory as not-exist", func() {
		_, err := discovery.Rules(context.Background(), discovery.Options{Dir: filepath.Join(dir, "missing")})
		Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
		Expect(discovery.DirExists(filepath.Join(dir, "missing"))).To(BeFalse())
		Expect(discovery.DirExists(dir)).To(BeTrue())
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := discovery.Rules(ctx, discovery.Options{Dir: dir, Include: []string{"*.cocci"}})
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})
})
