package sqlitepath

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResolveSQLitePath", func() {
	var homeDir string

	BeforeEach(func() {
		homeDir = GinkgoT().TempDir()
		cwd := GinkgoT().TempDir()

		GinkgoT().Setenv("HOME", homeDir)
		GinkgoT().Setenv("XDG_DATA_HOME", "")

		orig, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(cwd)).To(Succeed())
		DeferCleanup(func() {
			_ = os.Chdir(orig)
		})
	})

	It("returns the override untouched", func() {
		path, err := ResolveSQLitePath("/tmp/custom.sqlite", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/custom.sqlite"))
	})

	It("resolves ~/.parley/parley.sqlite when present", func() {
		expected := filepath.Join(homeDir, ".parley", FileName)
		Expect(os.MkdirAll(filepath.Dir(expected), 0o755)).To(Succeed())
		Expect(os.WriteFile(expected, []byte(""), 0o644)).To(Succeed())

		path, err := ResolveSQLitePath("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(expected))
	})

	It("prefers the archive in an explicit config dir", func() {
		configDir := GinkgoT().TempDir()
		expected := filepath.Join(configDir, FileName)
		Expect(os.WriteFile(expected, []byte(""), 0o644)).To(Succeed())

		home := filepath.Join(homeDir, ".parley", FileName)
		Expect(os.MkdirAll(filepath.Dir(home), 0o755)).To(Succeed())
		Expect(os.WriteFile(home, []byte(""), 0o644)).To(Succeed())

		path, err := ResolveSQLitePath("", configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(expected))
	})

	It("reports a missing archive", func() {
		_, err := ResolveSQLitePath("", "")
		Expect(err).To(MatchError(ErrNotFound))
	})
})

var _ = Describe("DefaultSQLitePath", func() {
	It("places the archive inside the config dir", func() {
		configDir := filepath.Join(GinkgoT().TempDir(), "conf")

		path, err := DefaultSQLitePath(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Base(path)).To(Equal(FileName))
		Expect(filepath.Dir(path)).To(BeADirectory())
	})
})
