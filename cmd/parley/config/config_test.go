package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/ansi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/parley/cmd/parley/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var configDir string

	run := func(args ...string) (string, error) {
		cmd := configcmder.NewConfigCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .parley/ config directory")

		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--config-dir", configDir))

		err := cmd.Execute()
		return ansi.Strip(out.String()), err
	}

	BeforeEach(func() {
		configDir = filepath.Join(GinkgoT().TempDir(), ".parley")
		Expect(os.MkdirAll(configDir, 0o755)).To(Succeed())
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			out, err := run("set", "client.model", "gpt-4o")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Set client.model = gpt-4o"))
			Expect(filepath.Join(configDir, "config.toml")).To(BeAnExistingFile())
		})

		It("rejects unknown keys", func() {
			_, err := run("set", "proxy.provider", "anthropic")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			_, err := run("set", "client.model")
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid durations", func() {
			_, err := run("set", "client.timeout", "soon")
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid booleans", func() {
			_, err := run("set", "log.json", "maybe")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			_, err := run("set", "events.kafka_brokers", "a:9092, b:9092")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("get", "events.kafka_brokers")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("a:9092,b:9092"))
		})

		It("shows defaults for unset keys", func() {
			out, err := run("get", "client.endpoint")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("https://api.openai.com/v1"))
		})

		It("marks keys without a value", func() {
			out, err := run("get", "storage.postgres_dsn")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("<not set>"))
		})

		It("requires exactly one argument", func() {
			_, err := run("get")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(`client.model`))
			Expect(out).To(ContainSubstring(`"gpt-4o-mini"`))
			Expect(out).To(ContainSubstring("log.json"))
		})

		It("rejects any arguments", func() {
			_, err := run("list", "extra")
			Expect(err).To(HaveOccurred())
		})
	})
})

