package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	writeConfig := func(data string) {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads all config fields", func() {
			writeConfig(`version = 0

[client]
endpoint = "http://localhost:11434/v1"
model = "llama3.2"
timeout = "90s"

[chat]
placeholder = "..."
save_file = "chat.txt"

[storage]
sqlite_path = "/tmp/parley.sqlite"
postgres_dsn = "postgres://localhost/parley"

[events]
kafka_brokers = ["k1:9092", "k2:9092"]
kafka_topic = "chats"

[log]
debug = true
json = true
`)

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Client.Endpoint).To(Equal("http://localhost:11434/v1"))
			Expect(cfg.Client.Model).To(Equal("llama3.2"))
			Expect(cfg.Client.Timeout).To(Equal("90s"))
			Expect(cfg.Chat.Placeholder).To(Equal("..."))
			Expect(cfg.Chat.SaveFile).To(Equal("chat.txt"))
			Expect(cfg.Storage.SQLitePath).To(Equal("/tmp/parley.sqlite"))
			Expect(cfg.Storage.PostgresDSN).To(Equal("postgres://localhost/parley"))
			Expect(cfg.Events.KafkaBrokers).To(Equal([]string{"k1:9092", "k2:9092"}))
			Expect(cfg.Events.KafkaTopic).To(Equal("chats"))
			Expect(cfg.Log.Debug).To(BeTrue())
			Expect(cfg.Log.JSON).To(BeTrue())
		})

		It("fills in defaults for unset fields in a partial config", func() {
			writeConfig(`[client]
model = "gpt-4.1"
`)

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Client.Model).To(Equal("gpt-4.1"))
			Expect(cfg.Client.Endpoint).To(Equal(defaults.Client.Endpoint))
			Expect(cfg.Client.Timeout).To(Equal(defaults.Client.Timeout))
			Expect(cfg.Chat.Placeholder).To(Equal(defaults.Chat.Placeholder))
			Expect(cfg.Chat.SaveFile).To(Equal(defaults.Chat.SaveFile))
			Expect(cfg.Events.KafkaTopic).To(Equal(defaults.Events.KafkaTopic))
			Expect(cfg.Storage.SQLitePath).To(BeEmpty())
		})

		It("returns error for malformed TOML", func() {
			writeConfig("not valid toml [[[")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(cfg).To(BeNil())
		})

		It("returns error for unsupported config version", func() {
			writeConfig("version = 99\n")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version")))
			Expect(cfg).To(BeNil())
		})
	})

	Describe("SaveConfig", func() {
		It("persists config to disk with owner-only permissions", func() {
			cfg := config.NewDefaultConfig()
			cfg.Client.Model = "gpt-4.1"
			cfg.Events.KafkaBrokers = []string{"localhost:9092"}

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(cfg)).To(Succeed())

			info, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(HaveOccurred())
		})

		It("returns error when no directory was resolved", func() {
			c := &config.Configer{}
			Expect(c.SaveConfig(config.NewDefaultConfig())).To(MatchError(ContainSubstring("empty target path")))
		})
	})

	Describe("SetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets a string config key", func() {
			Expect(c.SetConfigValue("client.model", "gpt-4.1")).To(Succeed())

			val, err := c.GetConfigValue("client.model")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("gpt-4.1"))
		})

		It("splits broker lists on commas", func() {
			Expect(c.SetConfigValue("events.kafka_brokers", "a:9092, b:9092,,")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Events.KafkaBrokers).To(Equal([]string{"a:9092", "b:9092"}))

			val, err := c.GetConfigValue("events.kafka_brokers")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("a:9092,b:9092"))
		})

		It("validates durations", func() {
			Expect(c.SetConfigValue("client.timeout", "soon")).To(MatchError(ContainSubstring("client.timeout")))
			Expect(c.SetConfigValue("client.timeout", "45s")).To(Succeed())
		})

		It("validates booleans", func() {
			Expect(c.SetConfigValue("log.debug", "maybe")).To(HaveOccurred())
			Expect(c.SetConfigValue("log.debug", "true")).To(Succeed())

			val, err := c.GetConfigValue("log.debug")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("true"))
		})

		It("returns error for unknown key", func() {
			Expect(c.SetConfigValue("proxy.listen", ":8080")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("client.model", "gpt-4.1")).To(Succeed())
			Expect(c.SetConfigValue("chat.save_file", "notes.txt")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Client.Model).To(Equal("gpt-4.1"))
			Expect(cfg.Chat.SaveFile).To(Equal("notes.txt"))
		})
	})

	Describe("GetConfigValue", func() {
		It("returns default value when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("client.endpoint")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("https://api.openai.com/v1"))
		})

		It("returns empty string for key with no default", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("storage.postgres_dsn")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(BeEmpty())
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.GetConfigValue("nonexistent.key")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("returns every key in section order", func() {
		Expect(config.ValidConfigKeys()).To(Equal([]string{
			"client.endpoint",
			"client.model",
			"client.timeout",
			"chat.placeholder",
			"chat.save_file",
			"storage.sqlite_path",
			"storage.postgres_dsn",
			"events.kafka_brokers",
			"events.kafka_topic",
			"log.debug",
			"log.json",
		}))
	})

	It("agrees with IsValidConfigKey", func() {
		for _, k := range config.ValidConfigKeys() {
			Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
		}
		Expect(config.IsValidConfigKey("model")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	It("returns the openai defaults", func() {
		cfg, err := config.PresetConfig("openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.NewDefaultConfig()))
	})

	It("points ollama at its local OpenAI-compatible endpoint", func() {
		cfg, err := config.PresetConfig("Ollama")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Client.Endpoint).To(Equal("http://localhost:11434/v1"))
		Expect(cfg.Client.Model).NotTo(BeEmpty())
		Expect(cfg.Chat.Placeholder).To(Equal(config.NewDefaultConfig().Chat.Placeholder))
	})

	It("returns error for unknown preset", func() {
		_, err := config.PresetConfig("anthropic")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})

	It("lists every preset", func() {
		for _, name := range config.ValidPresetNames() {
			_, err := config.PresetConfig(name)
			Expect(err).NotTo(HaveOccurred())
		}
	})
})

var _ = Describe("ClientConfig.TimeoutDuration", func() {
	It("parses Go durations", func() {
		d, err := config.ClientConfig{Timeout: "90s"}.TimeoutDuration()
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(90 * time.Second))
	})

	It("treats an empty value as zero", func() {
		d, err := config.ClientConfig{}.TimeoutDuration()
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeZero())
	})

	It("rejects garbage", func() {
		_, err := config.ClientConfig{Timeout: "later"}.TimeoutDuration()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML([]byte(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Client.Model).To(BeEmpty())
	})

	It("returns error for invalid TOML", func() {
		_, err := config.ParseConfigTOML([]byte("[[["))
		Expect(err).To(HaveOccurred())
	})
})
