package config

const (
	defaultEndpoint = "https://api.openai.com/v1"
	defaultModel    = "gpt-4o-mini"
	defaultTimeout  = "5m"

	defaultPlaceholder = "Assistant is thinking..."
	defaultSaveFile    = "outfile.txt"

	defaultKafkaTopic = "parley.exchanges"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			Endpoint: defaultEndpoint,
			Model:    defaultModel,
			Timeout:  defaultTimeout,
		},
		Chat: ChatConfig{
			Placeholder: defaultPlaceholder,
			SaveFile:    defaultSaveFile,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
