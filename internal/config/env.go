package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envOverrides are the settings that may be supplied through the
// environment. Secrets belong here rather than in the YAML file.
type envOverrides struct {
	DeepgramAPIKey        string   `env:"READALONG_DEEPGRAM_API_KEY"`
	GoogleCredentialsJSON string   `env:"READALONG_GOOGLE_CREDENTIALS_JSON"`
	GoogleProjectID       string   `env:"READALONG_GOOGLE_PROJECT_ID"`
	LogLevel              LogLevel `env:"READALONG_LOG_LEVEL"`
	ListenAddr            string   `env:"READALONG_LISTEN_ADDR"`
}

// ApplyEnv overlays environment variables onto cfg. Non-empty variables win
// over file values.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{})
}

func applyEnv(cfg *Config, opts env.Options) error {
	var raw envOverrides
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}

	if raw.LogLevel != "" {
		cfg.Server.LogLevel = raw.LogLevel
	}
	if raw.ListenAddr != "" {
		cfg.Server.ListenAddr = raw.ListenAddr
	}

	apply := func(e *ProviderEntry) {
		switch e.Name {
		case "deepgram":
			if raw.DeepgramAPIKey != "" {
				e.APIKey = raw.DeepgramAPIKey
			}
		case "google":
			if raw.GoogleCredentialsJSON != "" {
				e.CredentialsJSON = raw.GoogleCredentialsJSON
			}
			if raw.GoogleProjectID != "" {
				e.ProjectID = raw.GoogleProjectID
			}
		}
	}
	apply(&cfg.Recognition.Provider)
	for i := range cfg.Recognition.FallbackProviders {
		apply(&cfg.Recognition.FallbackProviders[i])
	}
	return nil
}
