package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// ErrMissingCredential is returned at startup when a required secret is unset.
var ErrMissingCredential = errors.New("missing credential")

const (
	keyOpenAIAPIKey  = "openai_api_key"
	keyOpenAIBaseURL = "openai_base_url"
	keyNATSURL       = "nats_url"
	keyNATSToken     = "nats_token"

	defaultNATSURL = "nats://127.0.0.1:4222"
)

// Credentials are the secrets and endpoints read from the environment.
type Credentials struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	NATSURL       string
	NATSToken     string
}

// LoadCredentials reads the process environment, falling back to a dotenv
// file at envFile when it exists. Environment variables win over the file.
func LoadCredentials(envFile string) (*Credentials, error) {
	v := viper.New()
	v.SetDefault(keyNATSURL, defaultNATSURL)
	for _, key := range []string{keyOpenAIAPIKey, keyOpenAIBaseURL, keyNATSURL, keyNATSToken} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read env file %s: %w", envFile, err)
			}
		}
	}

	return &Credentials{
		OpenAIAPIKey:  v.GetString(keyOpenAIAPIKey),
		OpenAIBaseURL: v.GetString(keyOpenAIBaseURL),
		NATSURL:       v.GetString(keyNATSURL),
		NATSToken:     v.GetString(keyNATSToken),
	}, nil
}

// RequireOpenAI fails when the agent cannot reach the language model.
func (c *Credentials) RequireOpenAI() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrMissingCredential)
	}
	return nil
}
