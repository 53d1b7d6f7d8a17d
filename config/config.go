package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

/* Config is built once at process start and passed into the packages that
 * need it - no ambient lookups inside core logic
 */

type Config struct {
	Port string `mapstructure:"PORT"`

	// Trello application credentials. The secret is only needed when
	// callback signature verification is enabled.
	TrelloAPIKey    string `mapstructure:"TRELLO_API_KEY"`
	TrelloAPISecret string `mapstructure:"TRELLO_API_SECRET"`

	// CallbackDomain is the public base URL Trello delivers callbacks to,
	// e.g. https://hooks.example.com
	CallbackDomain string `mapstructure:"CALLBACK_DOMAIN"`

	// VerifyCallbacks enables X-Trello-Webhook signature checking
	VerifyCallbacks bool `mapstructure:"VERIFY_CALLBACKS"`

	DBPath string `mapstructure:"DB_PATH"`

	// Redis is optional - when RedisAddr is empty no stream publisher is
	// wired and callback fan-out stays in-process only
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisStream   string `mapstructure:"REDIS_STREAM"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8000")
	viper.SetDefault("DB_PATH", "trellohooks.db")
	viper.SetDefault("VERIFY_CALLBACKS", false)
	viper.SetDefault("REDIS_DB", 0)

	if err := viper.ReadInConfig(); err != nil {
		// a config file is optional - environment variables may carry
		// the whole configuration
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}

	if config.TrelloAPIKey == "" {
		return nil, fmt.Errorf("TRELLO_API_KEY is required")
	}
	if config.CallbackDomain == "" {
		return nil, fmt.Errorf("CALLBACK_DOMAIN is required")
	}
	if config.VerifyCallbacks && config.TrelloAPISecret == "" {
		return nil, fmt.Errorf("VERIFY_CALLBACKS requires TRELLO_API_SECRET")
	}

	return &config, nil
}
