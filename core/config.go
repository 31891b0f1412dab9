package core

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env             string        `yaml:"env" env:"BOT_ENV" env-default:"prod"`
	TelegramApiKey  string        `yaml:"telegram_api_key" env:"TELEGRAM_BOT_TOKEN" env-required:"true"`
	RunwareApiKey   string        `yaml:"runware_api_key" env:"RUNWARE_API_KEY" env-required:"true"`
	RunwareURL      string        `yaml:"runware_url" env:"RUNWARE_URL" env-default:"https://api.runware.ai/v1"`
	MaxPromptLength int           `yaml:"max_prompt_length" env:"MAX_PROMPT_LENGTH" env-default:"1000"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL" env-default:"2s"`
	PollTimeout     time.Duration `yaml:"poll_timeout" env:"POLL_TIMEOUT" env-default:"90s"`
	MaxAttempts     int           `yaml:"max_attempts" env:"MAX_ATTEMPTS" env-default:"3"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay" env:"RETRY_BASE_DELAY" env-default:"500ms"`
	RateLimitDelay  time.Duration `yaml:"rate_limit_delay" env:"RATE_LIMIT_DELAY" env-default:"10s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"60s"`
	HistorySize     int           `yaml:"history_size" env:"HISTORY_SIZE" env-default:"20"`
	Mongo           struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:""`
	} `yaml:"mongo"`
}

var instance *Config
var once sync.Once

// GetConfig reads the config file when one exists at path, otherwise falls
// back to environment variables only. The result is cached for the lifetime
// of the process.
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if _, statErr := os.Stat(path); statErr == nil {
			err = cleanenv.ReadConfig(path, instance)
		} else {
			err = cleanenv.ReadEnv(instance)
		}
		if err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}

func MustLoad(path string) *Config {
	conf, err := GetConfig(path)
	if err != nil {
		log.Fatal(err)
	}
	return conf
}
