package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Server configuration
	Server struct {
		Port   string `env:"SERVER_PORT" envDefault:"5250"`
		DBPath string `env:"DB_PATH" envDefault:"database/dvf.db"`
	}

	// DVF source configuration
	Source struct {
		// Base URL of the open-data mirror serving the DVF extracts
		BaseURL string `env:"DVF_BASE_URL" envDefault:"https://files.data.gouv.fr/dvf"`

		// Download timeout in seconds
		DownloadTimeout int `env:"DVF_DOWNLOAD_TIMEOUT" envDefault:"120"`
	}

	// Import configuration
	Import struct {
		// Number of transactions persisted per batch
		BatchSize int `env:"IMPORT_BATCH_SIZE" envDefault:"500"`

		// Number of concurrent import workers
		WorkerCount int `env:"IMPORT_WORKER_COUNT" envDefault:"2"`

		// Maximum number of retries for a failed batch
		MaxRetries int `env:"IMPORT_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"IMPORT_RETRY_DELAY" envDefault:"5"`
	}

	// Notification configuration
	Notify struct {
		// Buffer size of the notification outbox
		QueueSize int `env:"NOTIFY_QUEUE_SIZE" envDefault:"64"`
	}

	// Scheduled refresh configuration
	Refresh struct {
		// Cron expression for re-importing monitored departments
		Cron string `env:"DVF_REFRESH_CRON" envDefault:"0 3 * * *"`

		// Department codes to refresh, comma separated
		Departments []string `env:"DVF_DEPARTMENTS" envSeparator:"," envDefault:"75,92,93,94"`

		Enabled bool `env:"DVF_REFRESH_ENABLED" envDefault:"false"`
	}

	// Optional Telegram operator channel
	Telegram struct {
		BotToken string `env:"TELEGRAM_BOT_TOKEN"`
		ChatID   string `env:"TELEGRAM_CHAT_ID"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
