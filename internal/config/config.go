package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración de ambos binarios (API y cliente TUI).
type Config struct {
	HTTPPort    string `env:"API_PORT" envDefault:"8000"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	DatabaseURL string `env:"DATABASE_URL"`

	LLMAPIKey  string `env:"LLM_API_KEY"`
	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Lado cliente.
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	StatePath  string `env:"CHATBOX_STATE_PATH"`
	UserID     int64  `env:"CHATBOX_USER_ID" envDefault:"1"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
