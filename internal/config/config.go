package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RelayPort uint16 `env:"RELAY_PORT" envDefault:"3010" validate:"min=1000,max=65535"`

	RedisGameHost string `env:"REDIS_GAME_HOST" envDefault:"localhost"`
	RedisGamePort uint16 `env:"REDIS_GAME_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"tilt_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"tilt_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"tilt_db"`

	LeaderboardSize int `env:"LEADERBOARD_SIZE" envDefault:"10" validate:"min=1,max=100"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
