package config

import (
	env "github.com/Netflix/go-env"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Addr      string `env:"ADDR,default=:8080"`
	Database  string `env:"DB_DSN,required=true"`
	JWTSecret string `env:"JWT_SECRET,required=true"`
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
}

func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
