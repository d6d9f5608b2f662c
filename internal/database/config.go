package database

// DatabaseConfig is a subset of the configuration focusing solely
// on database connection items
type DatabaseConfig struct {
	User     string `yaml:"username" env:"DB_USERNAME"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Name     string `yaml:"name" env:"DB_NAME" env-default:"REEL_DB"`
	Host     string `yaml:"host" env:"DB_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"DB_PORT" env-default:"5432"`

	// ConnectAttempts is the number of times the initial ping of the
	// database is attempted before giving up.
	ConnectAttempts int `yaml:"connect_attempts" env:"DB_CONNECT_ATTEMPTS" env-default:"5"`
}

// Redacted returns a copy of the config which is safe to log.
func (config DatabaseConfig) Redacted() DatabaseConfig {
	if config.Password != "" {
		config.Password = "********"
	}

	return config
}
