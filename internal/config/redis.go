package config

type Redis struct {
	// Enabled toggles the redis-backed view cache. When false the server
	// runs with an in-memory cache, which is fine for a single instance.
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}
