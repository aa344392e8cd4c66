package config

type Kafka struct {
	// Enabled toggles the audit relay and the remote sync consumer. The
	// in-process coordinator works without a broker.
	Enabled   bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	Addresses []string `env:"KAFKA_ADDRESSES" envSeparator:","`
	Group     string   `env:"KAFKA_GROUP" envDefault:"storecore"`
}
