package config

type Barcode struct {
	// MaxAttempts bounds the uniqueness retry loop when generating a
	// barcode. Exhausting it surfaces a generation conflict.
	MaxAttempts int `env:"BARCODE_MAX_ATTEMPTS" envDefault:"5"`
}
