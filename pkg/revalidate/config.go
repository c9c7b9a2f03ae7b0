package revalidate

import "time"

const defaultRetryInterval = 5 * time.Second

// Clock supplies the current time. It is used to timestamp failures and to
// turn max-age freshness into absolute expiries.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds the settings of a Coordinator.
type Config struct {
	// Name is attached to every log line and every SourceError.
	Name string `yaml:"name"`
	// RetryInterval is the minimum time between a failed refresh attempt and
	// the next one.
	RetryInterval time.Duration `yaml:"retry_interval"`
	// Clock defaults to the system clock.
	Clock Clock `yaml:"-"`
}

// LoadDefaultConfig returns a Config with the default retry interval.
func LoadDefaultConfig(name string) *Config {
	return &Config{
		Name:          name,
		RetryInterval: defaultRetryInterval,
	}
}
