// Package statsd wraps the statsd calls the registry makes. It hides the
// datadog dependency behind a package client that discards everything until
// Init is called.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// EmitTiming reports the time elapsed since start under name.
func EmitTiming(start time.Time, name string, tags ...string) {
	if err := Client().Timing(name, time.Since(start), tags, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit %s timing: %v", name, err)
	}
}

func Gauge(name string, value float64, tags ...string) {
	if err := Client().Gauge(name, value, tags, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit %s gauge: %v", name, err)
	}
}

func Count(name string, value int64, tags ...string) {
	if err := Client().Count(name, value, tags, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit %s count: %v", name, err)
	}
}

func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics
		ddstatsd.WithNamespace("depot"),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}
	client = newClient
	return nil
}

// Close flushes and closes the client and restores the no-op client.
func Close() error {
	c := client
	client = &ddstatsd.NoOpClient{}
	return c.Close()
}
