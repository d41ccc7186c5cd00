package statsd

import (
	"testing"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpByDefault(t *testing.T) {
	_, ok := Client().(*ddstatsd.NoOpClient)
	assert.True(t, ok)
	EmitTiming(time.Now(), "noop")
	Gauge("noop", 1)
	Count("noop", 1, "tag:a")
}

func TestInit(t *testing.T) {
	assert.Error(t, Init("", nil))

	require.NoError(t, Init("127.0.0.1:8125", []string{"env:test"}))
	_, ok := Client().(*ddstatsd.NoOpClient)
	assert.False(t, ok)
	Gauge("entities.live", 3)

	require.NoError(t, Close())
	_, ok = Client().(*ddstatsd.NoOpClient)
	assert.True(t, ok)
}
