package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDecodeErrorUnwraps(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := error(&DecodeError{Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "decode:")

	var de *DecodeError
	assert.True(t, errors.As(err, &de))
}

func TestDialEmptyBrokerList(t *testing.T) {
	err := Dial(context.Background(), Config{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrBrokerUnreachable)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "almengine", cfg.GroupPrefix)
	assert.NotZero(t, cfg.DialTimeout)
	assert.NotZero(t, cfg.ReconnectBackoff)
}
