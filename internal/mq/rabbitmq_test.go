package mq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/apiserver/config"
)

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))

	attrs := headersToAttributes(amqp.Table{
		"kind":    "verify_otp",
		"raw":     []byte("bytes"),
		"attempt": int32(2),
	})
	assert.Equal(t, map[string]string{"kind": "verify_otp", "raw": "bytes", "attempt": "2"}, attrs)
}

func TestNewRabbitMQClient_RequiresURL(t *testing.T) {
	_, err := NewRabbitMQClient(config.RabbitMQConfig{})
	require.Error(t, err)
}
