package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	for _, brokers := range [][]string{nil, {""}} {
		_, _, err := CreateChannel(watermill.NopLogger{}, brokers, "journey")
		assert.ErrorIs(t, err, ErrNoBrokers)
	}
}
