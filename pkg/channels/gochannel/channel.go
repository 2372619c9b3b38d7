// Package gochannel builds an in-process watermill pub/sub for single-node
// deployments and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const outputBuffer = 1024

// CreateChannel returns one GoChannel as both publisher and subscriber.
// Messages are not persisted, so events published before Subscribe are lost.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: outputBuffer,
	}, logger)

	return pubSub, pubSub, nil
}
