package main

import (
	"os"

	// transports register themselves via init()
	_ "github.com/trickstertwo/xeda/adapter/amqp"
	_ "github.com/trickstertwo/xeda/adapter/kafka"
	_ "github.com/trickstertwo/xeda/adapter/memory"
	_ "github.com/trickstertwo/xeda/adapter/mqtt"
	_ "github.com/trickstertwo/xeda/adapter/redisstream"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
