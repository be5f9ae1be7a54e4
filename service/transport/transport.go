// Package transport реализации TransportSvc: MQTT, Kafka и WebSocket шлюз.
package transport

import (
	"github.com/kirsrus/termopad/agent/pkg/validator"
)

var validatorGet = validator.Get
