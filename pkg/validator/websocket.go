package validator

import (
	"net/url"

	"github.com/go-playground/validator/v10"
)

// Схемы адресов, поддерживаемые клиентом MQTT
var brokerSchemes = map[string]bool{
	"tcp":   true,
	"ssl":   true,
	"tls":   true,
	"mqtt":  true,
	"mqtts": true,
	"ws":    true,
	"wss":   true,
}

// Валидатор корректной ссылки на WebSocket
func validatorWebsocket(fl validator.FieldLevel) bool {
	address, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	addr, err := url.Parse(address)
	if err != nil {
		return false
	}
	if addr.Scheme != "ws" && addr.Scheme != "wss" {
		return false
	}
	return addr.Host != ""
}

// Валидатор адреса брокера сообщений
func validatorBroker(fl validator.FieldLevel) bool {
	address, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	addr, err := url.Parse(address)
	if err != nil {
		return false
	}
	return brokerSchemes[addr.Scheme] && addr.Host != ""
}
