package model

// Действия кадра WebSocket шлюза
const (
	FramePublish   = "publish"
	FrameSubscribe = "subscribe"
)

// GatewayFrame кадр обмена с WebSocket шлюзом. Payload передаётся строкой как есть,
// без проверки, что это JSON
type GatewayFrame struct {
	Action  string `json:"action"`
	Topic   string `json:"topic"`
	Payload string `json:"payload,omitempty"`
	Session string `json:"session,omitempty"`
}
