package session

// Message is an inbound publication.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler receives inbound messages on the goroutine calling Pump.
type Handler func(msg Message)

// ConnectOptions are the parameters of one connect attempt.
type ConnectOptions struct {
	ClientID string
	Username string
	Password string

	WillTopic    string
	WillPayload  []byte
	WillQoS      byte
	WillRetained bool
}

// Transport is the broker connection capability.
type Transport interface {
	// Connect opens a session. It blocks until the broker answers or the
	// transport's own timeout passes.
	Connect(opts ConnectOptions) error

	// Connected reports whether the session is open.
	Connected() bool

	Subscribe(topic string, h Handler) error
	Publish(topic string, payload []byte, retained bool) error

	// Pump dispatches queued inbound messages to their handlers and returns
	// how many it dispatched. It fails if the session is no longer open.
	Pump() (int, error)

	// Disconnect closes the session without publishing anything, leaving
	// the broker to deliver the will.
	Disconnect()
}
