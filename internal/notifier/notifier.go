package notifier

// Notifier pushes human-facing status messages to an external channel.
// Delivery is best-effort; failures must never interrupt trading.
type Notifier interface {
	Notify(message string)
}

// Nop discards all messages. Used when no channel is configured.
type Nop struct{}

func (Nop) Notify(string) {}

// Ping always succeeds; there is no channel to probe.
func (Nop) Ping() error { return nil }
