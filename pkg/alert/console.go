package alert

import "fmt"

// ConsoleSink prints alerts to stdout; it is the default sink so a
// manual run shows drops without any configuration.
type ConsoleSink struct{}

func NewConsoleSink() *ConsoleSink { return &ConsoleSink{} }

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Send(a Alert) error {
	fmt.Printf("[PRICE DROP] %s @ %s: $%d -> $%d (-%.1f%%) %s\n",
		a.Product, a.Store, a.OldPrice, a.NewPrice, a.DropPercent, a.URL)
	return nil
}
