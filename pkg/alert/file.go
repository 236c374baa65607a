package alert

import (
	"encoding/json"
	"fmt"
	"os"
)

// FileSink appends alerts as JSON lines to a file.
type FileSink struct {
	path string
}

func NewFileSink(path string) *FileSink { return &FileSink{path: path} }

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Send(a Alert) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening alert file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(a); err != nil {
		return fmt.Errorf("writing alert: %w", err)
	}
	return nil
}
