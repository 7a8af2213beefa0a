package notify

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSSE writes one Server-Sent Events frame with a JSON data line.
func WriteSSE(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	return nil
}
