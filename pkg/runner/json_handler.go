package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
)

// JSONHandler implements the IOHandler interface for structured JSON-Lines
// communication. Each step is written as one JSON object; selections are read
// one per line as a JSON string, an object with an "option_id" field, or plain
// text.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder

	lines     chan inputResult
	startOnce sync.Once
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Present(ctx context.Context, step *Step) error {
	return h.Encoder.Encode(step)
}

func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	h.startOnce.Do(func() {
		h.lines = make(chan inputResult)
		go func() {
			for {
				text, err := h.Reader.ReadString('\n')
				if text != "" {
					h.lines <- inputResult{text: text}
				}
				if err != nil {
					h.lines <- inputResult{err: err}
					close(h.lines)
					return
				}
			}
		}()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-h.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return decodeSelection(strings.TrimSpace(res.text))
	}
}

func decodeSelection(text string) (string, error) {
	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		return SanitizeInput(val)
	}
	var obj struct {
		OptionID string `json:"option_id"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return SanitizeInput(obj.OptionID)
	}
	return SanitizeInput(text)
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(map[string]string{"system": msg})
}
