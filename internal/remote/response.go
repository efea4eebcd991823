package remote

import (
	"encoding/json"
	"io"
	"strings"
)

const maxResponseBodySize = 64 * 1024

// Response es la respuesta 2xx del sitio web.
type Response struct {
	StatusCode int
	Message    string
	Body       map[string]any
}

// readBody lee hasta 64 KiB e intenta parsear JSON; si no es JSON se queda con el texto.
func readBody(r io.Reader) (map[string]any, string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxResponseBodySize))
	if err != nil {
		return nil, "", err
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, "", nil
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, text, nil
	}

	return body, messageFrom(body, text), nil
}

// messageFrom toma "message", luego "error", y si no el texto crudo.
func messageFrom(body map[string]any, fallback string) string {
	for _, key := range []string{"message", "error"} {
		if v, ok := body[key].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}
