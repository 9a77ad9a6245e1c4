package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Render replaces {key} placeholders in the title and body.
func (m MessageText) Render(vars map[string]string) MessageText {
	if len(vars) == 0 {
		return m
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	return MessageText{Title: r.Replace(m.Title), Body: r.Replace(m.Body)}
}

type Messages struct {
	ConnectionNeedsAttention MessageText `json:"connection_needs_attention"`
}

// Default returns the built-in English texts.
func Default() *Messages {
	return &Messages{
		ConnectionNeedsAttention: MessageText{
			Title: "Connection needs attention",
			Body:  "We couldn't sync {connection}. Please reconnect it to keep your accounts up to date.",
		},
	}
}

// Load reads a notifications JSON file. Texts missing from the file keep
// their default value.
func Load(path string) (*Messages, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}

	msgs := Default()
	if err := json.Unmarshal(data, msgs); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}
	return msgs, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (*Messages, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
