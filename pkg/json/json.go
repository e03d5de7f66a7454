package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var ErrNoObject = errors.New("no JSON object found")

var (
	jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	anyFence  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
)

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}

// Fenced returns the body of the first ```json block in content, falling back
// to the first fenced block of any language.
func Fenced(content string) (string, bool) {
	if m := jsonFence.FindStringSubmatch(content); m != nil {
		return m[1], true
	}
	if m := anyFence.FindStringSubmatch(content); m != nil {
		return m[1], true
	}
	return "", false
}

// ExtractObject pulls a JSON object out of a fenced block in free-form model
// output. It fails with ErrNoObject when there is no fenced block.
func ExtractObject(content string) (map[string]any, error) {
	body, ok := Fenced(content)
	if !ok {
		return nil, ErrNoObject
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse fenced JSON: %w", err)
	}
	if obj == nil {
		return nil, ErrNoObject
	}

	return obj, nil
}

// DecodeLoose unmarshals content into v, accepting either bare JSON or JSON
// wrapped in a fenced block.
func DecodeLoose(content string, v any) error {
	body := strings.TrimSpace(content)
	if fenced, ok := Fenced(body); ok {
		body = fenced
	}
	return json.Unmarshal([]byte(body), v)
}

// Text renders a decoded JSON value for display: strings as they are, null as
// an empty string, anything else as compact JSON.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
