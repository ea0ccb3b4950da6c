package posts

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ParseID accepts a JSON integer or a numeric JSON string ("255"). Anything
// else is reported as ErrNotFound so the store is never queried for it.
func ParseID(raw json.RawMessage) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return 0, ErrNotFound
	}

	switch v := value.(type) {
	case json.Number:
		return parseInteger(v.String())
	case string:
		return parseInteger(strings.TrimSpace(v))
	default:
		return 0, ErrNotFound
	}
}

func parseInteger(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrNotFound
	}
	return id, nil
}
