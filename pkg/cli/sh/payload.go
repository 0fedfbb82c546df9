package sh

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/protobuf/jsonpb"

	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

// ParsePayload parses JSON into msgs.Typed, keeping the order of object
// keys. Numbers must be integers, keys which are integers, optionally
// prefixed by "#" as FormatJSON writes them, become integer keys, and
// strings prefixed by "hex:" become byte strings.
// An empty string is an empty map.
func ParsePayload(text string) (msgs.Typed, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return msgs.Map(), nil
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := parseValue(dec)
	if err != nil {
		return msgs.Typed{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return msgs.Typed{}, fmt.Errorf("unexpected data after payload")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (msgs.Typed, error) {
	tok, err := dec.Token()
	if err != nil {
		return msgs.Typed{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			list := msgs.List()
			for dec.More() {
				item, err := parseValue(dec)
				if err != nil {
					return msgs.Typed{}, err
				}
				list.Append(item)
			}
			_, err := dec.Token()
			return list, err
		case '{':
			m := msgs.Map()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return msgs.Typed{}, err
				}
				val, err := parseValue(dec)
				if err != nil {
					return msgs.Typed{}, err
				}
				m.Set(parseKey(keyTok.(string)), val)
			}
			_, err := dec.Token()
			return m, err
		}
	case json.Number:
		if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return msgs.Int(n), nil
		}
		if n, err := strconv.ParseUint(string(t), 10, 64); err == nil {
			return msgs.Uint(n), nil
		}
		return msgs.Typed{}, fmt.Errorf("unsupported number %s", t)
	case string:
		if strings.HasPrefix(t, "hex:") {
			b, err := hex.DecodeString(t[4:])
			if err != nil {
				return msgs.Typed{}, fmt.Errorf("invalid hex %q: %w", t, err)
			}
			return msgs.Bytes(b), nil
		}
		return msgs.Text(t), nil
	}
	return msgs.Typed{}, fmt.Errorf("unsupported value %v", tok)
}

func parseKey(key string) msgs.Key {
	if n, err := strconv.ParseInt(strings.TrimPrefix(key, msgs.IntKeyPrefix), 10, 64); err == nil {
		return msgs.IntKey(n)
	}
	return msgs.TextKey(key)
}

// FormatJSON formats a payload as JSON.
func FormatJSON(v msgs.Typed) (string, error) {
	m := jsonpb.Marshaler{OrigName: true}
	return m.MarshalToString(v.ProtoValue())
}
