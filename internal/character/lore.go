package character

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field is one lore entry.
type Field struct {
	Key   string
	Value any
}

// Lore is an ordered set of lore fields. Values are strings, json.Number,
// bool, nil, []any or nested Lore. File order is kept through decoding
// and encoding.
type Lore []Field

// Get returns the value stored under key.
func (l Lore) Get(key string) (any, bool) {
	for _, f := range l {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the value under key when it is a string.
func (l Lore) String(key string) string {
	v, _ := l.Get(key)
	s, _ := v.(string)
	return s
}

// MarshalJSON encodes the lore as an object in field order.
func (l Lore) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding lore field %q: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping its key order.
func (l *Lore) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return fmt.Errorf("decoding lore: %w", err)
	}
	switch lore := v.(type) {
	case Lore:
		*l = lore
	case nil:
		*l = nil
	default:
		return errors.New("lore must be an object")
	}
	return nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		lore := Lore{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", keyTok)
			}
			val, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			lore = append(lore, Field{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return lore, nil
	case '[':
		list := []any{}
		for dec.More() {
			val, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// UnmarshalYAML decodes a mapping node keeping its key order.
func (l *Lore) UnmarshalYAML(node *yaml.Node) error {
	v, err := decodeYAMLValue(node)
	if err != nil {
		return fmt.Errorf("decoding lore: %w", err)
	}
	switch lore := v.(type) {
	case Lore:
		*l = lore
	case nil:
		*l = nil
	default:
		return errors.New("lore must be a mapping")
	}
	return nil
}

func decodeYAMLValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return decodeYAMLValue(node.Content[0])
	case yaml.AliasNode:
		return decodeYAMLValue(node.Alias)
	case yaml.MappingNode:
		lore := Lore{}
		for i := 0; i+1 < len(node.Content); i += 2 {
			val, err := decodeYAMLValue(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			lore = append(lore, Field{Key: node.Content[i].Value, Value: val})
		}
		return lore, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			val, err := decodeYAMLValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case int, int64, uint64, float64:
			return json.Number(fmt.Sprint(n)), nil
		default:
			return v, nil
		}
	default:
		return nil, fmt.Errorf("unsupported yaml node kind %d", node.Kind)
	}
}
