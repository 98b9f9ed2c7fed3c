package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a feature value: a Number, a Text or a List of values.
// The set of implementations is closed.
type Value interface {
	isValue()
	String() string
}

// Number is a numeric feature value
type Number float64

// Text is a categorical feature value
type Text string

// List is an ordered sequence of values, produced by file lists and by
// parsers that emit more than one value per file
type List []Value

func (Number) isValue() {}
func (Text) isValue()   {}
func (List) isValue()   {}

func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'g', -1, 64)
}

func (t Text) String() string {
	return string(t)
}

func (l List) String() string {
	var b bytes.Buffer
	b.WriteByte('[')
	for i, v := range l {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
	}
	b.WriteByte(']')
	return b.String()
}

// Numbers builds a List of Number values
func Numbers(values ...float64) List {
	list := make(List, len(values))
	for i, v := range values {
		list[i] = Number(v)
	}
	return list
}

// MarshalValue encodes a value as JSON
func MarshalValue(v Value) ([]byte, error) {
	return json.Marshal(toPlain(v))
}

func toPlain(v Value) any {
	switch t := v.(type) {
	case Number:
		return float64(t)
	case Text:
		return string(t)
	case List:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = toPlain(item)
		}
		return out
	default:
		return nil
	}
}

// UnmarshalValue decodes a value previously encoded with MarshalValue
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return fromPlain(raw)
}

func fromPlain(raw any) (Value, error) {
	switch t := raw.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case string:
		return Text(t), nil
	case []any:
		list := make(List, len(t))
		for i, item := range t {
			v, err := fromPlain(item)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}
