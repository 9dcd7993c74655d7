package json

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
)

type stdFactory struct{}

// NewFactory returns a Factory backed by encoding/json.
func NewFactory() Factory {
	return stdFactory{}
}

func (stdFactory) NewObject() Object {
	return newObject()
}

func (stdFactory) NewArray() Array {
	return &array{}
}

func (stdFactory) Parse(text string) (Value, error) {
	dec := stdjson.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("json: parse: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("json: parse: trailing data after top-level value")
	}

	switch v := v.(type) {
	case *object:
		return v, nil
	case *array:
		return v, nil
	default:
		return nil, fmt.Errorf("json: parse: top-level value is not an object or array")
	}
}

// decodeValue walks the token stream so object keys keep their order.
func decodeValue(dec *stdjson.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case stdjson.Delim:
		switch t {
		case '{':
			o := newObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				o.put(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return o, nil
		case '[':
			a := &array{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				a.values = append(a.values, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return a, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		// bool, string, json.Number or nil
		return t, nil
	}
}

type object struct {
	keys   []string
	values map[string]any
}

func newObject() *object {
	return &object{values: make(map[string]any)}
}

func (*object) isValue() {}

func (o *object) put(name string, v any) {
	if _, ok := o.values[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.values[name] = v
}

func (o *object) Has(name string) bool {
	_, ok := o.values[name]
	return ok
}

func (o *object) Keys() []string {
	return append([]string(nil), o.keys...)
}

func (o *object) Len() int {
	return len(o.keys)
}

func (o *object) get(name string) (any, error) {
	v, ok := o.values[name]
	if !ok {
		return nil, fmt.Errorf("%w: name %q", ErrNotFound, name)
	}
	return v, nil
}

func (o *object) GetBool(name string) (bool, error) {
	v, err := o.get(name)
	if err != nil {
		return false, err
	}
	return asBool(v, name)
}

func (o *object) GetInt(name string) (int, error) {
	v, err := o.get(name)
	if err != nil {
		return 0, err
	}
	return asInt(v, name)
}

func (o *object) GetFloat(name string) (float64, error) {
	v, err := o.get(name)
	if err != nil {
		return 0, err
	}
	return asFloat(v, name)
}

func (o *object) GetString(name string) (string, error) {
	v, err := o.get(name)
	if err != nil {
		return "", err
	}
	return asString(v, name)
}

func (o *object) GetObject(name string) (Object, error) {
	v, err := o.get(name)
	if err != nil {
		return nil, err
	}
	return asObject(v, name)
}

func (o *object) GetArray(name string) (Array, error) {
	v, err := o.get(name)
	if err != nil {
		return nil, err
	}
	return asArray(v, name)
}

func (o *object) PutBool(name string, v bool) Object {
	o.put(name, v)
	return o
}

func (o *object) PutInt(name string, v int) Object {
	o.put(name, int64(v))
	return o
}

func (o *object) PutFloat(name string, v float64) Object {
	o.put(name, v)
	return o
}

func (o *object) PutString(name string, v string) Object {
	o.put(name, v)
	return o
}

func (o *object) PutObject(name string, v Object) Object {
	o.put(name, v)
	return o
}

func (o *object) PutArray(name string, v Array) Object {
	o.put(name, v)
	return o
}

func (o *object) Remove(name string) Object {
	if _, ok := o.values[name]; !ok {
		return o
	}
	delete(o.values, name)
	for i, k := range o.keys {
		if k == name {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return o
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := stdjson.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := writeValue(&buf, o.values[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *object) String() string {
	return serialise(o)
}

type array struct {
	values []any
}

func (*array) isValue() {}

func (a *array) Len() int {
	return len(a.values)
}

func (a *array) get(index int) (any, error) {
	if index < 0 || index >= len(a.values) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return a.values[index], nil
}

func (a *array) GetBool(index int) (bool, error) {
	v, err := a.get(index)
	if err != nil {
		return false, err
	}
	return asBool(v, index)
}

func (a *array) GetInt(index int) (int, error) {
	v, err := a.get(index)
	if err != nil {
		return 0, err
	}
	return asInt(v, index)
}

func (a *array) GetFloat(index int) (float64, error) {
	v, err := a.get(index)
	if err != nil {
		return 0, err
	}
	return asFloat(v, index)
}

func (a *array) GetString(index int) (string, error) {
	v, err := a.get(index)
	if err != nil {
		return "", err
	}
	return asString(v, index)
}

func (a *array) GetObject(index int) (Object, error) {
	v, err := a.get(index)
	if err != nil {
		return nil, err
	}
	return asObject(v, index)
}

func (a *array) GetArray(index int) (Array, error) {
	v, err := a.get(index)
	if err != nil {
		return nil, err
	}
	return asArray(v, index)
}

func (a *array) AddBool(v bool) Array {
	a.values = append(a.values, v)
	return a
}

func (a *array) AddInt(v int) Array {
	a.values = append(a.values, int64(v))
	return a
}

func (a *array) AddFloat(v float64) Array {
	a.values = append(a.values, v)
	return a
}

func (a *array) AddString(v string) Array {
	a.values = append(a.values, v)
	return a
}

func (a *array) AddObject(v Object) Array {
	a.values = append(a.values, v)
	return a
}

func (a *array) AddArray(v Array) Array {
	a.values = append(a.values, v)
	return a
}

func (a *array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range a.values {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(&buf, v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (a *array) String() string {
	return serialise(a)
}

func serialise(v stdjson.Marshaler) string {
	b, err := v.MarshalJSON()
	if err != nil {
		// Only non-finite floats can fail here.
		return ""
	}
	return string(b)
}

func writeValue(buf *bytes.Buffer, v any) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return fmt.Errorf("json: unsupported float value %v", f)
	}
	b, err := stdjson.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func wrongType(at any, want string, got any) error {
	return fmt.Errorf("%w: %v is %T, not %s", ErrWrongType, at, got, want)
}

func asBool(v any, at any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, wrongType(at, "bool", v)
	}
	return b, nil
}

func asInt(v any, at any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case stdjson.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, wrongType(at, "int", n.String())
		}
		return int(i), nil
	default:
		return 0, wrongType(at, "int", v)
	}
}

func asFloat(v any, at any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case stdjson.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, wrongType(at, "float", n.String())
		}
		return f, nil
	default:
		return 0, wrongType(at, "float", v)
	}
}

func asString(v any, at any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", wrongType(at, "string", v)
	}
	return s, nil
}

func asObject(v any, at any) (Object, error) {
	o, ok := v.(Object)
	if !ok {
		return nil, wrongType(at, "object", v)
	}
	return o, nil
}

func asArray(v any, at any) (Array, error) {
	a, ok := v.(Array)
	if !ok {
		return nil, wrongType(at, "array", v)
	}
	return a, nil
}
