// Package json is the mutable JSON model handed to source plugins: objects
// and arrays with typed accessors and chainable setters. Serialisation and
// parsing are done by encoding/json.
package json

import "errors"

var (
	// ErrNotFound is returned when a name or index has no value.
	ErrNotFound = errors.New("json: no such value")

	// ErrWrongType is returned when a value exists but has another type.
	ErrWrongType = errors.New("json: wrong value type")
)

// Value is either an Object or an Array. String returns the serialised
// JSON text. Equality is not defined.
type Value interface {
	String() string
	isValue()
}

// Object is a modifiable set of name/value mappings. Keys keep insertion
// order when serialised.
type Object interface {
	Value

	Has(name string) bool
	Keys() []string
	Len() int

	// The getters return the value mapped by name if it exists and has the
	// requested type, or an error otherwise.
	GetBool(name string) (bool, error)
	GetInt(name string) (int, error)
	GetFloat(name string) (float64, error)
	GetString(name string) (string, error)
	GetObject(name string) (Object, error)
	GetArray(name string) (Array, error)

	// The setters map name to value, clobbering any existing mapping.
	PutBool(name string, v bool) Object
	PutInt(name string, v int) Object
	PutFloat(name string, v float64) Object
	PutString(name string, v string) Object
	PutObject(name string, v Object) Object
	PutArray(name string, v Array) Object

	Remove(name string) Object
}

// Array is a dense indexed sequence of values.
type Array interface {
	Value

	Len() int

	// The getters return the value at index if it exists and has the
	// requested type, or an error otherwise.
	GetBool(index int) (bool, error)
	GetInt(index int) (int, error)
	GetFloat(index int) (float64, error)
	GetString(index int) (string, error)
	GetObject(index int) (Object, error)
	GetArray(index int) (Array, error)

	// The adders append a value to the end of the array.
	AddBool(v bool) Array
	AddInt(v int) Array
	AddFloat(v float64) Array
	AddString(v string) Array
	AddObject(v Object) Array
	AddArray(v Array) Array
}

// Factory creates objects and arrays and parses JSON text.
type Factory interface {
	NewObject() Object
	NewArray() Array

	// Parse parses text into an Object or an Array. Any other top-level
	// value is an error.
	Parse(text string) (Value, error)
}
