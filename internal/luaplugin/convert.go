package luaplugin

import (
	"errors"
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/litescript/oxviewer/pkg/json"
)

// isArray reports whether t only has keys 1..n.
func isArray(t *lua.LTable) bool {
	n := 0
	ok := true
	t.ForEach(func(k, _ lua.LValue) {
		n++
		if num, isNum := k.(lua.LNumber); !isNum || float64(num) != math.Trunc(float64(num)) || num < 1 {
			ok = false
		}
	})
	return ok && n > 0 && n == t.Len()
}

// maxDepth bounds table nesting in toJSON.
const maxDepth = 64

// toJSON converts a table into an Object or, for a sequence, an Array.
// nil and functions are dropped. A table that contains itself, or nesting
// deeper than maxDepth, is an error.
func toJSON(f json.Factory, t *lua.LTable) (json.Value, error) {
	c := converter{f: f, seen: map[*lua.LTable]bool{}}
	return c.table(t, 0)
}

type converter struct {
	f    json.Factory
	seen map[*lua.LTable]bool
}

func (c converter) table(t *lua.LTable, depth int) (json.Value, error) {
	if depth >= maxDepth {
		return nil, fmt.Errorf("table nested deeper than %d", maxDepth)
	}
	if c.seen[t] {
		return nil, errors.New("table contains itself")
	}
	c.seen[t] = true
	defer delete(c.seen, t)

	if isArray(t) {
		arr := c.f.NewArray()
		for i := 1; i <= t.Len(); i++ {
			if err := c.add(arr, t.RawGetInt(i), depth); err != nil {
				return nil, err
			}
		}
		return arr, nil
	}

	obj := c.f.NewObject()
	var keys []string
	values := map[string]lua.LValue{}
	t.ForEach(func(k, v lua.LValue) {
		keys = append(keys, k.String())
		values[k.String()] = v
	})
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.put(obj, k, values[k], depth); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (c converter) put(obj json.Object, name string, v lua.LValue, depth int) error {
	switch v := v.(type) {
	case lua.LBool:
		obj.PutBool(name, bool(v))
	case lua.LNumber:
		if n := float64(v); n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			obj.PutInt(name, int(n))
		} else {
			obj.PutFloat(name, n)
		}
	case lua.LString:
		obj.PutString(name, string(v))
	case *lua.LTable:
		j, err := c.table(v, depth+1)
		if err != nil {
			return err
		}
		switch j := j.(type) {
		case json.Array:
			obj.PutArray(name, j)
		case json.Object:
			obj.PutObject(name, j)
		}
	}
	return nil
}

func (c converter) add(arr json.Array, v lua.LValue, depth int) error {
	switch v := v.(type) {
	case lua.LBool:
		arr.AddBool(bool(v))
	case lua.LNumber:
		if n := float64(v); n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			arr.AddInt(int(n))
		} else {
			arr.AddFloat(n)
		}
	case lua.LString:
		arr.AddString(string(v))
	case *lua.LTable:
		j, err := c.table(v, depth+1)
		if err != nil {
			return err
		}
		switch j := j.(type) {
		case json.Array:
			arr.AddArray(j)
		case json.Object:
			arr.AddObject(j)
		}
	}
	return nil
}

// fromJSON converts an Object or Array into a table. JSON null becomes nil.
func fromJSON(L *lua.LState, v json.Value) lua.LValue {
	t := L.NewTable()
	switch v := v.(type) {
	case json.Object:
		for _, k := range v.Keys() {
			t.RawSetString(k, objectField(L, v, k))
		}
	case json.Array:
		for i := 0; i < v.Len(); i++ {
			t.RawSetInt(i+1, arrayItem(L, v, i))
		}
	}
	return t
}

func objectField(L *lua.LState, o json.Object, k string) lua.LValue {
	if x, err := o.GetObject(k); err == nil {
		return fromJSON(L, x)
	}
	if x, err := o.GetArray(k); err == nil {
		return fromJSON(L, x)
	}
	if x, err := o.GetString(k); err == nil {
		return lua.LString(x)
	}
	if x, err := o.GetBool(k); err == nil {
		return lua.LBool(x)
	}
	if x, err := o.GetFloat(k); err == nil {
		return lua.LNumber(x)
	}
	return lua.LNil
}

func arrayItem(L *lua.LState, a json.Array, i int) lua.LValue {
	if x, err := a.GetObject(i); err == nil {
		return fromJSON(L, x)
	}
	if x, err := a.GetArray(i); err == nil {
		return fromJSON(L, x)
	}
	if x, err := a.GetString(i); err == nil {
		return lua.LString(x)
	}
	if x, err := a.GetBool(i); err == nil {
		return lua.LBool(x)
	}
	if x, err := a.GetFloat(i); err == nil {
		return lua.LNumber(x)
	}
	return lua.LNil
}
