// Package luaplugin runs source plugins written in Lua. Each plugin gets its
// own sandboxed interpreter with the http, html, json and log modules.
package luaplugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultTimeout bounds loading a script and every call into it.
const DefaultTimeout = 30 * time.Second

const (
	// maxStringSize caps strings built by string.rep.
	maxStringSize = 16 << 20
	callStackSize = 256
	// registryMaxSize caps the value stack; overflowing it raises an error.
	registryMaxSize = 256 * 1024
)

// sandbox serialises access to a Lua state, which is not safe for
// concurrent use.
type sandbox struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	closed  bool
}

func newSandbox(timeout time.Duration) *sandbox {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:    true,
		CallStackSize:   callStackSize,
		RegistryMaxSize: registryMaxSize,
	})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// The string metatable indexes this same table, so s:rep is capped too.
	if str, ok := L.GetGlobal("string").(*lua.LTable); ok {
		str.RawSetString("rep", L.NewFunction(stringRep))
	}

	for _, name := range []string{
		"dofile", "loadfile", "load", "loadstring", "require", "module",
		"rawequal", "rawget", "rawset", "getmetatable", "setmetatable",
		"collectgarbage",
	} {
		L.SetGlobal(name, lua.LNil)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &sandbox{L: L, timeout: timeout}
}

var errClosed = errors.New("lua plugin is closed")

func stringRep(L *lua.LState) int {
	str := L.CheckString(1)
	n := L.CheckInt(2)
	if n <= 0 || str == "" {
		L.Push(lua.LString(""))
		return 1
	}
	if n > maxStringSize/len(str) {
		L.RaiseError("string.rep: result larger than %d bytes", maxStringSize)
		return 0
	}
	L.Push(lua.LString(strings.Repeat(str, n)))
	return 1
}

// run calls fn with the state bound to ctx plus the sandbox timeout.
func (s *sandbox) run(ctx context.Context, fn func(L *lua.LState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	err := fn(s.L)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("lua call timed out after %v: %w", s.timeout, err)
	}
	return err
}

// call invokes fn with args and returns its single result.
func (s *sandbox) call(ctx context.Context, fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	var ret lua.LValue = lua.LNil
	err := s.run(ctx, func(L *lua.LState) error {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
			return err
		}
		ret = L.Get(-1)
		L.Pop(1)
		return nil
	})
	return ret, err
}

func (s *sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.L.Close()
	}
	return nil
}
