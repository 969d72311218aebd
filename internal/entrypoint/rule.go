package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

const (
	ruleFunction       = "entrypoint"
	defaultRuleTimeout = 2 * time.Second
)

// ErrRuleTimeout is returned when a rule runs past its time budget.
var ErrRuleTimeout = errors.New("entry point rule timeout")

// Rule is a Lua chunk defining entrypoint(path), which returns an identifier
// for path or nil. It runs with only the base, string, table and math
// libraries loaded.
type Rule struct {
	src     string
	Timeout time.Duration
}

// CompileRule checks that src parses and returns a Rule for it.
func CompileRule(src string) (*Rule, error) {
	L := newSandboxState()
	defer L.Close()
	if _, err := L.LoadString(src); err != nil {
		return nil, fmt.Errorf("entry point rule: %w", err)
	}
	return &Rule{src: src, Timeout: defaultRuleTimeout}, nil
}

func newSandboxState() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:    true,
		RegistrySize:    256,
		RegistryMaxSize: 4096,
	})
	openLib := func(name string, f lua.LGFunction) {
		L.Push(L.NewFunction(f))
		L.Push(lua.LString(name))
		L.Call(1, 0)
	}
	openLib(lua.BaseLibName, lua.OpenBase)
	openLib(lua.StringLibName, lua.OpenString)
	openLib(lua.TabLibName, lua.OpenTable)
	openLib(lua.MathLibName, lua.OpenMath)
	// base opens these; a rule has no business loading code or files.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// Map runs the rule over paths (slash separated, relative to the scan root)
// and returns one candidate per non-nil result.
func (r *Rule) Map(ctx context.Context, root string, paths []string) ([]Candidate, error) {
	L := newSandboxState()
	defer L.Close()
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRuleTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoString(r.src); err != nil {
		return nil, r.wrap(ctx, err)
	}
	fn, ok := L.GetGlobal(ruleFunction).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("entry point rule: function %s(path) is not defined", ruleFunction)
	}
	var out []Candidate
	for _, p := range paths {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(p)); err != nil {
			return nil, r.wrap(ctx, err)
		}
		ret := L.Get(-1)
		L.Pop(1)
		switch v := ret.(type) {
		case lua.LString:
			if id := strings.TrimSpace(string(v)); id != "" {
				out = append(out, Candidate{ID: id, Source: SourceConvention, Origin: root + "/" + p})
			}
		case *lua.LNilType, lua.LBool:
		default:
			return nil, fmt.Errorf("entry point rule: %s returned %s for %s, want string or nil", ruleFunction, ret.Type(), p)
		}
	}
	return out, nil
}

func (r *Rule) wrap(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrRuleTimeout, r.Timeout)
	}
	return fmt.Errorf("entry point rule: %w", err)
}
