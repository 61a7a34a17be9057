// Package textengine matches free-text command messages against registered
// dispatch keys. Input is tokenized shell-style so quoted arguments keep
// their spaces.
package textengine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/anmitsu/go-shlex"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/coerce"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
)

var ErrEmptyKey = errors.New("empty command key")

type entry struct {
	key    []string
	exec   dispatch.ExecuteFunc
	cmd    *cmd.Command
	module reflect.Type
}

// Engine is a prefix matcher over tokenized input. It is safe for
// concurrent use.
type Engine struct {
	mu      sync.RWMutex
	entries []entry
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{}
}

// Register adds key for c. Registering a key again for a command of the
// same module replaces the earlier entry.
func (e *Engine) Register(key string, exec dispatch.ExecuteFunc, c *cmd.Command) error {
	tokens := strings.Fields(strings.ToLower(key))
	if len(tokens) == 0 {
		return ErrEmptyKey
	}
	ent := entry{key: tokens, exec: exec, cmd: c, module: moduleID(c)}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, old := range e.entries {
		if slices.Equal(old.key, tokens) && old.module == ent.module && old.cmd.Name == c.Name && old.cmd.Priority == c.Priority {
			e.entries[i] = ent
			return nil
		}
	}
	e.entries = append(e.entries, ent)
	return nil
}

// Forget removes every entry registered for commands of the module built
// from handler type typ.
func (e *Engine) Forget(typ reflect.Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = slices.DeleteFunc(e.entries, func(ent entry) bool { return ent.module == typ })
}

// Execute finds the commands whose key prefixes input and runs the best
// one. Candidates are tried by priority, then by key length, until one
// does not fail to parse. When several candidates match, parse error
// handlers stay silent until every candidate has failed; the first one is
// then resolved again so its handlers run exactly once.
func (e *Engine) Execute(ctx context.Context, inv *cmd.Invocation, input string) cmd.Result {
	tokens, err := shlex.Split(input, true)
	if err != nil {
		return cmd.Result{Kind: cmd.ResultParseFailure, Reason: "malformed input", Err: fmt.Errorf("tokenize: %w", err)}
	}

	candidates := e.match(tokens)
	if len(candidates) == 0 {
		return cmd.Result{Kind: cmd.ResultUnknownCommand, Reason: "unknown command", Err: dispatch.ErrUnknownCommand, Key: strings.Join(tokens, " ")}
	}
	if len(candidates) == 1 {
		return candidates[0].run(ctx, inv, tokens)
	}

	quiet := coerce.WithoutErrorHandlers(ctx)
	for _, cand := range candidates {
		if res := cand.run(quiet, inv, tokens); res.Kind != cmd.ResultParseFailure {
			return res
		}
	}
	return candidates[0].run(ctx, inv, tokens)
}

func (ent entry) run(ctx context.Context, inv *cmd.Invocation, tokens []string) cmd.Result {
	return ent.exec(ctx, inv, ent.cmd, bind(ent.cmd.Parameters, tokens[len(ent.key):]))
}

func (e *Engine) match(tokens []string) []entry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []entry
	for _, ent := range e.entries {
		if len(ent.key) > len(tokens) {
			continue
		}
		if sameKeyFold(ent.key, tokens[:len(ent.key)]) {
			out = append(out, ent)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].cmd.Priority != out[j].cmd.Priority {
			return out[i].cmd.Priority > out[j].cmd.Priority
		}
		return len(out[i].key) > len(out[j].key)
	})
	return out
}

// bind maps positional tokens onto parameters. A remainder parameter takes
// the rest of the input joined by spaces, a multiple parameter takes the
// rest as a list, and surplus tokens are ignored.
func bind(params []*cmd.Parameter, tokens []string) []cmd.RawValue {
	raw := make([]cmd.RawValue, 0, len(params))
	for _, p := range params {
		if len(tokens) == 0 {
			break
		}
		switch {
		case p.IsRemainder:
			raw = append(raw, cmd.RawValue{Name: p.Name, Kind: cmd.KindString, Value: strings.Join(tokens, " ")})
			tokens = nil
		case p.IsMultiple:
			raw = append(raw, cmd.RawValue{Name: p.Name, Kind: cmd.KindString, Value: append([]string(nil), tokens...)})
			tokens = nil
		default:
			raw = append(raw, cmd.RawValue{Name: p.Name, Kind: cmd.KindString, Value: tokens[0]})
			tokens = tokens[1:]
		}
	}
	return raw
}

func moduleID(c *cmd.Command) reflect.Type {
	if c == nil || c.Module == nil {
		return nil
	}
	return c.Module.Root().Type
}

func sameKeyFold(key, tokens []string) bool {
	for i := range key {
		if !strings.EqualFold(key[i], tokens[i]) {
			return false
		}
	}
	return true
}
