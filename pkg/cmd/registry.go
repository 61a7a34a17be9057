package cmd

import (
	"errors"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Registry stores built modules and indexes their commands by dispatch key.
// It does not dispatch; adapters look commands up and hand them to a
// dispatcher. Registration is serialized, lookups read a published snapshot
// and never block.
type Registry struct {
	mu   sync.Mutex
	log  zerolog.Logger
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	modules []*Module
	byType  map[reflect.Type]int
	keys    map[string][]*Command
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	r := &Registry{log: log}
	r.snap.Store(&snapshot{byType: map[reflect.Type]int{}, keys: map[string][]*Command{}})
	return r
}

// Register builds each blueprint and publishes the result. Registering a
// handler type again replaces its previous module. Commands that fail to
// build, or whose key is already owned by another module, are skipped and
// reported in the returned error; everything else is registered.
func (r *Registry) Register(bps ...*Blueprint) ([]*Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.Load()
	next := &snapshot{
		modules: slices.Clone(old.modules),
		byType:  make(map[reflect.Type]int, len(old.byType)+len(bps)),
		keys:    make(map[string][]*Command, len(old.keys)),
	}
	for t, i := range old.byType {
		next.byType[t] = i
	}

	var (
		built   []*Module
		errs    []error
		builtAt = make(map[reflect.Type]int)
	)
	for _, bp := range bps {
		mod, buildErrs := bp.build(nil, r.log)
		errs = append(errs, buildErrs...)
		if i, ok := next.byType[bp.typ]; ok {
			next.modules[i] = mod
		} else {
			next.byType[bp.typ] = len(next.modules)
			next.modules = append(next.modules, mod)
		}
		if i, ok := builtAt[bp.typ]; ok {
			built[i] = mod
		} else {
			builtAt[bp.typ] = len(built)
			built = append(built, mod)
		}
	}
	fresh := make(map[*Module]bool, len(built))
	for _, mod := range built {
		fresh[mod] = true
	}

	// Published modules claim their keys first so a new module can never
	// take over a key from one that is already live.
	for _, mod := range next.modules {
		if !fresh[mod] {
			for _, c := range mod.AllCommands() {
				next.index(c)
			}
		}
	}
	for _, mod := range built {
		mod.Walk(func(m *Module) {
			m.Commands = slices.DeleteFunc(m.Commands, func(c *Command) bool {
				for _, k := range c.keys {
					if owner := next.owner(k); owner != nil && owner.Module.Root() != c.Module.Root() {
						err := &BuildError{Module: m.Name, Command: c.Name, Err: ErrDuplicateKey}
						r.log.Warn().Err(err).Str("key", k).Msg("command skipped")
						errs = append(errs, err)
						return true
					}
				}
				next.index(c)
				return false
			})
		})
	}
	for k := range next.keys {
		sort.SliceStable(next.keys[k], func(i, j int) bool {
			return next.keys[k][i].Priority > next.keys[k][j].Priority
		})
	}

	r.snap.Store(next)
	r.log.Debug().Int("modules", len(next.modules)).Int("keys", len(next.keys)).Msg("registry updated")
	return built, errors.Join(errs...)
}

func (s *snapshot) index(c *Command) {
	for _, k := range c.keys {
		s.keys[k] = append(s.keys[k], c)
	}
}

func (s *snapshot) owner(key string) *Command {
	if cs := s.keys[key]; len(cs) > 0 {
		return cs[0]
	}
	return nil
}

// Lookup returns the highest-priority command registered under key.
func (r *Registry) Lookup(key string) (*Command, bool) {
	cs := r.snap.Load().keys[normalizeKey(key)]
	if len(cs) == 0 {
		return nil, false
	}
	return cs[0], true
}

// Overloads returns every command registered under key, highest priority first.
func (r *Registry) Overloads(key string) []*Command {
	return slices.Clone(r.snap.Load().keys[normalizeKey(key)])
}

// Modules returns the top-level modules in registration order.
func (r *Registry) Modules() []*Module {
	return slices.Clone(r.snap.Load().modules)
}

// Module returns the top-level module with the given name, case-insensitively.
func (r *Registry) Module(name string) (*Module, bool) {
	for _, m := range r.snap.Load().modules {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return nil, false
}

// Commands returns all registered commands sorted by primary key.
func (r *Registry) Commands() []*Command {
	var out []*Command
	for _, m := range r.snap.Load().modules {
		out = append(out, m.AllCommands()...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Keys returns every registered dispatch key, sorted.
func (r *Registry) Keys() []string {
	snap := r.snap.Load()
	keys := make([]string, 0, len(snap.keys))
	for k := range snap.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
