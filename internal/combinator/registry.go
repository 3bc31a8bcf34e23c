package combinator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/qexpand/internal/ast"
)

// Registry is an immutable lookup table of combinators. It is safe for
// concurrent use without locking.
type Registry struct {
	byMethod map[*ast.Method]*Def
	byName   map[string]*Def
	defs     []*Def
}

// NewRegistry builds a registry from defs. Two combinators with the same
// Owner.Name are an error.
func NewRegistry(defs ...*Def) (*Registry, error) {
	r := &Registry{
		byMethod: make(map[*ast.Method]*Def, len(defs)),
		byName:   make(map[string]*Def, len(defs)),
	}
	for _, d := range defs {
		key := d.String()
		if prev, ok := r.byName[key]; ok && prev != d {
			return nil, fmt.Errorf("combinator %s registered twice", key)
		}
		if _, ok := r.byName[key]; ok {
			continue
		}
		r.byMethod[d.method] = d
		r.byName[key] = d
		r.defs = append(r.defs, d)
	}
	sort.Slice(r.defs, func(i, j int) bool { return r.defs[i].String() < r.defs[j].String() })
	return r, nil
}

// Lookup returns the combinator whose calls use m.
func (r *Registry) Lookup(m *ast.Method) (*Def, bool) {
	d, ok := r.byMethod[m]
	return d, ok
}

// ByName returns the combinator registered as owner.name.
func (r *Registry) ByName(owner, name string) (*Def, bool) {
	d, ok := r.byName[(&ast.Method{Owner: owner, Name: name}).String()]
	return d, ok
}

// Defs returns the registered combinators sorted by name.
func (r *Registry) Defs() []*Def {
	return append([]*Def(nil), r.defs...)
}

// Len returns the number of registered combinators.
func (r *Registry) Len() int {
	return len(r.defs)
}

var (
	defaultMu      sync.Mutex
	defaultPending []*Def
	defaultSealed  bool
	defaultOnce    sync.Once
	defaultReg     *Registry
)

// Define validates d and adds it to the default registry. Define is meant
// for package-level variable initialization; calling it after Default has
// been used panics.
func Define(d Def) *Def {
	def := New(d)
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSealed {
		panic(fmt.Sprintf("combinator: Define(%s) after the default registry was sealed", def))
	}
	defaultPending = append(defaultPending, def)
	return def
}

// Default returns the registry of every Define'd combinator. The first call
// seals it.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		defaultSealed = true
		reg, err := NewRegistry(defaultPending...)
		if err != nil {
			panic(err)
		}
		defaultReg = reg
		defaultPending = nil
	})
	return defaultReg
}
