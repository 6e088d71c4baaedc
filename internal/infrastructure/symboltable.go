// Package infrastructure holds concrete implementations of the
// interfaces package's ports: symbol table, error reporting.
package infrastructure

import (
	"fmt"

	"github.com/sinterlang/sinterc/internal/domain"
	"github.com/sinterlang/sinterc/internal/interfaces"
)

// DefaultSymbolTable is a stack of lexical scopes plus the per-compilation
// monotonic counters (fresh temporaries, labels, D-string ids) and the
// string-constant pool.
type DefaultSymbolTable struct {
	currentScope *interfaces.Scope
	globalScope  *interfaces.Scope

	tempCounter  int
	labelCounter int
	dstrCounter  int

	stringPool      map[string]string // literal value -> emission name
	stringPoolOrder []string
}

func NewDefaultSymbolTable() *DefaultSymbolTable {
	global := &interfaces.Scope{
		Name:    "global",
		Symbols: make(map[string]*interfaces.Symbol),
	}
	return &DefaultSymbolTable{
		currentScope: global,
		globalScope:  global,
		stringPool:   make(map[string]string),
	}
}

func (st *DefaultSymbolTable) EnterScope(name string) *interfaces.Scope {
	scope := &interfaces.Scope{
		Name:    name,
		Parent:  st.currentScope,
		Symbols: make(map[string]*interfaces.Symbol),
	}
	st.currentScope.Children = append(st.currentScope.Children, scope)
	st.currentScope = scope
	return scope
}

func (st *DefaultSymbolTable) ExitScope() {
	if st.currentScope.Parent != nil {
		st.currentScope = st.currentScope.Parent
	}
}

func (st *DefaultSymbolTable) GetCurrentScope() *interfaces.Scope { return st.currentScope }
func (st *DefaultSymbolTable) GetGlobalScope() *interfaces.Scope  { return st.globalScope }

// DeclareSymbol fails on collision in the current scope only; shadowing an
// outer scope's symbol is allowed.
func (st *DefaultSymbolTable) DeclareSymbol(name string, symbolType domain.Type, kind interfaces.SymbolKind, location domain.SourceRange) (*interfaces.Symbol, error) {
	if _, exists := st.currentScope.Symbols[name]; exists {
		return nil, fmt.Errorf("'%s' is already defined in this scope", name)
	}
	symbol := &interfaces.Symbol{
		Name:         name,
		Type:         symbolType,
		Kind:         kind,
		Location:     location,
		EmissionName: name,
	}
	st.currentScope.Symbols[name] = symbol
	return symbol, nil
}

// LookupSymbol walks outward from the current scope.
func (st *DefaultSymbolTable) LookupSymbol(name string) (*interfaces.Symbol, bool) {
	for scope := st.currentScope; scope != nil; scope = scope.Parent {
		if symbol, exists := scope.Symbols[name]; exists {
			return symbol, true
		}
	}
	return nil, false
}

func (st *DefaultSymbolTable) LookupSymbolInScope(name string, scope *interfaces.Scope) (*interfaces.Symbol, bool) {
	symbol, exists := scope.Symbols[name]
	return symbol, exists
}

// NextTemp returns a fresh SSA temporary name, e.g. "%t3".
func (st *DefaultSymbolTable) NextTemp() string {
	st.tempCounter++
	return fmt.Sprintf("%%t%d", st.tempCounter)
}

// NextLabel returns a fresh basic-block label with the given prefix.
func (st *DefaultSymbolTable) NextLabel(prefix string) string {
	st.labelCounter++
	return fmt.Sprintf("%s.%d", prefix, st.labelCounter)
}

// NextDStringID returns a fresh integer id for a D-string instance,
// starting at 0 to match the string pool's numbering.
func (st *DefaultSymbolTable) NextDStringID() int {
	id := st.dstrCounter
	st.dstrCounter++
	return id
}

// InternString returns the pooled global name for a regular-string literal
// value, interning it on first sight (string-pool idempotence invariant).
func (st *DefaultSymbolTable) InternString(value string) string {
	if name, ok := st.stringPool[value]; ok {
		return name
	}
	name := fmt.Sprintf("@.str.%d", len(st.stringPoolOrder))
	st.stringPool[value] = name
	st.stringPoolOrder = append(st.stringPoolOrder, value)
	return name
}

// StringPool returns the pooled literals in first-sight order, paired with
// their emission names.
func (st *DefaultSymbolTable) StringPool() []struct{ Value, Name string } {
	out := make([]struct{ Value, Name string }, 0, len(st.stringPoolOrder))
	for _, v := range st.stringPoolOrder {
		out = append(out, struct{ Value, Name string }{Value: v, Name: st.stringPool[v]})
	}
	return out
}
