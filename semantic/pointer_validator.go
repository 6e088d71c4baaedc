package semantic

import (
	"fmt"

	"github.com/sinterlang/sinterc/internal/domain"
)

// PointerState is the lifecycle state of a single allocated binding.
type PointerState int

const (
	Allocated PointerState = iota
	Released
	Cleaned
)

func (s PointerState) String() string {
	switch s {
	case Allocated:
		return "allocated"
	case Released:
		return "released"
	case Cleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

// PointerTracker holds the pointer states declared in one lexical scope,
// chained to its enclosing scope so release()/clean() calls on a binding
// declared outside the current block still resolve.
type PointerTracker struct {
	parent *PointerTracker
	states map[string]PointerState
	locs   map[string]domain.SourceRange
}

func newPointerTracker(parent *PointerTracker) *PointerTracker {
	return &PointerTracker{
		parent: parent,
		states: make(map[string]PointerState),
		locs:   make(map[string]domain.SourceRange),
	}
}

func (t *PointerTracker) allocate(name string, loc domain.SourceRange) {
	t.states[name] = Allocated
	t.locs[name] = loc
}

func (t *PointerTracker) release(name string) {
	if _, ok := t.states[name]; ok {
		t.states[name] = Released
		return
	}
	if t.parent != nil {
		t.parent.release(name)
	}
}

func (t *PointerTracker) clean(name string) {
	if _, ok := t.states[name]; ok {
		t.states[name] = Cleaned
		return
	}
	if t.parent != nil {
		t.parent.clean(name)
	}
}

func (t *PointerTracker) getState(name string) (PointerState, bool) {
	if s, ok := t.states[name]; ok {
		return s, true
	}
	if t.parent != nil {
		return t.parent.getState(name)
	}
	return 0, false
}

// setMerged records the result of a branch merge directly in this
// tracker's local map, as if the binding had been declared here.
func (t *PointerTracker) setMerged(name string, state PointerState, loc domain.SourceRange) {
	t.states[name] = state
	if _, ok := t.locs[name]; !ok {
		t.locs[name] = loc
	}
}

type uncleanedPointer struct {
	name string
	loc  domain.SourceRange
}

// uncleanedChain walks this tracker and every ancestor, innermost first,
// resolving each name's effective state (the innermost scope that
// mentions a name wins, matching lexical shadowing) and reports every
// one still allocated. A return statement exits the whole function, not
// just the block it appears in, so every enclosing scope must be
// checked, not only the tightest one.
func uncleanedChain(t *PointerTracker) []uncleanedPointer {
	seen := make(map[string]bool)
	var result []uncleanedPointer
	for cur := t; cur != nil; cur = cur.parent {
		for name, state := range cur.states {
			if seen[name] {
				continue
			}
			seen[name] = true
			if state == Allocated {
				result = append(result, uncleanedPointer{name: name, loc: cur.locs[name]})
			}
		}
	}
	return result
}

// mergeBranches folds the exit states of an if/else pair into the parent
// tracker via a least-upper-bound join, so allocations performed inside a
// branch are still visible (and still checked) once the if statement
// completes, instead of vanishing with the discarded child tracker.
func (v *PointerValidator) mergeBranches(parent, then, els *PointerTracker) {
	names := make(map[string]bool)
	for name := range then.states {
		names[name] = true
	}
	for name := range els.states {
		names[name] = true
	}

	for name := range names {
		thenState, thenOK := then.states[name]
		if !thenOK {
			thenState, thenOK = parent.getState(name)
		}
		elseState, elseOK := els.states[name]
		if !elseOK {
			elseState, elseOK = parent.getState(name)
		}

		loc := then.locs[name]
		if _, ok := then.locs[name]; !ok {
			loc = els.locs[name]
		}

		switch {
		case thenOK && elseOK:
			if thenState == elseState {
				parent.setMerged(name, thenState, loc)
				continue
			}
			joined, asymmetric := joinStates(thenState, elseState)
			if asymmetric {
				v.reportWarning(
					fmt.Sprintf("pointer '%s' is cleaned in one branch but not the other; consider cleaning in both branches or after the if statement", name),
					loc,
				)
			}
			parent.setMerged(name, joined, loc)
		case thenOK:
			parent.setMerged(name, thenState, loc)
		case elseOK:
			parent.setMerged(name, elseState, loc)
		}
	}
}

// joinStates computes the least-upper-bound of two branch-exit states.
// allocated dominates any other state (the binding might still leak on
// one of the two paths), a flagged asymmetric cleanup; released and
// cleaned agree with themselves; a released/cleaned mix is reported as
// neither still allocated, so it is not an error, and is recorded as
// released (no longer this scope's responsibility either way).
func joinStates(a, b PointerState) (PointerState, bool) {
	if a == b {
		return a, false
	}
	if a == Allocated || b == Allocated {
		return Allocated, true
	}
	return Released, true
}

// PointerValidator performs a flow-sensitive walk of every function and
// method body, tracking each `new`-origin binding through allocated,
// released and cleaned states and reporting any path that reaches
// function exit still holding a live allocation.
type PointerValidator struct {
	errorReporter domain.ErrorReporter
	tracker       *PointerTracker
}

// NewPointerValidator creates a validator that reports through reporter;
// SetErrorReporter replaces it.
func NewPointerValidator(reporter domain.ErrorReporter) *PointerValidator {
	return &PointerValidator{errorReporter: reporter}
}

// SetErrorReporter implements interfaces.PointerValidator.
func (v *PointerValidator) SetErrorReporter(reporter domain.ErrorReporter) {
	v.errorReporter = reporter
}

func (v *PointerValidator) reportError(message string, loc domain.SourceRange) {
	if v.errorReporter == nil {
		return
	}
	v.errorReporter.ReportError(domain.CompilerError{
		Type:     domain.PointerCleanupError,
		Message:  message,
		Location: loc,
		Hints:    []string{"use .release() to hand off ownership, or .clean() to free the pointer"},
	})
}

func (v *PointerValidator) reportWarning(message string, loc domain.SourceRange) {
	if v.errorReporter == nil {
		return
	}
	v.errorReporter.ReportWarning(domain.CompilerError{
		Type:     domain.PointerCleanupError,
		Message:  message,
		Location: loc,
	})
}

// Validate walks every function declaration and every class method body
// in the program, independently of one another. It implements
// interfaces.PointerValidator; a nil return reflects that an unclean
// pointer is reported as an error/warning through the error reporter, not
// as a Go error, mirroring the semantic analyzer's own convention of
// reserving the error return for structural failures the walk cannot
// recover from.
func (v *PointerValidator) Validate(program *domain.Program) error {
	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case *domain.FunctionDeclaration:
			v.validateFunction(d.Name, d.Body)
		case *domain.ClassDeclaration:
			for _, block := range d.ScopeBlocks {
				for _, method := range block.Methods {
					if method.Body == nil {
						continue
					}
					v.validateFunction(d.Name+"."+method.Name, method.Body)
				}
			}
		}
	}
	return nil
}

func (v *PointerValidator) validateFunction(label string, body *domain.BlockStmt) {
	if body == nil {
		return
	}
	v.tracker = newPointerTracker(nil)
	v.validateBlock(body)

	for _, p := range uncleanedChain(v.tracker) {
		v.reportError(
			fmt.Sprintf("Pointer '%s' allocated at %s is not cleaned up before exit of %s()", p.name, p.loc, label),
			body.Location,
		)
	}
	v.tracker = nil
}

func (v *PointerValidator) validateBlock(block *domain.BlockStmt) {
	for _, stmt := range block.Statements {
		v.validateStmt(stmt)
	}
}

func (v *PointerValidator) validateStmt(stmt domain.Statement) {
	switch s := stmt.(type) {
	case *domain.VarDeclStmt:
		if s.Initializer != nil && isAllocation(s.Initializer) {
			v.tracker.allocate(s.Name, s.Location)
		}
	case *domain.ExprStmt:
		v.validateExpr(s.Expr)
	case *domain.AssignStmt:
		v.validateAssign(s)
	case *domain.ReturnStmt:
		for _, p := range uncleanedChain(v.tracker) {
			v.reportError(
				fmt.Sprintf("Pointer '%s' allocated at %s is not cleaned up before return statement", p.name, p.loc),
				s.Location,
			)
		}
	case *domain.IfStmt:
		v.validateIf(s)
	case *domain.WhileStmt:
		v.validateLoopBody(s.Body)
	case *domain.ForStmt:
		v.validateLoopBody(s.Body)
	case *domain.ForEachStmt:
		v.validateLoopBody(s.Body)
	case *domain.BlockStmt:
		v.validateBlock(s)
	}
}

func (v *PointerValidator) validateExpr(expr domain.Expression) {
	call, ok := expr.(*domain.MethodCall)
	if !ok {
		return
	}
	member, ok := call.Callee.(*domain.MemberAccess)
	if !ok {
		return
	}
	ident, ok := member.Object.(*domain.IdentifierExpr)
	if !ok {
		return
	}
	switch member.Member {
	case "release":
		v.tracker.release(ident.Name)
	case "clean":
		v.tracker.clean(ident.Name)
	}
}

func (v *PointerValidator) validateAssign(s *domain.AssignStmt) {
	if s.Value != nil && isAllocation(s.Value) {
		if ident, ok := s.Target.(*domain.IdentifierExpr); ok {
			if state, ok := v.tracker.getState(ident.Name); ok && state == Allocated {
				v.reportWarning(
					fmt.Sprintf("pointer '%s' is being overwritten without being cleaned, which may leak", ident.Name),
					s.Location,
				)
			}
			v.tracker.allocate(ident.Name, s.Location)
		}
	}
}

func (v *PointerValidator) validateIf(s *domain.IfStmt) {
	parent := v.tracker

	thenTracker := newPointerTracker(parent)
	v.tracker = thenTracker
	v.validateStmt(s.Then)

	elseTracker := newPointerTracker(parent)
	if s.Else != nil {
		v.tracker = elseTracker
		v.validateStmt(s.Else)
	}

	v.tracker = parent
	v.mergeBranches(parent, thenTracker, elseTracker)
}

// validateLoopBody tracks allocations made inside a loop body in a
// child scope that is discarded once the loop exits: an allocation that
// is still live at the end of one iteration's body is flagged, since
// the validator has no way to prove it is cleaned on every iteration.
func (v *PointerValidator) validateLoopBody(body domain.Statement) {
	if body == nil {
		return
	}
	parent := v.tracker
	loopTracker := newPointerTracker(parent)
	v.tracker = loopTracker
	v.validateStmt(body)
	v.tracker = parent

	for name, state := range loopTracker.states {
		if state == Allocated {
			v.reportWarning(
				fmt.Sprintf("Pointer '%s' allocated at %s inside a loop may leak; ensure cleanup happens every iteration", name, loopTracker.locs[name]),
				loopTracker.locs[name],
			)
		}
	}
}

// isAllocation reports whether expr is a `new`-origin expression. The
// parser desugars both `new ClassName(args)` and `ClassName.new(args)`
// into domain.NewExpr, so checking for that node covers both surface
// forms.
func isAllocation(expr domain.Expression) bool {
	_, ok := expr.(*domain.NewExpr)
	return ok
}
