// Package semantic implements the four ordered passes Sinter's whole-program
// analysis runs before code generation: class/interface registration,
// hierarchy resolution, member analysis, and function/method body analysis.
package semantic

import (
	"fmt"
	"strings"

	"github.com/sinterlang/sinterc/internal/domain"
	"github.com/sinterlang/sinterc/internal/interfaces"
)

// Analyzer walks the AST once per pass, resolving names and types against
// the shared TypeRegistry/SymbolTable and reporting every violation it finds
// through the configured ErrorReporter rather than failing fast; it stops
// the whole run only on the first structural error that would make later
// passes meaningless (e.g. an inheritance cycle).
type Analyzer struct {
	typeRegistry  domain.TypeRegistry
	symbolTable   interfaces.SymbolTable
	errorReporter domain.ErrorReporter

	classDecls map[string]*domain.ClassDeclaration
	ifaceDecls map[string]*domain.InterfaceDeclaration
	resolved   map[string]bool // hierarchy resolution visited set

	currentClass      *domain.ClassType
	currentReturnType domain.Type
	loopDepth         int
}

// NewAnalyzer creates a semantic analyzer with a fresh type registry; call
// SetSymbolTable before Analyze.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		typeRegistry: domain.NewDefaultTypeRegistry(),
		classDecls:   make(map[string]*domain.ClassDeclaration),
		ifaceDecls:   make(map[string]*domain.InterfaceDeclaration),
		resolved:     make(map[string]bool),
	}
}

func (a *Analyzer) SetTypeRegistry(registry domain.TypeRegistry) { a.typeRegistry = registry }
func (a *Analyzer) SetSymbolTable(symbolTable interfaces.SymbolTable) {
	a.symbolTable = symbolTable
}
func (a *Analyzer) SetErrorReporter(reporter domain.ErrorReporter) { a.errorReporter = reporter }

// Analyze runs the four passes in order over the whole program. Each pass
// completes fully before the next starts, since member analysis depends on
// every class being registered and every hierarchy link resolved first.
func (a *Analyzer) Analyze(program *domain.Program) error {
	if a.symbolTable == nil {
		return fmt.Errorf("semantic analyzer: symbol table not set")
	}

	if err := a.registerDeclarations(program); err != nil {
		return err
	}
	if err := a.resolveHierarchy(program); err != nil {
		return err
	}
	a.analyzeMembers(program)
	a.analyzeBodies(program)

	if a.errorReporter != nil && a.errorReporter.HasErrors() {
		return fmt.Errorf("semantic analysis failed with %d error(s)", len(a.errorReporter.GetErrors()))
	}
	return nil
}

func (a *Analyzer) reportError(errorType domain.ErrorType, message string, loc domain.SourceRange, context string, hints []string) {
	if a.errorReporter == nil {
		return
	}
	a.errorReporter.ReportError(domain.CompilerError{
		Type:     errorType,
		Message:  message,
		Location: loc,
		Context:  context,
		Hints:    hints,
	})
}

func (a *Analyzer) reportWarning(errorType domain.ErrorType, message string, loc domain.SourceRange) {
	if a.errorReporter == nil {
		return
	}
	a.errorReporter.ReportWarning(domain.CompilerError{
		Type:     errorType,
		Message:  message,
		Location: loc,
	})
}

func invalidType() domain.Type { return &domain.InvalidType{} }

// ---- pass 1: registration ----

// registerDeclarations seeds the type registry with an empty shell for
// every class and interface, and declares every top-level function's
// symbol, so later passes can resolve forward references regardless of
// declaration order.
func (a *Analyzer) registerDeclarations(program *domain.Program) error {
	// Shells first: a function or another class may reference a class or
	// interface declared later in the file.
	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case *domain.ClassDeclaration:
			if _, exists := a.classDecls[d.Name]; exists {
				a.reportError(domain.SemanticError, fmt.Sprintf("class '%s' already declared", d.Name), d.GetLocation(), "", nil)
				continue
			}
			a.classDecls[d.Name] = d
			if err := a.typeRegistry.RegisterClass(domain.NewClassType(d.Name)); err != nil {
				a.reportError(domain.SemanticError, err.Error(), d.GetLocation(), "", nil)
			}
		case *domain.InterfaceDeclaration:
			if _, exists := a.ifaceDecls[d.Name]; exists {
				a.reportError(domain.SemanticError, fmt.Sprintf("interface '%s' already declared", d.Name), d.GetLocation(), "", nil)
				continue
			}
			a.ifaceDecls[d.Name] = d
			if err := a.typeRegistry.RegisterInterface(&domain.InterfaceType{Name: d.Name, Methods: make(map[string]*domain.MethodInfo)}); err != nil {
				a.reportError(domain.SemanticError, err.Error(), d.GetLocation(), "", nil)
			}
		case *domain.FunctionDeclaration:
			// handled in the second loop, once every class/interface shell exists
		default:
			return fmt.Errorf("unknown top-level declaration type: %T", decl)
		}
	}

	for _, decl := range program.Declarations {
		d, ok := decl.(*domain.FunctionDeclaration)
		if !ok {
			continue
		}
		paramTypes := make([]domain.Type, len(d.Parameters))
		for i, p := range d.Parameters {
			paramTypes[i] = a.resolveTypeName(p.TypeName, d.GetLocation())
		}
		funcType := &domain.FunctionType{ParamTypes: paramTypes, ReturnType: a.resolveTypeName(d.ReturnTypeName, d.GetLocation())}
		if _, err := a.symbolTable.DeclareSymbol(d.Name, funcType, interfaces.FunctionSymbol, d.GetLocation()); err != nil {
			a.reportError(domain.SemanticError, fmt.Sprintf("function '%s' already declared", d.Name), d.GetLocation(), "", nil)
		}
	}
	return nil
}

// ---- pass 2: hierarchy resolution ----

func (a *Analyzer) resolveHierarchy(program *domain.Program) error {
	for _, decl := range program.Declarations {
		if d, ok := decl.(*domain.ClassDeclaration); ok {
			if err := a.resolveClassHierarchy(d, nil); err != nil {
				return err
			}
		}
	}
	for _, decl := range program.Declarations {
		if d, ok := decl.(*domain.InterfaceDeclaration); ok {
			a.resolveInterfaceMethods(d)
		}
	}
	return nil
}

// resolveClassHierarchy resolves c's parent before c itself, detecting
// cycles via the in-progress chain passed down recursively.
func (a *Analyzer) resolveClassHierarchy(decl *domain.ClassDeclaration, chain []string) error {
	if a.resolved[decl.Name] {
		return nil
	}
	for _, seen := range chain {
		if seen == decl.Name {
			a.reportError(domain.SemanticError,
				fmt.Sprintf("inheritance cycle detected involving class '%s'", decl.Name),
				decl.GetLocation(), "", []string{"a class cannot extend itself, directly or transitively"})
			return fmt.Errorf("inheritance cycle at %s", decl.Name)
		}
	}

	class, _ := a.typeRegistry.GetClass(decl.Name)

	if decl.BaseClass != "" {
		parentDecl, ok := a.classDecls[decl.BaseClass]
		if !ok {
			a.reportError(domain.SemanticError, fmt.Sprintf("undefined base class '%s'", decl.BaseClass), decl.GetLocation(), "", nil)
		} else {
			if err := a.resolveClassHierarchy(parentDecl, append(chain, decl.Name)); err != nil {
				return err
			}
			parent, _ := a.typeRegistry.GetClass(decl.BaseClass)
			if parent != nil {
				class.InheritFrom(parent)
			}
		}
	}

	for _, ifaceName := range decl.Interfaces {
		if _, ok := a.ifaceDecls[ifaceName]; !ok {
			a.reportError(domain.SemanticError, fmt.Sprintf("undefined interface '%s'", ifaceName), decl.GetLocation(), "", nil)
		}
	}
	class.Interfaces = decl.Interfaces

	a.resolved[decl.Name] = true
	return nil
}

func (a *Analyzer) resolveInterfaceMethods(decl *domain.InterfaceDeclaration) {
	iface, _ := a.typeRegistry.GetInterface(decl.Name)
	for _, sig := range decl.Methods {
		paramTypes := make([]domain.Type, len(sig.Parameters))
		for i, p := range sig.Parameters {
			paramTypes[i] = a.resolveTypeName(p.TypeName, decl.GetLocation())
		}
		iface.Methods[sig.Name] = &domain.MethodInfo{
			Name:       sig.Name,
			ReturnType: a.resolveTypeName(sig.ReturnTypeName, decl.GetLocation()),
			ParamTypes: paramTypes,
		}
	}
}

// ---- pass 3: member analysis ----

// analyzeMembers copies each parent's fields and vtable into its subclass
// once the parent's own members are in place (pass 2 links the parent while
// every class is still an empty shell): a class whose declared parent has
// not been analyzed yet goes to the back of the queue.
func (a *Analyzer) analyzeMembers(program *domain.Program) {
	done := make(map[string]bool)
	queue := append(program.Declarations[:0:0], program.Declarations...)
	for len(queue) > 0 {
		decl := queue[0]
		queue = queue[1:]
		d, ok := decl.(*domain.ClassDeclaration)
		if !ok {
			continue
		}
		if _, declared := a.classDecls[d.BaseClass]; declared && !done[d.BaseClass] {
			queue = append(queue, d)
			continue
		}
		done[d.Name] = true
		class, _ := a.typeRegistry.GetClass(d.Name)
		if parent, ok := a.typeRegistry.GetClass(d.BaseClass); ok {
			class.InheritFrom(parent)
		}
		a.currentClass = class
		for _, block := range d.ScopeBlocks {
			for _, field := range block.Fields {
				field.Visibility = block.Visibility
				a.analyzeFieldMember(class, field)
			}
			for _, method := range block.Methods {
				method.Visibility = block.Visibility
				a.analyzeMethodMember(class, method)
			}
		}
		a.checkInterfaceConformance(d, class)
		a.currentClass = nil
	}
}

func (a *Analyzer) analyzeFieldMember(class *domain.ClassType, field *domain.FieldDeclaration) {
	if _, exists := class.Fields[field.Name]; exists {
		a.reportError(domain.SemanticError, fmt.Sprintf("field '%s' already declared on '%s'", field.Name, class.Name), field.GetLocation(), "", nil)
		return
	}
	info := &domain.FieldInfo{
		Name:       field.Name,
		FieldType:  a.resolveTypeName(field.TypeName, field.GetLocation()),
		Const:      field.Const,
		Visibility: field.Visibility,
	}
	if field.Annotation != nil {
		info.ReadOnly = field.Annotation.ReadOnly
		info.WriteOnly = field.Annotation.WriteOnly
		info.Derived = field.Annotation.Derived
		info.Serializable = field.Annotation.Serializable
	}
	if info.ReadOnly && info.WriteOnly {
		a.reportError(domain.SemanticError,
			fmt.Sprintf("field '%s' cannot be both @readonly and @writeonly", field.Name),
			field.GetLocation(), "", nil)
	}
	if info.Serializable && info.Visibility != "public" {
		a.reportError(domain.SemanticError,
			fmt.Sprintf("field '%s' is %s and cannot be serializable", field.Name, info.Visibility),
			field.GetLocation(), "", []string{"move the field into a public: scope block or drop serializable=true"})
	}
	if info.Serializable && info.Derived {
		a.reportWarning(domain.SemanticError,
			fmt.Sprintf("derived field '%s' should not be serializable; its value is recomputed, not stored", field.Name),
			field.GetLocation())
	}
	if field.Initializer != nil {
		info.Initializer = field.Initializer
		if err := field.Initializer.Accept(a); err == nil {
			initType := field.Initializer.GetType()
			if initType != nil && !domain.IsCompatible(a.typeRegistry, info.FieldType, initType) {
				a.reportError(domain.TypeCheckError,
					fmt.Sprintf("cannot initialize field '%s' of type %s with %s", field.Name, info.FieldType.String(), initType.String()),
					field.GetLocation(), "in field initializer", nil)
			}
		}
	}
	class.AddField(info)
}

func (a *Analyzer) analyzeMethodMember(class *domain.ClassType, method *domain.MethodDeclaration) {
	paramTypes := make([]domain.Type, len(method.Parameters))
	paramNames := make([]string, len(method.Parameters))
	for i, p := range method.Parameters {
		paramTypes[i] = a.resolveTypeName(p.TypeName, method.GetLocation())
		paramNames[i] = p.Name
	}
	info := &domain.MethodInfo{
		Name:       method.Name,
		ReturnType: a.resolveTypeName(method.ReturnTypeName, method.GetLocation()),
		ParamTypes: paramTypes,
		ParamNames: paramNames,
		Static:     method.Static,
		Visibility: method.Visibility,
	}

	if existing, ok := class.Methods[method.Name]; ok && !existing.Static && !info.Static {
		class.OverrideMethod(info, existing.VTableIndex)
		return
	} else if ok {
		a.reportError(domain.SemanticError,
			fmt.Sprintf("method '%s' redeclared on '%s' with a different static-ness than its parent", method.Name, class.Name),
			method.GetLocation(), "", nil)
	}
	class.AddMethod(info)
}

func (a *Analyzer) checkInterfaceConformance(decl *domain.ClassDeclaration, class *domain.ClassType) {
	for _, ifaceName := range decl.Interfaces {
		iface, ok := a.typeRegistry.GetInterface(ifaceName)
		if !ok {
			continue
		}
		for name, sig := range iface.Methods {
			impl, ok := class.Methods[name]
			if !ok {
				a.reportError(domain.SemanticError,
					fmt.Sprintf("class '%s' does not implement method '%s' required by interface '%s'", class.Name, name, ifaceName),
					decl.GetLocation(), "", nil)
				continue
			}
			if !impl.ReturnType.Equals(sig.ReturnType) || len(impl.ParamTypes) != len(sig.ParamTypes) {
				a.reportError(domain.SemanticError,
					fmt.Sprintf("method '%s' on '%s' does not match interface '%s' signature", name, class.Name, ifaceName),
					decl.GetLocation(), "", nil)
			}
		}
	}
}

// ---- type-name resolution ----

// resolveTypeName resolves the parser's flat type-name convention
// ("*Box", "int[]") against the registry. An empty name means "infer from
// context" and resolves to nil; callers that require a concrete type
// (parameters, return types, field declarations) must never see one.
func (a *Analyzer) resolveTypeName(name string, loc domain.SourceRange) domain.Type {
	if name == "" {
		return nil
	}
	rest := name
	pointerDepth := 0
	for strings.HasPrefix(rest, "*") {
		pointerDepth++
		rest = rest[1:]
	}
	arrayDepth := 0
	for strings.HasSuffix(rest, "[]") {
		arrayDepth++
		rest = rest[:len(rest)-2]
	}

	var base domain.Type
	if t, ok := a.typeRegistry.GetBuiltin(rest); ok {
		base = t
	} else if c, ok := a.typeRegistry.GetClass(rest); ok {
		base = c
	} else if i, ok := a.typeRegistry.GetInterface(rest); ok {
		base = i
	} else {
		a.reportError(domain.SemanticError, fmt.Sprintf("undefined type '%s'", rest), loc, "", []string{"declare the class or interface before referencing it"})
		return invalidType()
	}

	result := base
	for i := 0; i < pointerDepth; i++ {
		result = a.typeRegistry.PointerTo(result)
	}
	for i := 0; i < arrayDepth; i++ {
		result = a.typeRegistry.ArrayOf(result, -1)
	}
	return result
}

// ---- pass 4: function/method body analysis ----

func (a *Analyzer) analyzeBodies(program *domain.Program) {
	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case *domain.FunctionDeclaration:
			_ = a.VisitFunctionDecl(d)
		case *domain.ClassDeclaration:
			_ = a.VisitClassDecl(d)
		}
	}
}

// ---- Visitor: declarations ----

func (a *Analyzer) VisitProgram(prog *domain.Program) error {
	a.analyzeBodies(prog)
	return nil
}

func (a *Analyzer) VisitFunctionDecl(decl *domain.FunctionDeclaration) error {
	a.symbolTable.EnterScope(decl.Name)
	defer a.symbolTable.ExitScope()

	a.currentReturnType = a.resolveTypeName(decl.ReturnTypeName, decl.GetLocation())
	defer func() { a.currentReturnType = nil }()

	for _, param := range decl.Parameters {
		if _, err := a.symbolTable.DeclareSymbol(param.Name, a.resolveTypeName(param.TypeName, decl.GetLocation()), interfaces.ParameterSymbol, decl.GetLocation()); err != nil {
			a.reportError(domain.SemanticError, fmt.Sprintf("duplicate parameter '%s'", param.Name), decl.GetLocation(), "in function declaration", nil)
		}
	}

	return decl.Body.Accept(a)
}

func (a *Analyzer) VisitClassDecl(decl *domain.ClassDeclaration) error {
	class, _ := a.typeRegistry.GetClass(decl.Name)
	a.currentClass = class
	defer func() { a.currentClass = nil }()

	for _, block := range decl.ScopeBlocks {
		if err := block.Accept(a); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) VisitInterfaceDecl(decl *domain.InterfaceDeclaration) error { return nil }

func (a *Analyzer) VisitScopeBlock(decl *domain.ScopeBlock) error {
	for _, field := range decl.Fields {
		if err := field.Accept(a); err != nil {
			return err
		}
	}
	for _, method := range decl.Methods {
		if err := method.Accept(a); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) VisitFieldDecl(decl *domain.FieldDeclaration) error {
	if decl.Initializer == nil {
		return nil
	}
	if err := decl.Initializer.Accept(a); err != nil {
		return err
	}
	fieldType := a.currentClass.Fields[decl.Name].FieldType
	initType := decl.Initializer.GetType()
	if !domain.IsCompatible(a.typeRegistry, fieldType, initType) {
		a.reportError(domain.TypeCheckError,
			fmt.Sprintf("cannot initialize field '%s' of type %s with %s", decl.Name, fieldType.String(), initType.String()),
			decl.GetLocation(), "in field declaration", nil)
	}
	return nil
}

func (a *Analyzer) VisitMethodDecl(decl *domain.MethodDeclaration) error {
	if decl.Abstract {
		return nil
	}

	a.symbolTable.EnterScope(decl.Name)
	defer a.symbolTable.ExitScope()

	prevReturn := a.currentReturnType
	a.currentReturnType = a.resolveTypeName(decl.ReturnTypeName, decl.GetLocation())
	defer func() { a.currentReturnType = prevReturn }()

	if !decl.Static && a.currentClass != nil {
		thisType := a.typeRegistry.PointerTo(a.currentClass)
		a.symbolTable.DeclareSymbol("this", thisType, interfaces.ParameterSymbol, decl.GetLocation())
		a.symbolTable.DeclareSymbol("self", thisType, interfaces.ParameterSymbol, decl.GetLocation())
	}

	for _, param := range decl.Parameters {
		if _, err := a.symbolTable.DeclareSymbol(param.Name, a.resolveTypeName(param.TypeName, decl.GetLocation()), interfaces.ParameterSymbol, decl.GetLocation()); err != nil {
			a.reportError(domain.SemanticError, fmt.Sprintf("duplicate parameter '%s'", param.Name), decl.GetLocation(), "in method declaration", nil)
		}
	}

	if decl.Body == nil {
		return nil
	}
	return decl.Body.Accept(a)
}

// ---- Visitor: statements ----

func (a *Analyzer) VisitBlockStmt(stmt *domain.BlockStmt) error {
	a.symbolTable.EnterScope("block")
	defer a.symbolTable.ExitScope()

	for _, s := range stmt.Statements {
		if err := s.Accept(a); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) VisitVarDeclStmt(stmt *domain.VarDeclStmt) error {
	declaredType := a.resolveTypeName(stmt.TypeName, stmt.GetLocation())

	if stmt.Initializer != nil {
		if err := stmt.Initializer.Accept(a); err != nil {
			return err
		}
		initType := stmt.Initializer.GetType()
		if declaredType == nil {
			declaredType = initType
		} else if !domain.IsCompatible(a.typeRegistry, declaredType, initType) {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("cannot assign %s to variable of type %s", initType.String(), declaredType.String()),
				stmt.GetLocation(), "in variable declaration", nil)
		} else {
			a.warnOnNarrowing(declaredType, initType, stmt.GetLocation())
		}
	} else if declaredType == nil {
		a.reportError(domain.SemanticError, fmt.Sprintf("variable '%s' needs a type or an initializer", stmt.Name), stmt.GetLocation(), "", nil)
		declaredType = invalidType()
	}
	stmt.ResolvedType = declaredType

	symbol, err := a.symbolTable.DeclareSymbol(stmt.Name, declaredType, interfaces.VariableSymbol, stmt.GetLocation())
	if err != nil {
		a.reportError(domain.SemanticError, fmt.Sprintf("variable '%s' already declared", stmt.Name), stmt.GetLocation(), "", nil)
		return nil
	}
	symbol.Const = stmt.Const
	symbol.Initialized = stmt.Initializer != nil
	return nil
}

func (a *Analyzer) VisitAssignStmt(stmt *domain.AssignStmt) error {
	if err := stmt.Target.Accept(a); err != nil {
		return err
	}
	if err := stmt.Value.Accept(a); err != nil {
		return err
	}

	if ident, ok := stmt.Target.(*domain.IdentifierExpr); ok {
		if symbol, found := a.symbolTable.LookupSymbol(ident.Name); found && symbol.Const {
			a.reportError(domain.SemanticError, fmt.Sprintf("cannot assign to const '%s'", ident.Name), stmt.GetLocation(), "in assignment", nil)
		}
	}

	targetType := stmt.Target.GetType()
	valueType := stmt.Value.GetType()
	if stmt.CompoundOp != nil {
		if !domain.IsNumeric(targetType) || !domain.IsNumeric(valueType) {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("cannot apply %s= to %s and %s", stmt.CompoundOp.String(), targetType.String(), valueType.String()),
				stmt.GetLocation(), "in compound assignment", nil)
		}
		return nil
	}
	if !domain.IsCompatible(a.typeRegistry, targetType, valueType) {
		a.reportError(domain.TypeCheckError,
			fmt.Sprintf("cannot assign %s to %s", valueType.String(), targetType.String()),
			stmt.GetLocation(), "in assignment", nil)
	} else {
		a.warnOnNarrowing(targetType, valueType, stmt.GetLocation())
	}
	return nil
}

// warnOnNarrowing flags a numeric store whose value type is wider than its
// destination; the store still compiles, truncating at runtime.
func (a *Analyzer) warnOnNarrowing(target, value domain.Type, loc domain.SourceRange) {
	if !domain.IsNumeric(target) || !domain.IsNumeric(value) || target.Equals(value) {
		return
	}
	if !domain.WidenedNumeric(target, value).Equals(target) {
		a.reportWarning(domain.TypeCheckError,
			fmt.Sprintf("narrowing %s to %s may lose precision", value.String(), target.String()), loc)
	}
}

func (a *Analyzer) checkBooleanCondition(cond domain.Expression, context string) {
	condType := cond.GetType()
	boolType, _ := a.typeRegistry.GetBuiltin("boolean")
	if !condType.Equals(boolType) {
		if _, invalid := condType.(*domain.InvalidType); invalid {
			return
		}
		a.reportError(domain.TypeCheckError,
			fmt.Sprintf("%s condition must be boolean, got %s", context, condType.String()),
			cond.GetLocation(), "", []string{"use a boolean expression as the condition"})
	}
}

func (a *Analyzer) VisitIfStmt(stmt *domain.IfStmt) error {
	if err := stmt.Condition.Accept(a); err != nil {
		return err
	}
	a.checkBooleanCondition(stmt.Condition, "if")
	if err := stmt.Then.Accept(a); err != nil {
		return err
	}
	if stmt.Else != nil {
		return stmt.Else.Accept(a)
	}
	return nil
}

func (a *Analyzer) VisitWhileStmt(stmt *domain.WhileStmt) error {
	if err := stmt.Condition.Accept(a); err != nil {
		return err
	}
	a.checkBooleanCondition(stmt.Condition, "while")
	a.loopDepth++
	defer func() { a.loopDepth-- }()
	return stmt.Body.Accept(a)
}

func (a *Analyzer) VisitForStmt(stmt *domain.ForStmt) error {
	a.symbolTable.EnterScope("for")
	defer a.symbolTable.ExitScope()

	if stmt.Init != nil {
		if err := stmt.Init.Accept(a); err != nil {
			return err
		}
	}
	if stmt.Condition != nil {
		if err := stmt.Condition.Accept(a); err != nil {
			return err
		}
		a.checkBooleanCondition(stmt.Condition, "for")
	}
	if stmt.Update != nil {
		if err := stmt.Update.Accept(a); err != nil {
			return err
		}
	}
	a.loopDepth++
	defer func() { a.loopDepth-- }()
	return stmt.Body.Accept(a)
}

func (a *Analyzer) VisitForEachStmt(stmt *domain.ForEachStmt) error {
	a.symbolTable.EnterScope("foreach")
	defer a.symbolTable.ExitScope()

	if err := stmt.Collection.Accept(a); err != nil {
		return err
	}
	collType := stmt.Collection.GetType()
	arrType, ok := collType.(*domain.ArrayType)
	var elemType domain.Type
	if !ok {
		if _, invalid := collType.(*domain.InvalidType); !invalid {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("cannot iterate over non-array type %s", collType.String()),
				stmt.Collection.GetLocation(), "in for-each loop", nil)
		}
		elemType = invalidType()
	} else {
		elemType = arrType.Element
	}

	declaredType := a.resolveTypeName(stmt.VarTypeName, stmt.GetLocation())
	if declaredType == nil {
		declaredType = elemType
	}
	a.symbolTable.DeclareSymbol(stmt.VarName, declaredType, interfaces.VariableSymbol, stmt.GetLocation())

	a.loopDepth++
	defer func() { a.loopDepth-- }()
	return stmt.Body.Accept(a)
}

func (a *Analyzer) VisitBreakStmt(stmt *domain.BreakStmt) error {
	if a.loopDepth == 0 {
		a.reportError(domain.SemanticError, "break statement outside loop", stmt.GetLocation(), "", nil)
	}
	return nil
}

func (a *Analyzer) VisitContinueStmt(stmt *domain.ContinueStmt) error {
	if a.loopDepth == 0 {
		a.reportError(domain.SemanticError, "continue statement outside loop", stmt.GetLocation(), "", nil)
	}
	return nil
}

func (a *Analyzer) VisitReturnStmt(stmt *domain.ReturnStmt) error {
	if a.currentReturnType == nil {
		a.reportError(domain.SemanticError, "return statement outside function or method", stmt.GetLocation(), "", nil)
		return nil
	}

	voidType, _ := a.typeRegistry.GetBuiltin("void")
	if stmt.Value == nil {
		if !a.currentReturnType.Equals(voidType) {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("function expects a return value of type %s", a.currentReturnType.String()),
				stmt.GetLocation(), "in return statement", nil)
		}
		return nil
	}

	if err := stmt.Value.Accept(a); err != nil {
		return err
	}
	valueType := stmt.Value.GetType()
	if !domain.IsCompatible(a.typeRegistry, a.currentReturnType, valueType) {
		a.reportError(domain.TypeCheckError,
			fmt.Sprintf("cannot return %s from a function expecting %s", valueType.String(), a.currentReturnType.String()),
			stmt.GetLocation(), "in return statement", nil)
	}
	return nil
}

func (a *Analyzer) VisitPrintStmt(stmt *domain.PrintStmt) error {
	for _, arg := range stmt.Args {
		if err := arg.Accept(a); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) VisitExprStmt(stmt *domain.ExprStmt) error {
	return stmt.Expr.Accept(a)
}

// ---- Visitor: expressions ----

func (a *Analyzer) VisitLiteralExpr(expr *domain.LiteralExpr) error {
	var t domain.Type
	switch expr.Kind {
	case domain.IntLiteral:
		t, _ = a.typeRegistry.GetBuiltin("int")
	case domain.FloatLiteral:
		t, _ = a.typeRegistry.GetBuiltin("double")
	case domain.BoolLiteral:
		t, _ = a.typeRegistry.GetBuiltin("boolean")
	case domain.StringLiteralKind:
		t, _ = a.typeRegistry.GetBuiltin("str")
	case domain.DStringLiteralKind:
		t, _ = a.typeRegistry.GetBuiltin("d_str")
	case domain.NullLiteral:
		t, _ = a.typeRegistry.GetBuiltin("null")
	default:
		t = invalidType()
	}
	expr.SetType(t)
	return nil
}

func (a *Analyzer) VisitIdentifierExpr(expr *domain.IdentifierExpr) error {
	symbol, found := a.symbolTable.LookupSymbol(expr.Name)
	if !found {
		// fall back to a field of the enclosing class (implicit this)
		if a.currentClass != nil {
			if field, ok := a.currentClass.Fields[expr.Name]; ok {
				expr.SetType(field.FieldType)
				return nil
			}
		}
		a.reportError(domain.SemanticError, fmt.Sprintf("undefined identifier '%s'", expr.Name), expr.GetLocation(), "", []string{"ensure the identifier is declared before use"})
		expr.SetType(invalidType())
		return nil
	}
	expr.SetType(symbol.Type)
	return nil
}

func (a *Analyzer) VisitBinaryExpr(expr *domain.BinaryExpr) error {
	if err := expr.Left.Accept(a); err != nil {
		return err
	}
	if err := expr.Right.Accept(a); err != nil {
		return err
	}

	leftType, rightType := expr.Left.GetType(), expr.Right.GetType()
	boolType, _ := a.typeRegistry.GetBuiltin("boolean")

	switch expr.Operator {
	case domain.Add, domain.Sub, domain.Mul, domain.Div, domain.Mod:
		if expr.Operator == domain.Add {
			_, leftStr := leftType.(*domain.StringType)
			_, rightStr := rightType.(*domain.StringType)
			if leftStr && rightStr {
				expr.SetType(leftType) // str + str is concatenation
				return nil
			}
		}
		if !domain.IsNumeric(leftType) || !domain.IsNumeric(rightType) {
			a.typeMismatch(expr, leftType, rightType)
			return nil
		}
		expr.SetType(domain.WidenedNumeric(leftType, rightType))
	case domain.Eq, domain.Ne:
		if !domain.IsCompatible(a.typeRegistry, leftType, rightType) && !domain.IsCompatible(a.typeRegistry, rightType, leftType) {
			a.typeMismatch(expr, leftType, rightType)
		}
		expr.SetType(boolType)
	case domain.Lt, domain.Le, domain.Gt, domain.Ge:
		if !domain.IsNumeric(leftType) || !domain.IsNumeric(rightType) {
			a.typeMismatch(expr, leftType, rightType)
		}
		expr.SetType(boolType)
	case domain.And, domain.Or:
		if !leftType.Equals(boolType) || !rightType.Equals(boolType) {
			a.typeMismatch(expr, leftType, rightType)
		}
		expr.SetType(boolType)
	case domain.BitAnd, domain.BitOr, domain.Xor:
		if !domain.IsNumeric(leftType) || !domain.IsNumeric(rightType) {
			a.typeMismatch(expr, leftType, rightType)
			return nil
		}
		expr.SetType(domain.WidenedNumeric(leftType, rightType))
	default:
		expr.SetType(invalidType())
	}
	return nil
}

func (a *Analyzer) typeMismatch(expr *domain.BinaryExpr, left, right domain.Type) {
	a.reportError(domain.TypeCheckError,
		fmt.Sprintf("cannot apply operator %s to %s and %s", expr.Operator.String(), left.String(), right.String()),
		expr.GetLocation(), "in binary expression", nil)
	expr.SetType(invalidType())
}

func (a *Analyzer) VisitUnaryExpr(expr *domain.UnaryExpr) error {
	if err := expr.Operand.Accept(a); err != nil {
		return err
	}
	operandType := expr.Operand.GetType()
	boolType, _ := a.typeRegistry.GetBuiltin("boolean")

	switch expr.Operator {
	case domain.Not:
		if !operandType.Equals(boolType) {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("cannot apply ! to %s", operandType.String()), expr.GetLocation(), "in unary expression", nil)
			expr.SetType(invalidType())
			return nil
		}
		expr.SetType(boolType)
	case domain.Neg, domain.PreInc, domain.PreDec, domain.PostInc, domain.PostDec:
		if !domain.IsNumeric(operandType) {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("cannot apply %s to %s", expr.Operator.String(), operandType.String()), expr.GetLocation(), "in unary expression", nil)
			expr.SetType(invalidType())
			return nil
		}
		expr.SetType(operandType)
	default:
		expr.SetType(invalidType())
	}
	return nil
}

func (a *Analyzer) VisitPointerExpr(expr *domain.PointerExpr) error {
	if err := expr.Operand.Accept(a); err != nil {
		return err
	}
	operandType := expr.Operand.GetType()

	switch expr.Operator {
	case domain.Deref:
		ptr, ok := operandType.(*domain.PointerType)
		if !ok {
			if _, invalid := operandType.(*domain.InvalidType); !invalid {
				a.reportError(domain.TypeCheckError,
					fmt.Sprintf("cannot dereference non-pointer type %s", operandType.String()), expr.GetLocation(), "in dereference", nil)
			}
			expr.SetType(invalidType())
			return nil
		}
		expr.SetType(ptr.Pointee)
	case domain.AddressOf:
		expr.SetType(a.typeRegistry.PointerTo(operandType))
	default:
		expr.SetType(invalidType())
	}
	return nil
}

func (a *Analyzer) classTypeOf(t domain.Type) *domain.ClassType {
	if ptr, ok := t.(*domain.PointerType); ok {
		t = ptr.Pointee
	}
	c, _ := t.(*domain.ClassType)
	return c
}

func (a *Analyzer) VisitMemberAccess(expr *domain.MemberAccess) error {
	if err := expr.Object.Accept(a); err != nil {
		return err
	}
	objType := expr.Object.GetType()
	class := a.classTypeOf(objType)
	if class == nil {
		if _, invalid := objType.(*domain.InvalidType); !invalid {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("cannot access member of non-class type %s", objType.String()), expr.GetLocation(), "in member access", nil)
		}
		expr.SetType(invalidType())
		return nil
	}

	if field, ok := class.Fields[expr.Member]; ok {
		expr.SetType(field.FieldType)
		return nil
	}
	if method, ok := class.Methods[expr.Member]; ok {
		expr.SetType(&domain.FunctionType{ParamTypes: method.ParamTypes, ReturnType: method.ReturnType})
		return nil
	}
	a.reportError(domain.SemanticError,
		fmt.Sprintf("class '%s' has no member '%s'", class.Name, expr.Member), expr.GetLocation(), "in member access", []string{fmt.Sprintf("available fields: %v", class.FieldOrder)})
	expr.SetType(invalidType())
	return nil
}

func (a *Analyzer) VisitMethodCall(expr *domain.MethodCall) error {
	switch callee := expr.Callee.(type) {
	case *domain.MemberAccess:
		if err := callee.Object.Accept(a); err != nil {
			return err
		}
		if done := a.checkReservedCall(expr, callee); done {
			return nil
		}
		class := a.classTypeOf(callee.Object.GetType())
		if class == nil {
			if _, invalid := callee.Object.GetType().(*domain.InvalidType); !invalid {
				a.reportError(domain.TypeCheckError,
					fmt.Sprintf("cannot call method on non-class type %s", callee.Object.GetType().String()), expr.GetLocation(), "in method call", nil)
			}
			expr.SetType(invalidType())
			return nil
		}
		method, ok := class.Methods[callee.Member]
		if !ok {
			a.reportError(domain.SemanticError,
				fmt.Sprintf("class '%s' has no method '%s'", class.Name, callee.Member), expr.GetLocation(), "in method call", nil)
			expr.SetType(invalidType())
			return nil
		}
		callee.SetType(&domain.FunctionType{ParamTypes: method.ParamTypes, ReturnType: method.ReturnType})
		if err := a.checkArgs(expr.Args, method.ParamTypes, expr.GetLocation()); err != nil {
			return err
		}
		expr.SetType(method.ReturnType)
		return nil
	case *domain.IdentifierExpr:
		symbol, found := a.symbolTable.LookupSymbol(callee.Name)
		if !found {
			a.reportError(domain.SemanticError, fmt.Sprintf("undefined function '%s'", callee.Name), expr.GetLocation(), "in function call", nil)
			expr.SetType(invalidType())
			return nil
		}
		funcType, ok := symbol.Type.(*domain.FunctionType)
		if !ok {
			a.reportError(domain.TypeCheckError, fmt.Sprintf("cannot call non-function '%s'", callee.Name), expr.GetLocation(), "in function call", nil)
			expr.SetType(invalidType())
			return nil
		}
		callee.SetType(funcType)
		if err := a.checkArgs(expr.Args, funcType.ParamTypes, expr.GetLocation()); err != nil {
			return err
		}
		expr.SetType(funcType.ReturnType)
		return nil
	default:
		if err := expr.Callee.Accept(a); err != nil {
			return err
		}
		a.reportError(domain.TypeCheckError, "cannot call a non-callable expression", expr.GetLocation(), "in method call", nil)
		expr.SetType(invalidType())
		return nil
	}
}

// checkReservedCall handles the built-in pointer operations clean(),
// release(), and as_json(), which exist on every heap value without being
// declared as class methods. Returns true when the call was one of them.
func (a *Analyzer) checkReservedCall(expr *domain.MethodCall, callee *domain.MemberAccess) bool {
	objType := callee.Object.GetType()
	switch callee.Member {
	case "clean", "release":
		if _, invalid := objType.(*domain.InvalidType); !invalid {
			if _, isPtr := objType.(*domain.PointerType); !isPtr {
				a.reportError(domain.TypeCheckError,
					fmt.Sprintf("%s() requires a pointer, got %s", callee.Member, objType.String()),
					expr.GetLocation(), "in method call", nil)
			}
		}
		if len(expr.Args) != 0 {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("%s() takes no arguments", callee.Member), expr.GetLocation(), "", nil)
		}
		voidType, _ := a.typeRegistry.GetBuiltin("void")
		callee.SetType(&domain.FunctionType{ReturnType: voidType})
		expr.SetType(voidType)
		return true
	case "as_json":
		class := a.classTypeOf(objType)
		if class == nil {
			if _, invalid := objType.(*domain.InvalidType); !invalid {
				a.reportError(domain.TypeCheckError,
					fmt.Sprintf("as_json() requires a class instance, got %s", objType.String()),
					expr.GetLocation(), "in method call", nil)
			}
		} else if _, declared := class.Methods["as_json"]; declared {
			// a user-declared as_json wins over the generated one
			return false
		}
		if len(expr.Args) != 0 {
			a.reportError(domain.TypeCheckError, "as_json() takes no arguments", expr.GetLocation(), "", nil)
		}
		strType, _ := a.typeRegistry.GetBuiltin("str")
		callee.SetType(&domain.FunctionType{ReturnType: strType})
		expr.SetType(strType)
		return true
	}
	return false
}

func (a *Analyzer) checkArgs(args []domain.Expression, paramTypes []domain.Type, loc domain.SourceRange) error {
	if len(args) != len(paramTypes) {
		a.reportError(domain.TypeCheckError,
			fmt.Sprintf("expected %d arguments, got %d", len(paramTypes), len(args)), loc, "", nil)
	}
	for i, arg := range args {
		if err := arg.Accept(a); err != nil {
			return err
		}
		if i >= len(paramTypes) {
			continue
		}
		argType := arg.GetType()
		if !domain.IsCompatible(a.typeRegistry, paramTypes[i], argType) {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("argument %d: cannot pass %s to parameter of type %s", i+1, argType.String(), paramTypes[i].String()),
				arg.GetLocation(), "", nil)
		}
	}
	return nil
}

func (a *Analyzer) VisitNewExpr(expr *domain.NewExpr) error {
	class, ok := a.typeRegistry.GetClass(expr.ClassName)
	if !ok {
		a.reportError(domain.SemanticError, fmt.Sprintf("undefined class '%s'", expr.ClassName), expr.GetLocation(), "in instantiation", nil)
		expr.SetType(invalidType())
		return nil
	}

	if len(expr.Args) > 0 && len(expr.Args) != len(class.FieldOrder) {
		a.reportError(domain.SemanticError,
			fmt.Sprintf("'%s' has %d fields, but %d constructor arguments were given", expr.ClassName, len(class.FieldOrder), len(expr.Args)),
			expr.GetLocation(), "in instantiation", []string{"constructor arguments initialize fields in declaration order"})
	}
	for i, arg := range expr.Args {
		if err := arg.Accept(a); err != nil {
			return err
		}
		if i >= len(class.FieldOrder) {
			continue
		}
		fieldType := class.Fields[class.FieldOrder[i]].FieldType
		argType := arg.GetType()
		if !domain.IsCompatible(a.typeRegistry, fieldType, argType) {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("argument %d: cannot initialize field '%s' (%s) with %s", i+1, class.FieldOrder[i], fieldType.String(), argType.String()),
				arg.GetLocation(), "in instantiation", nil)
		}
	}

	expr.SetType(a.typeRegistry.PointerTo(class))
	return nil
}

func (a *Analyzer) VisitArrayLiteral(expr *domain.ArrayLiteral) error {
	var elemType domain.Type
	for _, elem := range expr.Elements {
		if err := elem.Accept(a); err != nil {
			return err
		}
		t := elem.GetType()
		if elemType == nil {
			elemType = t
			continue
		}
		if !domain.IsCompatible(a.typeRegistry, elemType, t) {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("array literal mixes incompatible types %s and %s", elemType.String(), t.String()),
				elem.GetLocation(), "in array literal", nil)
		}
	}
	if elemType == nil {
		elemType, _ = a.typeRegistry.GetBuiltin("int")
	}
	expr.SetType(a.typeRegistry.ArrayOf(elemType, len(expr.Elements)))
	return nil
}

func (a *Analyzer) VisitArrayAccess(expr *domain.ArrayAccess) error {
	if err := expr.Array.Accept(a); err != nil {
		return err
	}
	if err := expr.Index.Accept(a); err != nil {
		return err
	}

	arrayType, ok := expr.Array.GetType().(*domain.ArrayType)
	if !ok {
		if _, invalid := expr.Array.GetType().(*domain.InvalidType); !invalid {
			a.reportError(domain.TypeCheckError,
				fmt.Sprintf("cannot index non-array type %s", expr.Array.GetType().String()), expr.GetLocation(), "in array access", nil)
		}
		expr.SetType(invalidType())
		return nil
	}

	if !domain.IsNumeric(expr.Index.GetType()) {
		a.reportError(domain.TypeCheckError,
			fmt.Sprintf("array index must be numeric, got %s", expr.Index.GetType().String()), expr.Index.GetLocation(), "in array access", nil)
	}

	expr.SetType(arrayType.Element)
	return nil
}
