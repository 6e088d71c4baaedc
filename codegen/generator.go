// Package codegen lowers an analyzed, pointer-validated Sinter AST to
// textual LLVM IR.
package codegen

import (
	"fmt"
	"strings"

	"github.com/sinterlang/sinterc/internal/domain"
	"github.com/sinterlang/sinterc/internal/interfaces"
)

// localVar is a live binding inside the function currently being
// generated: either a parameter (copied into a stack slot on entry) or a
// local declared by a var statement.
type localVar struct {
	addr    string // %name.addr, the alloca'd stack slot
	sinType domain.Type
}

// Generator implements interfaces.CodeGenerator, emitting one LLVM IR
// module per Generate call.
type Generator struct {
	typeRegistry  domain.TypeRegistry
	symbolTable   interfaces.SymbolTable
	errorReporter domain.ErrorReporter
	options       interfaces.CodeGenOptions

	globals strings.Builder // struct/vtable types, string pool, runtime preamble
	output  strings.Builder // function bodies
	indent  int

	jsonHelpersEmitted bool

	locals         map[string]*localVar
	currentClass   *domain.ClassType
	breakLabels    []string
	continueLabels []string

	curVal  string // result register of the last-visited expression
	curTyp  domain.Type
	curAddr string // address of the last-visited expression, if it has one

	// per-function dependency index: variable name -> dstrings embedding it
	dstrDeps map[string][]dstrRef
	// variable names referenced by the D-string literal last visited,
	// consumed by bindDStringVar once the literal's destination is known
	lastDStringRefs []string
}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) SetTypeRegistry(registry domain.TypeRegistry)  { g.typeRegistry = registry }
func (g *Generator) SetSymbolTable(table interfaces.SymbolTable)   { g.symbolTable = table }
func (g *Generator) SetOptions(options interfaces.CodeGenOptions)  { g.options = options }
func (g *Generator) SetErrorReporter(reporter domain.ErrorReporter) {
	g.errorReporter = reporter
}

func (g *Generator) emit(format string, args ...interface{}) {
	g.output.WriteString(strings.Repeat("  ", g.indent))
	fmt.Fprintf(&g.output, format, args...)
	g.output.WriteByte('\n')
}

func (g *Generator) emitGlobal(format string, args ...interface{}) {
	fmt.Fprintf(&g.globals, format, args...)
	g.globals.WriteByte('\n')
}

func (g *Generator) reportError(message string, loc domain.SourceRange) {
	if g.errorReporter == nil {
		return
	}
	g.errorReporter.ReportError(domain.CompilerError{
		Type:     domain.CodeGenError,
		Message:  message,
		Location: loc,
	})
}

func (g *Generator) targetTriple() string {
	if g.options.TargetTriple != "" {
		return g.options.TargetTriple
	}
	return "x86_64-unknown-linux-gnu"
}

// Generate lowers program to LLVM IR text.
func (g *Generator) Generate(program *domain.Program) (string, error) {
	g.globals.Reset()
	g.output.Reset()
	g.indent = 0
	g.jsonHelpersEmitted = false

	g.emitGlobal("; ModuleID = 'sinter'")
	g.emitGlobal("target datalayout = \"e-m:e-p270:32:32-p271:32:32-p272:64:64-i64:64-f80:128-n8:16:32:64-S128\"")
	g.emitGlobal("target triple = %q", g.targetTriple())
	g.emitGlobal("")
	g.emitGlobal("declare i8* @malloc(i64)")
	g.emitGlobal("declare void @free(i8*)")
	g.emitGlobal("declare i32 @printf(i8*, ...)")
	g.emitGlobal("declare i32 @sprintf(i8*, i8*, ...)")
	g.emitGlobal("declare i32 @snprintf(i8*, i64, i8*, ...)")
	g.emitGlobal("declare i64 @strlen(i8*)")
	g.emitGlobal("declare i8* @strcpy(i8*, i8*)")
	g.emitGlobal("declare i8* @strcat(i8*, i8*)")
	g.emitGlobal("declare i32 @strcmp(i8*, i8*)")
	g.emitGlobal("")
	g.emitDStringRuntime()

	g.emitGlobal("%s = private unnamed_addr constant [5 x i8] c\"true\\00\", align 1", trueLiteralName)
	g.emitGlobal("%s = private unnamed_addr constant [6 x i8] c\"false\\00\", align 1", falseLiteralName)
	g.emitGlobal("")

	// Interning every literal up front keeps the pool in first-sight
	// order; the walk below can still add entries of its own (printf
	// formats assembled at codegen time), so the pool globals are
	// flushed only after the walk finishes.
	g.collectStrings(program)

	if err := program.Accept(g); err != nil {
		return "", err
	}

	for _, entry := range g.symbolTable.StringPool() {
		n := len(entry.Value) + 1
		g.emitGlobal("%s = private unnamed_addr constant [%d x i8] c\"%s\\00\", align 1",
			entry.Name, n, escapeForLLVM(entry.Value))
	}
	g.emitGlobal("")

	var sb strings.Builder
	sb.WriteString(g.globals.String())
	sb.WriteString(g.output.String())
	return sb.String(), nil
}

const (
	trueLiteralName  = "@.bool.true"
	falseLiteralName = "@.bool.false"
)

func escapeForLLVM(s string) string {
	var sb strings.Builder
	for _, b := range []byte(s) {
		if b >= 0x20 && b < 0x7f && b != '"' && b != '\\' {
			sb.WriteByte(b)
		} else {
			fmt.Fprintf(&sb, "\\%02X", b)
		}
	}
	return sb.String()
}

// collectStrings walks the whole program purely to intern every regular
// string literal in encounter order.
func (g *Generator) collectStrings(program *domain.Program) {
	for _, decl := range program.Declarations {
		switch d := decl.(type) {
		case *domain.FunctionDeclaration:
			g.collectStringsStmt(d.Body)
		case *domain.ClassDeclaration:
			for _, block := range d.ScopeBlocks {
				for _, field := range block.Fields {
					g.collectStringsExpr(field.Initializer)
				}
				for _, method := range block.Methods {
					g.collectStringsStmt(method.Body)
				}
			}
		}
	}
}

func (g *Generator) collectStringsStmt(stmt domain.Statement) {
	switch s := stmt.(type) {
	case nil:
	case *domain.BlockStmt:
		for _, inner := range s.Statements {
			g.collectStringsStmt(inner)
		}
	case *domain.ExprStmt:
		g.collectStringsExpr(s.Expr)
	case *domain.VarDeclStmt:
		g.collectStringsExpr(s.Initializer)
	case *domain.AssignStmt:
		g.collectStringsExpr(s.Target)
		g.collectStringsExpr(s.Value)
	case *domain.IfStmt:
		g.collectStringsExpr(s.Condition)
		g.collectStringsStmt(s.Then)
		g.collectStringsStmt(s.Else)
	case *domain.WhileStmt:
		g.collectStringsExpr(s.Condition)
		g.collectStringsStmt(s.Body)
	case *domain.ForStmt:
		g.collectStringsStmt(s.Init)
		g.collectStringsExpr(s.Condition)
		g.collectStringsStmt(s.Update)
		g.collectStringsStmt(s.Body)
	case *domain.ForEachStmt:
		g.collectStringsExpr(s.Collection)
		g.collectStringsStmt(s.Body)
	case *domain.ReturnStmt:
		g.collectStringsExpr(s.Value)
	case *domain.PrintStmt:
		for _, a := range s.Args {
			g.collectStringsExpr(a)
		}
	}
}

func (g *Generator) collectStringsExpr(expr domain.Expression) {
	switch e := expr.(type) {
	case nil:
	case *domain.LiteralExpr:
		if e.Kind == domain.StringLiteralKind {
			g.symbolTable.InternString(e.Value.(string))
		}
	case *domain.BinaryExpr:
		g.collectStringsExpr(e.Left)
		g.collectStringsExpr(e.Right)
	case *domain.UnaryExpr:
		g.collectStringsExpr(e.Operand)
	case *domain.PointerExpr:
		g.collectStringsExpr(e.Operand)
	case *domain.MemberAccess:
		g.collectStringsExpr(e.Object)
	case *domain.MethodCall:
		g.collectStringsExpr(e.Callee)
		for _, a := range e.Args {
			g.collectStringsExpr(a)
		}
	case *domain.NewExpr:
		for _, a := range e.Args {
			g.collectStringsExpr(a)
		}
	case *domain.ArrayLiteral:
		for _, el := range e.Elements {
			g.collectStringsExpr(el)
		}
	case *domain.ArrayAccess:
		g.collectStringsExpr(e.Array)
		g.collectStringsExpr(e.Index)
	}
}

// ---- Declarations ----

func (g *Generator) VisitProgram(prog *domain.Program) error {
	for _, decl := range prog.Declarations {
		if err := decl.Accept(g); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) VisitInterfaceDecl(decl *domain.InterfaceDeclaration) error {
	// interfaces contribute no storage or code; conformance was already
	// checked during semantic analysis.
	return nil
}

func (g *Generator) VisitClassDecl(decl *domain.ClassDeclaration) error {
	class, ok := g.typeRegistry.GetClass(decl.Name)
	if !ok {
		g.reportError(fmt.Sprintf("internal error: class '%s' missing from type registry", decl.Name), decl.GetLocation())
		return nil
	}
	g.emitClassStruct(class)
	g.emitVtable(class)
	g.emitConstructor(class)
	g.emitDestructor(class)
	g.emitAsJSON(class)

	g.currentClass = class
	for _, block := range decl.ScopeBlocks {
		for _, method := range block.Methods {
			if err := g.genMethod(class, method); err != nil {
				return err
			}
		}
	}
	g.currentClass = nil
	return nil
}

func (g *Generator) emitClassStruct(class *domain.ClassType) {
	fields := make([]string, 0, len(class.FieldOrder)+1)
	fields = append(fields, "i8**")
	for _, name := range class.FieldOrder {
		fields = append(fields, class.Fields[name].FieldType.LLVM())
	}
	g.emitGlobal("%s = type { %s }", class.LLVM(), strings.Join(fields, ", "))
}

func vtableTypeName(class *domain.ClassType) string { return "%vtable." + class.Name }

func methodFnPtrType(class *domain.ClassType, m *domain.MethodInfo) string {
	params := make([]string, 0, len(m.ParamTypes)+1)
	params = append(params, class.LLVM()+"*")
	for _, p := range m.ParamTypes {
		params = append(params, p.LLVM())
	}
	return fmt.Sprintf("%s (%s)*", m.ReturnType.LLVM(), strings.Join(params, ", "))
}

// methodOwner returns the name of the class that actually defines the
// function backing class's vtable/method-table slot for name: the
// nearest ancestor (possibly class itself) whose own Methods entry for
// name is the same MethodInfo, i.e. the last class that declared or
// overrode it, per InheritFrom/OverrideMethod's pointer-sharing.
func (g *Generator) methodOwner(class *domain.ClassType, name string) string {
	m, ok := class.Methods[name]
	if !ok {
		return class.Name
	}
	owner := class.Name
	cur := class
	for cur.ParentName != "" {
		parent, ok := g.typeRegistry.GetClass(cur.ParentName)
		if !ok {
			break
		}
		pm, ok := parent.Methods[name]
		if !ok || pm != m {
			break
		}
		owner = parent.Name
		cur = parent
	}
	return owner
}

func (g *Generator) emitVtable(class *domain.ClassType) {
	if len(class.Vtable) == 0 {
		g.emitGlobal("%s = type {}", vtableTypeName(class))
		g.emitGlobal("@vtable.%s = global %s zeroinitializer", class.Name, vtableTypeName(class))
		return
	}
	slotTypes := make([]string, len(class.Vtable))
	parts := make([]string, len(class.Vtable))
	for i, m := range class.Vtable {
		slotTypes[i] = methodFnPtrType(class, m)
		owner := g.methodOwner(class, m.Name)
		parts[i] = fmt.Sprintf("%s @%s_%s", slotTypes[i], owner, m.Name)
	}
	g.emitGlobal("%s = type { %s }", vtableTypeName(class), strings.Join(slotTypes, ", "))
	g.emitGlobal("@vtable.%s = global %s { %s }", class.Name, vtableTypeName(class), strings.Join(parts, ", "))
}

func (g *Generator) emitConstructor(class *domain.ClassType) {
	g.indent = 0
	g.emit("define %s @%s_new() {", class.LLVM()+"*", class.Name)
	g.indent++
	g.emit("entry:")
	nullTemp := g.symbolTable.NextTemp()
	sizeTemp := g.symbolTable.NextTemp()
	g.emit("%s = getelementptr %s, %s null, i32 1", nullTemp, class.LLVM(), class.LLVM()+"*")
	g.emit("%s = ptrtoint %s %s to i64", sizeTemp, class.LLVM()+"*", nullTemp)
	raw := g.symbolTable.NextTemp()
	g.emit("%s = call i8* @malloc(i64 %s)", raw, sizeTemp)
	objReg := g.symbolTable.NextTemp()
	g.emit("%s = bitcast i8* %s to %s", objReg, raw, class.LLVM()+"*")
	vtSlot := g.symbolTable.NextTemp()
	g.emit("%s = getelementptr inbounds %s, %s %s, i32 0, i32 0", vtSlot, class.LLVM(), class.LLVM()+"*", objReg)
	g.emit("store i8** bitcast (%s* @vtable.%s to i8**), i8*** %s", vtableTypeName(class), class.Name, vtSlot)

	thisAddr := g.symbolTable.NextTemp()
	g.emit("%s = alloca %s", thisAddr, class.LLVM()+"*")
	g.emit("store %s %s, %s* %s", class.LLVM()+"*", objReg, class.LLVM()+"*", thisAddr)
	g.locals = map[string]*localVar{"this": {addr: thisAddr, sinType: g.typeRegistry.PointerTo(class)}}
	g.currentClass = class
	for i, name := range class.FieldOrder {
		field := class.Fields[name]
		ptr := g.symbolTable.NextTemp()
		g.emit("%s = getelementptr inbounds %s, %s %s, i32 0, i32 %d", ptr, class.LLVM(), class.LLVM()+"*", objReg, i+1)
		if initExpr, ok := field.Initializer.(domain.Expression); ok && initExpr != nil {
			if err := initExpr.Accept(g); err == nil {
				g.emit("store %s %s, %s* %s", field.FieldType.LLVM(), g.curVal, field.FieldType.LLVM(), ptr)
				continue
			}
		}
		g.emit("store %s %s, %s* %s", field.FieldType.LLVM(), zeroValue(field.FieldType), field.FieldType.LLVM(), ptr)
	}
	g.locals = nil
	g.currentClass = nil

	g.emit("ret %s %s", class.LLVM()+"*", objReg)
	g.indent--
	g.emit("}")
	g.emit("")
}

func (g *Generator) emitDestructor(class *domain.ClassType) {
	g.indent = 0
	g.emit("define void @%s_clean_impl(%s %%this) {", class.Name, class.LLVM()+"*")
	g.indent++
	g.emit("entry:")
	for i, name := range class.FieldOrder {
		field := class.Fields[name]
		ptrType, ok := field.FieldType.(*domain.PointerType)
		if !ok {
			continue
		}
		slot := g.symbolTable.NextTemp()
		g.emit("%s = getelementptr inbounds %s, %s %%this, i32 0, i32 %d", slot, class.LLVM(), class.LLVM()+"*", i+1)
		val := g.symbolTable.NextTemp()
		g.emit("%s = load %s, %s* %s", val, ptrType.LLVM(), ptrType.LLVM(), slot)
		isNull := g.symbolTable.NextTemp()
		g.emit("%s = icmp eq %s %s, null", isNull, ptrType.LLVM(), val)
		freeLabel := g.symbolTable.NextLabel("free")
		endLabel := g.symbolTable.NextLabel("end")
		g.emit("br i1 %s, label %%%s, label %%%s", isNull, endLabel, freeLabel)
		g.indent--
		g.emit("%s:", freeLabel)
		g.indent++
		raw := g.symbolTable.NextTemp()
		g.emit("%s = bitcast %s %s to i8*", raw, ptrType.LLVM(), val)
		g.emit("call void @free(i8* %s)", raw)
		g.emit("br label %%%s", endLabel)
		g.indent--
		g.emit("%s:", endLabel)
		g.indent++
	}
	raw := g.symbolTable.NextTemp()
	g.emit("%s = bitcast %s %%this to i8*", raw, class.LLVM()+"*")
	g.emit("call void @free(i8* %s)", raw)
	g.emit("ret void")
	g.indent--
	g.emit("}")
	g.emit("")
}

func zeroValue(t domain.Type) string {
	switch tt := t.(type) {
	case *domain.PrimitiveType:
		if tt.Kind == domain.Boolean {
			return "false"
		}
		if tt.Kind == domain.Float || tt.Kind == domain.Double {
			return "0.0e+00"
		}
		return "0"
	default:
		return "null"
	}
}

func methodParamTypes(class *domain.ClassType, method *domain.MethodDeclaration, g *Generator) []domain.Type {
	types := make([]domain.Type, len(method.Parameters))
	for i, p := range method.Parameters {
		t, _ := g.resolveTypeName(p.TypeName)
		types[i] = t
	}
	return types
}

func (g *Generator) genMethod(class *domain.ClassType, method *domain.MethodDeclaration) error {
	info := class.Methods[method.Name]
	paramTypes := methodParamTypes(class, method, g)

	if method.Body == nil {
		// Abstract methods are never called (no scenario instantiates an
		// abstract class) but the vtable of a concrete subclass that has
		// not overridden it still needs a resolvable symbol in-module.
		params := make([]string, 0, len(paramTypes)+1)
		if !method.Static {
			params = append(params, class.LLVM()+"*")
		}
		for _, t := range paramTypes {
			params = append(params, t.LLVM())
		}
		g.emitGlobal("declare %s @%s_%s(%s)", info.ReturnType.LLVM(), class.Name, method.Name, strings.Join(params, ", "))
		return nil
	}

	params := make([]string, 0, len(method.Parameters)+1)
	if !method.Static {
		params = append(params, fmt.Sprintf("%s* %%this.in", class.LLVM()))
	}
	for i, p := range method.Parameters {
		params = append(params, fmt.Sprintf("%s %%%s.in", paramTypes[i].LLVM(), p.Name))
	}

	g.indent = 0
	g.emit("define %s @%s_%s(%s) {", info.ReturnType.LLVM(), class.Name, method.Name, strings.Join(params, ", "))
	g.indent++
	g.emit("entry:")

	g.locals = make(map[string]*localVar)
	g.dstrDeps = make(map[string][]dstrRef)
	if !method.Static {
		addr := "%this.addr"
		g.emit("%s = alloca %s", addr, class.LLVM()+"*")
		g.emit("store %s %%this.in, %s* %s", class.LLVM()+"*", class.LLVM()+"*", addr)
		g.locals["this"] = &localVar{addr: addr, sinType: g.typeRegistry.PointerTo(class)}
		g.locals["self"] = g.locals["this"]
	}
	for i, p := range method.Parameters {
		addr := "%" + p.Name + ".addr"
		g.emit("%s = alloca %s", addr, paramTypes[i].LLVM())
		g.emit("store %s %%%s.in, %s* %s", paramTypes[i].LLVM(), p.Name, paramTypes[i].LLVM(), addr)
		g.locals[p.Name] = &localVar{addr: addr, sinType: paramTypes[i]}
	}

	if err := method.Body.Accept(g); err != nil {
		return err
	}
	g.synthesizeTerminator(info.ReturnType, false)

	g.indent--
	g.emit("}")
	g.emit("")
	g.locals = nil
	g.dstrDeps = nil
	return nil
}

func (g *Generator) VisitFunctionDecl(decl *domain.FunctionDeclaration) error {
	params := make([]string, 0, len(decl.Parameters))
	paramTypes := make([]domain.Type, len(decl.Parameters))
	for i, p := range decl.Parameters {
		t, _ := g.resolveTypeName(p.TypeName)
		paramTypes[i] = t
		params = append(params, fmt.Sprintf("%s %%%s.in", t.LLVM(), p.Name))
	}
	retType, _ := g.resolveTypeName(decl.ReturnTypeName)

	g.indent = 0
	g.emit("define %s @%s(%s) {", retType.LLVM(), decl.Name, strings.Join(params, ", "))
	g.indent++
	g.emit("entry:")

	g.locals = make(map[string]*localVar)
	g.dstrDeps = make(map[string][]dstrRef)
	for i, p := range decl.Parameters {
		addr := "%" + p.Name + ".addr"
		g.emit("%s = alloca %s", addr, paramTypes[i].LLVM())
		g.emit("store %s %%%s.in, %s* %s", paramTypes[i].LLVM(), p.Name, paramTypes[i].LLVM(), addr)
		g.locals[p.Name] = &localVar{addr: addr, sinType: paramTypes[i]}
	}

	if err := decl.Body.Accept(g); err != nil {
		return err
	}
	g.synthesizeTerminator(retType, decl.Name == "main")

	g.indent--
	g.emit("}")
	g.emit("")
	g.locals = nil
	g.dstrDeps = nil
	return nil
}

// synthesizeTerminator inspects the last emitted line of the current
// function and, if control can still fall off the end, appends a default
// terminator so every basic block ends properly.
func (g *Generator) synthesizeTerminator(retType domain.Type, isMain bool) {
	if g.lastLineIsTerminator() {
		return
	}
	if isMain {
		g.emit("ret i32 0")
		return
	}
	if _, isVoid := retType.(*domain.VoidType); isVoid {
		g.emit("ret void")
		return
	}
	g.emit("ret %s %s", retType.LLVM(), zeroValue(retType))
}

func (g *Generator) resolveTypeName(name string) (domain.Type, bool) {
	if name == "" {
		return &domain.VoidType{}, true
	}
	arrayDepth := 0
	base := name
	for strings.HasSuffix(base, "[]") {
		arrayDepth++
		base = strings.TrimSuffix(base, "[]")
	}
	ptrDepth := 0
	for strings.HasPrefix(base, "*") {
		ptrDepth++
		base = strings.TrimPrefix(base, "*")
	}

	var t domain.Type
	if builtin, ok := g.typeRegistry.GetBuiltin(base); ok {
		t = builtin
	} else if class, ok := g.typeRegistry.GetClass(base); ok {
		t = class
	} else if iface, ok := g.typeRegistry.GetInterface(base); ok {
		t = iface
	} else {
		return &domain.InvalidType{Reason: "undefined type " + name}, false
	}
	for i := 0; i < ptrDepth; i++ {
		t = g.typeRegistry.PointerTo(t)
	}
	for i := 0; i < arrayDepth; i++ {
		t = g.typeRegistry.ArrayOf(t, -1)
	}
	return t, true
}

func (g *Generator) VisitFieldDecl(decl *domain.FieldDeclaration) error   { return nil }
func (g *Generator) VisitMethodDecl(decl *domain.MethodDeclaration) error { return nil }
func (g *Generator) VisitScopeBlock(decl *domain.ScopeBlock) error        { return nil }

// ---- Statements ----

func (g *Generator) VisitBlockStmt(stmt *domain.BlockStmt) error {
	for _, s := range stmt.Statements {
		if err := s.Accept(g); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) VisitExprStmt(stmt *domain.ExprStmt) error {
	return stmt.Expr.Accept(g)
}

func (g *Generator) VisitVarDeclStmt(stmt *domain.VarDeclStmt) error {
	t := stmt.ResolvedType
	if t == nil {
		t, _ = g.resolveTypeName(stmt.TypeName)
	}
	addr := "%" + stmt.Name + ".addr"

	if stmt.Initializer == nil {
		g.emit("%s = alloca %s", addr, t.LLVM())
		g.locals[stmt.Name] = &localVar{addr: addr, sinType: t}
		g.emit("store %s %s, %s* %s", t.LLVM(), zeroValue(t), t.LLVM(), addr)
		return nil
	}

	if err := stmt.Initializer.Accept(g); err != nil {
		return err
	}
	// A d_str initializer makes the binding dynamic even when it is
	// declared str: the slot keeps the DString instance and every read
	// goes through DString_get.
	if _, isDStr := g.curTyp.(*domain.DStringType); isDStr {
		t = g.curTyp
	}
	g.emit("%s = alloca %s", addr, t.LLVM())
	g.locals[stmt.Name] = &localVar{addr: addr, sinType: t}
	if _, isDStr := t.(*domain.DStringType); isDStr {
		g.bindDStringVar(stmt.Name, g.curVal)
	}
	val := g.widenTo(g.curVal, g.curTyp, t)
	g.emit("store %s %s, %s* %s", t.LLVM(), val, t.LLVM(), addr)
	return nil
}

func (g *Generator) VisitAssignStmt(stmt *domain.AssignStmt) error {
	addr, elemType, err := g.genAddr(stmt.Target)
	if err != nil {
		return err
	}

	value := stmt.Value
	if stmt.CompoundOp != nil {
		value = &domain.BinaryExpr{Left: stmt.Target, Operator: *stmt.CompoundOp, Right: stmt.Value}
	}
	if err := value.Accept(g); err != nil {
		return err
	}
	stored := g.widenTo(g.curVal, g.curTyp, elemType)
	g.emit("store %s %s, %s* %s", elemType.LLVM(), stored, elemType.LLVM(), addr)

	if ident, ok := stmt.Target.(*domain.IdentifierExpr); ok {
		if _, isDStr := elemType.(*domain.DStringType); isDStr {
			g.bindDStringVar(ident.Name, g.curVal)
		}
		g.markDStringDependentsDirty(ident.Name)
	}
	return nil
}

func (g *Generator) VisitIfStmt(stmt *domain.IfStmt) error {
	if err := stmt.Condition.Accept(g); err != nil {
		return err
	}
	cond := g.curVal
	thenLabel := g.symbolTable.NextLabel("if.then")
	elseLabel := g.symbolTable.NextLabel("if.else")
	endLabel := g.symbolTable.NextLabel("if.end")

	if stmt.Else != nil {
		g.emit("br i1 %s, label %%%s, label %%%s", cond, thenLabel, elseLabel)
	} else {
		g.emit("br i1 %s, label %%%s, label %%%s", cond, thenLabel, endLabel)
	}

	g.indent--
	g.emit("%s:", thenLabel)
	g.indent++
	if err := stmt.Then.Accept(g); err != nil {
		return err
	}
	if !g.lastLineIsTerminator() {
		g.emit("br label %%%s", endLabel)
	}

	if stmt.Else != nil {
		g.indent--
		g.emit("%s:", elseLabel)
		g.indent++
		if err := stmt.Else.Accept(g); err != nil {
			return err
		}
		if !g.lastLineIsTerminator() {
			g.emit("br label %%%s", endLabel)
		}
	}

	g.indent--
	g.emit("%s:", endLabel)
	g.indent++
	return nil
}

func (g *Generator) lastLineIsTerminator() bool {
	lines := strings.Split(strings.TrimRight(g.output.String(), "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		return strings.HasPrefix(trimmed, "ret") || strings.HasPrefix(trimmed, "br ")
	}
	return false
}

func (g *Generator) VisitWhileStmt(stmt *domain.WhileStmt) error {
	condLabel := g.symbolTable.NextLabel("while.cond")
	bodyLabel := g.symbolTable.NextLabel("while.body")
	endLabel := g.symbolTable.NextLabel("while.end")

	g.emit("br label %%%s", condLabel)
	g.indent--
	g.emit("%s:", condLabel)
	g.indent++
	if err := stmt.Condition.Accept(g); err != nil {
		return err
	}
	g.emit("br i1 %s, label %%%s, label %%%s", g.curVal, bodyLabel, endLabel)

	g.indent--
	g.emit("%s:", bodyLabel)
	g.indent++
	g.breakLabels = append(g.breakLabels, endLabel)
	g.continueLabels = append(g.continueLabels, condLabel)
	if err := stmt.Body.Accept(g); err != nil {
		return err
	}
	g.breakLabels = g.breakLabels[:len(g.breakLabels)-1]
	g.continueLabels = g.continueLabels[:len(g.continueLabels)-1]
	if !g.lastLineIsTerminator() {
		g.emit("br label %%%s", condLabel)
	}

	g.indent--
	g.emit("%s:", endLabel)
	g.indent++
	return nil
}

func (g *Generator) VisitForStmt(stmt *domain.ForStmt) error {
	if stmt.Init != nil {
		if err := stmt.Init.Accept(g); err != nil {
			return err
		}
	}
	condLabel := g.symbolTable.NextLabel("for.cond")
	bodyLabel := g.symbolTable.NextLabel("for.body")
	incLabel := g.symbolTable.NextLabel("for.inc")
	endLabel := g.symbolTable.NextLabel("for.end")

	g.emit("br label %%%s", condLabel)
	g.indent--
	g.emit("%s:", condLabel)
	g.indent++
	if stmt.Condition != nil {
		if err := stmt.Condition.Accept(g); err != nil {
			return err
		}
		g.emit("br i1 %s, label %%%s, label %%%s", g.curVal, bodyLabel, endLabel)
	} else {
		g.emit("br label %%%s", bodyLabel)
	}

	g.indent--
	g.emit("%s:", bodyLabel)
	g.indent++
	g.breakLabels = append(g.breakLabels, endLabel)
	g.continueLabels = append(g.continueLabels, incLabel)
	if err := stmt.Body.Accept(g); err != nil {
		return err
	}
	g.breakLabels = g.breakLabels[:len(g.breakLabels)-1]
	g.continueLabels = g.continueLabels[:len(g.continueLabels)-1]
	if !g.lastLineIsTerminator() {
		g.emit("br label %%%s", incLabel)
	}

	g.indent--
	g.emit("%s:", incLabel)
	g.indent++
	if stmt.Update != nil {
		if err := stmt.Update.Accept(g); err != nil {
			return err
		}
	}
	g.emit("br label %%%s", condLabel)

	g.indent--
	g.emit("%s:", endLabel)
	g.indent++
	return nil
}

// VisitForEachStmt lowers `for (var x in xs)` to an index-based loop over
// the backing array pointer. Arrays carry no length header of their own,
// so the iteration count comes from the collection expression's static
// array type; an unsized array type (declared `T[]`) iterates zero times,
// since no runtime length is available to bound it.
func (g *Generator) VisitForEachStmt(stmt *domain.ForEachStmt) error {
	if err := stmt.Collection.Accept(g); err != nil {
		return err
	}
	arrayVal := g.curVal
	arrType, ok := g.curTyp.(*domain.ArrayType)
	if !ok {
		g.reportError("for-each over a non-array expression", stmt.GetLocation())
		return nil
	}
	length := arrType.Size_
	if length < 0 {
		length = 0
	}

	idxAddr := g.symbolTable.NextTemp()
	g.emit("%s = alloca i32", idxAddr)
	g.emit("store i32 0, i32* %s", idxAddr)

	elemAddr := "%" + stmt.VarName + ".addr"
	g.emit("%s = alloca %s", elemAddr, arrType.Element.LLVM())
	g.locals[stmt.VarName] = &localVar{addr: elemAddr, sinType: arrType.Element}

	condLabel := g.symbolTable.NextLabel("foreach.cond")
	bodyLabel := g.symbolTable.NextLabel("foreach.body")
	incLabel := g.symbolTable.NextLabel("foreach.inc")
	endLabel := g.symbolTable.NextLabel("foreach.end")

	g.emit("br label %%%s", condLabel)
	g.indent--
	g.emit("%s:", condLabel)
	g.indent++
	idx := g.symbolTable.NextTemp()
	g.emit("%s = load i32, i32* %s", idx, idxAddr)
	cmp := g.symbolTable.NextTemp()
	g.emit("%s = icmp slt i32 %s, %d", cmp, idx, length)
	g.emit("br i1 %s, label %%%s, label %%%s", cmp, bodyLabel, endLabel)

	g.indent--
	g.emit("%s:", bodyLabel)
	g.indent++
	elemPtr := g.symbolTable.NextTemp()
	g.emit("%s = getelementptr inbounds %s, %s %s, i32 %s", elemPtr, arrType.Element.LLVM(), arrType.LLVM(), arrayVal, idx)
	elemVal := g.symbolTable.NextTemp()
	g.emit("%s = load %s, %s* %s", elemVal, arrType.Element.LLVM(), arrType.Element.LLVM(), elemPtr)
	g.emit("store %s %s, %s* %s", arrType.Element.LLVM(), elemVal, arrType.Element.LLVM(), elemAddr)

	g.breakLabels = append(g.breakLabels, endLabel)
	g.continueLabels = append(g.continueLabels, incLabel)
	if err := stmt.Body.Accept(g); err != nil {
		return err
	}
	g.breakLabels = g.breakLabels[:len(g.breakLabels)-1]
	g.continueLabels = g.continueLabels[:len(g.continueLabels)-1]
	if !g.lastLineIsTerminator() {
		g.emit("br label %%%s", incLabel)
	}

	g.indent--
	g.emit("%s:", incLabel)
	g.indent++
	next := g.symbolTable.NextTemp()
	g.emit("%s = add i32 %s, 1", next, idx)
	g.emit("store i32 %s, i32* %s", next, idxAddr)
	g.emit("br label %%%s", condLabel)

	g.indent--
	g.emit("%s:", endLabel)
	g.indent++
	return nil
}

func (g *Generator) VisitBreakStmt(stmt *domain.BreakStmt) error {
	if len(g.breakLabels) == 0 {
		return nil
	}
	g.emit("br label %%%s", g.breakLabels[len(g.breakLabels)-1])
	return nil
}

func (g *Generator) VisitContinueStmt(stmt *domain.ContinueStmt) error {
	if len(g.continueLabels) == 0 {
		return nil
	}
	g.emit("br label %%%s", g.continueLabels[len(g.continueLabels)-1])
	return nil
}

func (g *Generator) VisitReturnStmt(stmt *domain.ReturnStmt) error {
	if stmt.Value == nil {
		g.emit("ret void")
		return nil
	}
	if err := stmt.Value.Accept(g); err != nil {
		return err
	}
	g.emit("ret %s %s", g.curTyp.LLVM(), g.curVal)
	return nil
}

func (g *Generator) VisitPrintStmt(stmt *domain.PrintStmt) error {
	return g.genPrint(stmt.Args, stmt.Newline)
}

// ---- Expressions ----

func (g *Generator) VisitLiteralExpr(expr *domain.LiteralExpr) error {
	switch expr.Kind {
	case domain.IntLiteral:
		g.curVal, g.curTyp = expr.Value.(string), expr.GetType()
	case domain.FloatLiteral:
		g.curVal, g.curTyp = floatLiteralIR(expr.Value.(string)), expr.GetType()
	case domain.BoolLiteral:
		if expr.Value.(bool) {
			g.curVal = "true"
		} else {
			g.curVal = "false"
		}
		g.curTyp = expr.GetType()
	case domain.NullLiteral:
		g.curVal, g.curTyp = "null", expr.GetType()
	case domain.StringLiteralKind:
		name := g.symbolTable.InternString(expr.Value.(string))
		reg := g.symbolTable.NextTemp()
		n := len(expr.Value.(string)) + 1
		g.emit("%s = getelementptr inbounds [%d x i8], [%d x i8]* %s, i32 0, i32 0", reg, n, n, name)
		g.curVal, g.curTyp = reg, expr.GetType()
	case domain.DStringLiteralKind:
		return g.genDStringLiteral(expr)
	default:
		g.curVal, g.curTyp = "null", expr.GetType()
	}
	return nil
}

func floatLiteralIR(raw string) string {
	if !strings.Contains(raw, ".") {
		raw += ".0"
	}
	return raw + "e+00"
}

func (g *Generator) VisitIdentifierExpr(expr *domain.IdentifierExpr) error {
	lv, ok := g.locals[expr.Name]
	if !ok {
		if addr, fieldType, found := g.implicitFieldAddr(expr.Name); found {
			reg := g.symbolTable.NextTemp()
			g.emit("%s = load %s, %s* %s", reg, fieldType.LLVM(), fieldType.LLVM(), addr)
			g.curVal, g.curTyp, g.curAddr = reg, fieldType, addr
			return nil
		}
		g.reportError(fmt.Sprintf("internal error: unresolved identifier '%s'", expr.Name), expr.GetLocation())
		g.curVal, g.curTyp = "null", expr.GetType()
		return nil
	}
	if _, isDStr := lv.sinType.(*domain.DStringType); isDStr {
		return g.genDStringRead(expr.Name, lv)
	}
	reg := g.symbolTable.NextTemp()
	g.emit("%s = load %s, %s* %s", reg, lv.sinType.LLVM(), lv.sinType.LLVM(), lv.addr)
	g.curVal, g.curTyp, g.curAddr = reg, lv.sinType, lv.addr
	return nil
}

func (g *Generator) VisitBinaryExpr(expr *domain.BinaryExpr) error {
	if err := expr.Left.Accept(g); err != nil {
		return err
	}
	lhs, lhsType := g.curVal, g.curTyp
	if err := expr.Right.Accept(g); err != nil {
		return err
	}
	rhs, rhsType := g.curVal, g.curTyp

	if expr.Operator == domain.Add {
		if _, isStr := lhsType.(*domain.StringType); isStr {
			return g.genStringConcat(lhs, rhs)
		}
	}

	workingType := lhsType
	if domain.IsNumeric(lhsType) && domain.IsNumeric(rhsType) {
		if w := domain.WidenedNumeric(lhsType, rhsType); w != nil {
			workingType = w
		}
	}
	lhs = g.widenTo(lhs, lhsType, workingType)
	rhs = g.widenTo(rhs, rhsType, workingType)

	isFloat := isFloatingType(workingType)
	operandType := workingType.LLVM()
	reg := g.symbolTable.NextTemp()

	switch expr.Operator {
	case domain.Add:
		g.emit("%s = %s %s %s, %s", reg, pick(isFloat, "fadd", "add"), operandType, lhs, rhs)
	case domain.Sub:
		g.emit("%s = %s %s %s, %s", reg, pick(isFloat, "fsub", "sub"), operandType, lhs, rhs)
	case domain.Mul:
		g.emit("%s = %s %s %s, %s", reg, pick(isFloat, "fmul", "mul"), operandType, lhs, rhs)
	case domain.Div:
		g.emit("%s = %s %s %s, %s", reg, pick(isFloat, "fdiv", "sdiv"), operandType, lhs, rhs)
	case domain.Mod:
		g.emit("%s = %s %s %s, %s", reg, pick(isFloat, "frem", "srem"), operandType, lhs, rhs)
	case domain.Eq:
		g.emit("%s = %s %s %s %s, %s", reg, pick(isFloat, "fcmp", "icmp"), pick(isFloat, "oeq", "eq"), operandType, lhs, rhs)
	case domain.Ne:
		g.emit("%s = %s %s %s %s, %s", reg, pick(isFloat, "fcmp", "icmp"), pick(isFloat, "one", "ne"), operandType, lhs, rhs)
	case domain.Lt:
		g.emit("%s = %s %s %s %s, %s", reg, pick(isFloat, "fcmp", "icmp"), pick(isFloat, "olt", "slt"), operandType, lhs, rhs)
	case domain.Le:
		g.emit("%s = %s %s %s %s, %s", reg, pick(isFloat, "fcmp", "icmp"), pick(isFloat, "ole", "sle"), operandType, lhs, rhs)
	case domain.Gt:
		g.emit("%s = %s %s %s %s, %s", reg, pick(isFloat, "fcmp", "icmp"), pick(isFloat, "ogt", "sgt"), operandType, lhs, rhs)
	case domain.Ge:
		g.emit("%s = %s %s %s %s, %s", reg, pick(isFloat, "fcmp", "icmp"), pick(isFloat, "oge", "sge"), operandType, lhs, rhs)
	case domain.And:
		g.emit("%s = and i1 %s, %s", reg, lhs, rhs)
	case domain.Or:
		g.emit("%s = or i1 %s, %s", reg, lhs, rhs)
	case domain.BitAnd:
		g.emit("%s = and %s %s, %s", reg, operandType, lhs, rhs)
	case domain.BitOr:
		g.emit("%s = or %s %s, %s", reg, operandType, lhs, rhs)
	case domain.Xor:
		g.emit("%s = xor %s %s, %s", reg, operandType, lhs, rhs)
	default:
		g.reportError("unsupported binary operator", expr.GetLocation())
	}
	g.curVal, g.curTyp = reg, resultTypeFor(expr.Operator, workingType)
	return nil
}

// widenTo emits a conversion instruction from from to to when they
// differ, implementing the numeric widening the semantic analyzer
// permits without inserting an explicit cast node of its own.
func (g *Generator) widenTo(val string, from, to domain.Type) string {
	if from == nil || to == nil || from.Equals(to) {
		return val
	}
	fp, fOK := from.(*domain.PrimitiveType)
	tp, tOK := to.(*domain.PrimitiveType)
	if !fOK || !tOK {
		return val
	}
	fromFloat := fp.Kind == domain.Float || fp.Kind == domain.Double
	toFloat := tp.Kind == domain.Float || tp.Kind == domain.Double
	reg := g.symbolTable.NextTemp()
	switch {
	case !fromFloat && !toFloat:
		if tp.Size() == fp.Size() {
			return val
		}
		op := pick(tp.Size() > fp.Size(), "sext", "trunc")
		g.emit("%s = %s %s %s to %s", reg, op, fp.LLVM(), val, tp.LLVM())
	case !fromFloat && toFloat:
		g.emit("%s = sitofp %s %s to %s", reg, fp.LLVM(), val, tp.LLVM())
	case fromFloat && !toFloat:
		g.emit("%s = fptosi %s %s to %s", reg, fp.LLVM(), val, tp.LLVM())
	default:
		if tp.Size() == fp.Size() {
			return val
		}
		op := pick(tp.Size() > fp.Size(), "fpext", "fptrunc")
		g.emit("%s = %s %s %s to %s", reg, op, fp.LLVM(), val, tp.LLVM())
	}
	return reg
}

// resultTypeFor returns the sinter-level result type of a binary
// operator: comparisons and logical ops always produce boolean
// regardless of the widened operand type.
func resultTypeFor(op domain.BinaryOperator, operandType domain.Type) domain.Type {
	switch op {
	case domain.Eq, domain.Ne, domain.Lt, domain.Le, domain.Gt, domain.Ge, domain.And, domain.Or:
		return &domain.PrimitiveType{Kind: domain.Boolean}
	default:
		return operandType
	}
}

func isFloatingType(t domain.Type) bool {
	p, ok := t.(*domain.PrimitiveType)
	return ok && (p.Kind == domain.Float || p.Kind == domain.Double)
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func (g *Generator) genStringConcat(lhs, rhs string) error {
	len1 := g.symbolTable.NextTemp()
	g.emit("%s = call i64 @strlen(i8* %s)", len1, lhs)
	len2 := g.symbolTable.NextTemp()
	g.emit("%s = call i64 @strlen(i8* %s)", len2, rhs)
	total := g.symbolTable.NextTemp()
	g.emit("%s = add i64 %s, %s", total, len1, len2)
	totalP1 := g.symbolTable.NextTemp()
	g.emit("%s = add i64 %s, 1", totalP1, total)
	buf := g.symbolTable.NextTemp()
	g.emit("%s = call i8* @malloc(i64 %s)", buf, totalP1)
	copied := g.symbolTable.NextTemp()
	g.emit("%s = call i8* @strcpy(i8* %s, i8* %s)", copied, buf, lhs)
	concat := g.symbolTable.NextTemp()
	g.emit("%s = call i8* @strcat(i8* %s, i8* %s)", concat, buf, rhs)
	g.curVal, g.curTyp = buf, &domain.StringType{}
	return nil
}

func (g *Generator) VisitUnaryExpr(expr *domain.UnaryExpr) error {
	switch expr.Operator {
	case domain.Neg:
		if err := expr.Operand.Accept(g); err != nil {
			return err
		}
		reg := g.symbolTable.NextTemp()
		if isFloatingType(g.curTyp) {
			g.emit("%s = fneg %s %s", reg, g.curTyp.LLVM(), g.curVal)
		} else {
			g.emit("%s = sub %s 0, %s", reg, g.curTyp.LLVM(), g.curVal)
		}
		g.curVal = reg
		return nil
	case domain.Not:
		if err := expr.Operand.Accept(g); err != nil {
			return err
		}
		reg := g.symbolTable.NextTemp()
		g.emit("%s = xor i1 %s, true", reg, g.curVal)
		g.curVal = reg
		return nil
	case domain.PreInc, domain.PreDec, domain.PostInc, domain.PostDec:
		addr, elemType, err := g.genAddr(expr.Operand)
		if err != nil {
			return err
		}
		old := g.symbolTable.NextTemp()
		g.emit("%s = load %s, %s* %s", old, elemType.LLVM(), elemType.LLVM(), addr)
		isInc := expr.Operator == domain.PreInc || expr.Operator == domain.PostInc
		updated := g.symbolTable.NextTemp()
		if isFloatingType(elemType) {
			g.emit("%s = %s %s %s, 1.0e+00", updated, pick(isInc, "fadd", "fsub"), elemType.LLVM(), old)
		} else {
			g.emit("%s = %s %s %s, 1", updated, pick(isInc, "add", "sub"), elemType.LLVM(), old)
		}
		g.emit("store %s %s, %s* %s", elemType.LLVM(), updated, elemType.LLVM(), addr)
		if ident, ok := expr.Operand.(*domain.IdentifierExpr); ok {
			g.markDStringDependentsDirty(ident.Name)
		}
		if expr.Operator == domain.PreInc || expr.Operator == domain.PreDec {
			g.curVal = updated
		} else {
			g.curVal = old
		}
		g.curTyp = elemType
		return nil
	}
	return nil
}

func (g *Generator) VisitPointerExpr(expr *domain.PointerExpr) error {
	switch expr.Operator {
	case domain.AddressOf:
		addr, elemType, err := g.genAddr(expr.Operand)
		if err != nil {
			return err
		}
		g.curVal, g.curTyp = addr, g.typeRegistry.PointerTo(elemType)
		return nil
	case domain.Deref:
		if err := expr.Operand.Accept(g); err != nil {
			return err
		}
		ptrType, ok := g.curTyp.(*domain.PointerType)
		if !ok {
			g.reportError("dereference of non-pointer value", expr.GetLocation())
			return nil
		}
		reg := g.symbolTable.NextTemp()
		g.emit("%s = load %s, %s* %s", reg, ptrType.Pointee.LLVM(), ptrType.Pointee.LLVM(), g.curVal)
		g.curVal, g.curTyp = reg, ptrType.Pointee
		return nil
	}
	return nil
}

func (g *Generator) VisitMemberAccess(expr *domain.MemberAccess) error {
	addr, elemType, err := g.genAddr(expr)
	if err != nil {
		return err
	}
	reg := g.symbolTable.NextTemp()
	g.emit("%s = load %s, %s* %s", reg, elemType.LLVM(), elemType.LLVM(), addr)
	g.curVal, g.curTyp, g.curAddr = reg, elemType, addr
	return nil
}

// classOf unwraps a pointer-to-class type; a bare class type is accepted
// too, since `this` inside a constructor is bound to the class itself.
func classOf(t domain.Type) *domain.ClassType {
	if p, ok := t.(*domain.PointerType); ok {
		t = p.Pointee
	}
	c, _ := t.(*domain.ClassType)
	return c
}

// implicitFieldAddr resolves name as a field of the enclosing class
// through the method's this pointer; ok is false outside methods or when
// the class has no such field.
func (g *Generator) implicitFieldAddr(name string) (string, domain.Type, bool) {
	if g.currentClass == nil {
		return "", nil, false
	}
	field, ok := g.currentClass.Fields[name]
	if !ok {
		return "", nil, false
	}
	thisLV, ok := g.locals["this"]
	if !ok {
		return "", nil, false
	}
	thisVal := g.symbolTable.NextTemp()
	g.emit("%s = load %s, %s* %s", thisVal, thisLV.sinType.LLVM(), thisLV.sinType.LLVM(), thisLV.addr)
	ptr := g.symbolTable.NextTemp()
	g.emit("%s = getelementptr inbounds %s, %s %s, i32 0, i32 %d",
		ptr, g.currentClass.LLVM(), g.currentClass.LLVM()+"*", thisVal, fieldIndex(g.currentClass, name))
	return ptr, field.FieldType, true
}

// genAddr evaluates an lvalue expression, returning the address of its
// storage location and the type stored there.
func (g *Generator) genAddr(expr domain.Expression) (string, domain.Type, error) {
	switch e := expr.(type) {
	case *domain.IdentifierExpr:
		lv, ok := g.locals[e.Name]
		if !ok {
			if addr, fieldType, found := g.implicitFieldAddr(e.Name); found {
				return addr, fieldType, nil
			}
			g.reportError(fmt.Sprintf("internal error: unresolved identifier '%s'", e.Name), e.GetLocation())
			return "", &domain.InvalidType{}, nil
		}
		return lv.addr, lv.sinType, nil
	case *domain.MemberAccess:
		if err := e.Object.Accept(g); err != nil {
			return "", nil, err
		}
		objVal, objType := g.curVal, g.curTyp
		class := classOf(objType)
		if class == nil {
			g.reportError("member access on non-class value", e.GetLocation())
			return "", &domain.InvalidType{}, nil
		}
		field, ok := class.Fields[e.Member]
		if !ok {
			g.reportError(fmt.Sprintf("class '%s' has no field '%s'", class.Name, e.Member), e.GetLocation())
			return "", &domain.InvalidType{}, nil
		}
		index := fieldIndex(class, e.Member)
		ptr := g.symbolTable.NextTemp()
		g.emit("%s = getelementptr inbounds %s, %s %s, i32 0, i32 %d", ptr, class.LLVM(), class.LLVM()+"*", objVal, index)
		return ptr, field.FieldType, nil
	case *domain.PointerExpr:
		if e.Operator != domain.Deref {
			g.reportError("address-of is not an assignable location", e.GetLocation())
			return "", &domain.InvalidType{}, nil
		}
		if err := e.Operand.Accept(g); err != nil {
			return "", nil, err
		}
		ptrType, ok := g.curTyp.(*domain.PointerType)
		if !ok {
			g.reportError("dereference of non-pointer value", e.GetLocation())
			return "", &domain.InvalidType{}, nil
		}
		return g.curVal, ptrType.Pointee, nil
	case *domain.ArrayAccess:
		if err := e.Array.Accept(g); err != nil {
			return "", nil, err
		}
		arrVal := g.curVal
		arrType, ok := g.curTyp.(*domain.ArrayType)
		if !ok {
			g.reportError("indexing a non-array value", e.GetLocation())
			return "", &domain.InvalidType{}, nil
		}
		if err := e.Index.Accept(g); err != nil {
			return "", nil, err
		}
		idx := g.curVal
		ptr := g.symbolTable.NextTemp()
		g.emit("%s = getelementptr inbounds %s, %s %s, i32 %s", ptr, arrType.Element.LLVM(), arrType.LLVM(), arrVal, idx)
		return ptr, arrType.Element, nil
	default:
		if err := expr.Accept(g); err != nil {
			return "", nil, err
		}
		if g.curAddr != "" {
			return g.curAddr, g.curTyp, nil
		}
		g.reportError("expression is not assignable", expr.GetLocation())
		return "", &domain.InvalidType{}, nil
	}
}

// fieldIndex returns the GEP index of a field within its class struct:
// slot 0 is always the vtable pointer, so fields start at index 1.
func fieldIndex(class *domain.ClassType, name string) int {
	for i, n := range class.FieldOrder {
		if n == name {
			return i + 1
		}
	}
	return -1
}

func (g *Generator) VisitMethodCall(expr *domain.MethodCall) error {
	switch callee := expr.Callee.(type) {
	case *domain.MemberAccess:
		if callee.Member == "clean" {
			return g.genCleanCall(callee.Object)
		}
		if callee.Member == "release" {
			// release only changes ownership bookkeeping (already
			// resolved during pointer validation); no code to emit
			// beyond evaluating the receiver for its side effects.
			return callee.Object.Accept(g)
		}
		if err := callee.Object.Accept(g); err != nil {
			return err
		}
		thisVal, objType := g.curVal, g.curTyp
		class := classOf(objType)
		if class == nil {
			g.reportError("method call on non-class value", expr.GetLocation())
			return nil
		}
		method, ok := class.Methods[callee.Member]
		if !ok {
			if callee.Member == "as_json" {
				return g.genAsJSONCall(class, thisVal)
			}
			g.reportError(fmt.Sprintf("class '%s' has no method '%s'", class.Name, callee.Member), expr.GetLocation())
			return nil
		}

		owner := g.methodOwner(class, callee.Member)
		thisArgType, thisArgVal := class.LLVM()+"*", thisVal
		if owner != class.Name {
			ownerClass, _ := g.typeRegistry.GetClass(owner)
			casted := g.symbolTable.NextTemp()
			g.emit("%s = bitcast %s %s to %s", casted, class.LLVM()+"*", thisVal, ownerClass.LLVM()+"*")
			thisArgType, thisArgVal = ownerClass.LLVM()+"*", casted
		}

		args := []string{fmt.Sprintf("%s %s", thisArgType, thisArgVal)}
		for _, a := range expr.Args {
			if err := a.Accept(g); err != nil {
				return err
			}
			args = append(args, fmt.Sprintf("%s %s", g.curTyp.LLVM(), g.curVal))
		}
		if _, void := method.ReturnType.(*domain.VoidType); void {
			g.emit("call void @%s_%s(%s)", owner, method.Name, strings.Join(args, ", "))
			g.curVal, g.curTyp = "void", method.ReturnType
			return nil
		}
		reg := g.symbolTable.NextTemp()
		g.emit("%s = call %s @%s_%s(%s)", reg, method.ReturnType.LLVM(), owner, method.Name, strings.Join(args, ", "))
		g.curVal, g.curTyp = reg, method.ReturnType
		return nil
	case *domain.IdentifierExpr:
		args := make([]string, 0, len(expr.Args))
		for _, a := range expr.Args {
			if err := a.Accept(g); err != nil {
				return err
			}
			args = append(args, fmt.Sprintf("%s %s", g.curTyp.LLVM(), g.curVal))
		}
		retType := expr.GetType()
		if _, void := retType.(*domain.VoidType); void {
			g.emit("call void @%s(%s)", callee.Name, strings.Join(args, ", "))
			g.curVal, g.curTyp = "void", retType
			return nil
		}
		reg := g.symbolTable.NextTemp()
		g.emit("%s = call %s @%s(%s)", reg, retType.LLVM(), callee.Name, strings.Join(args, ", "))
		g.curVal, g.curTyp = reg, retType
		return nil
	default:
		g.reportError("unsupported call target", expr.GetLocation())
		return nil
	}
}

// genCleanCall lowers `obj.clean()` to the class destructor, or to a
// direct free for a non-class pointer.
func (g *Generator) genCleanCall(obj domain.Expression) error {
	if err := obj.Accept(g); err != nil {
		return err
	}
	class := classOf(g.curTyp)
	if class != nil {
		g.emit("call void @%s_clean_impl(%s %s)", class.Name, class.LLVM()+"*", g.curVal)
		return nil
	}
	raw := g.symbolTable.NextTemp()
	g.emit("%s = bitcast %s %s to i8*", raw, g.curTyp.LLVM(), g.curVal)
	g.emit("call void @free(i8* %s)", raw)
	return nil
}

func (g *Generator) VisitNewExpr(expr *domain.NewExpr) error {
	class, ok := g.typeRegistry.GetClass(expr.ClassName)
	if !ok {
		g.reportError(fmt.Sprintf("undefined class '%s'", expr.ClassName), expr.GetLocation())
		return nil
	}
	objReg := g.symbolTable.NextTemp()
	g.emit("%s = call %s @%s_new()", objReg, class.LLVM()+"*", class.Name)

	for i, argExpr := range expr.Args {
		if i >= len(class.FieldOrder) {
			break
		}
		if err := argExpr.Accept(g); err != nil {
			return err
		}
		field := class.Fields[class.FieldOrder[i]]
		ptr := g.symbolTable.NextTemp()
		g.emit("%s = getelementptr inbounds %s, %s %s, i32 0, i32 %d", ptr, class.LLVM(), class.LLVM()+"*", objReg, i+1)
		g.emit("store %s %s, %s* %s", field.FieldType.LLVM(), g.curVal, field.FieldType.LLVM(), ptr)
	}

	g.curVal, g.curTyp = objReg, g.typeRegistry.PointerTo(class)
	return nil
}

func (g *Generator) VisitArrayLiteral(expr *domain.ArrayLiteral) error {
	arrType, ok := expr.GetType().(*domain.ArrayType)
	if !ok {
		g.reportError("internal error: array literal missing resolved type", expr.GetLocation())
		return nil
	}
	n := len(expr.Elements)
	elemSize := arrType.Element.Size()
	if elemSize < 1 {
		elemSize = 1
	}
	bytesReg := g.symbolTable.NextTemp()
	g.emit("%s = call i8* @malloc(i64 %d)", bytesReg, n*elemSize)
	arrReg := g.symbolTable.NextTemp()
	g.emit("%s = bitcast i8* %s to %s", arrReg, bytesReg, arrType.LLVM())
	for i, elem := range expr.Elements {
		if err := elem.Accept(g); err != nil {
			return err
		}
		ptr := g.symbolTable.NextTemp()
		g.emit("%s = getelementptr inbounds %s, %s %s, i32 %d", ptr, arrType.Element.LLVM(), arrType.LLVM(), arrReg, i)
		g.emit("store %s %s, %s* %s", arrType.Element.LLVM(), g.curVal, arrType.Element.LLVM(), ptr)
	}
	g.curVal, g.curTyp = arrReg, arrType
	return nil
}

func (g *Generator) VisitArrayAccess(expr *domain.ArrayAccess) error {
	addr, elemType, err := g.genAddr(expr)
	if err != nil {
		return err
	}
	reg := g.symbolTable.NextTemp()
	g.emit("%s = load %s, %s* %s", reg, elemType.LLVM(), elemType.LLVM(), addr)
	g.curVal, g.curTyp, g.curAddr = reg, elemType, addr
	return nil
}

// genPrint lowers print/println to a single formatted printf call: each
// argument picks a specifier by its sinter type, and a boolean goes
// through a runtime select between the pooled "true"/"false" constants
// so a non-constant boolean value still prints the right word.
func (g *Generator) genPrint(args []domain.Expression, newline bool) error {
	var format strings.Builder
	callArgs := make([]string, 0, len(args))

	for _, a := range args {
		if err := a.Accept(g); err != nil {
			return err
		}
		val, typ := g.curVal, g.curTyp
		switch tt := typ.(type) {
		case *domain.PrimitiveType:
			switch {
			case tt.Kind == domain.Boolean:
				format.WriteString("%s")
				trueAddr := g.symbolTable.NextTemp()
				g.emit("%s = getelementptr inbounds [5 x i8], [5 x i8]* %s, i32 0, i32 0", trueAddr, trueLiteralName)
				falseAddr := g.symbolTable.NextTemp()
				g.emit("%s = getelementptr inbounds [6 x i8], [6 x i8]* %s, i32 0, i32 0", falseAddr, falseLiteralName)
				sel := g.symbolTable.NextTemp()
				g.emit("%s = select i1 %s, i8* %s, i8* %s", sel, val, trueAddr, falseAddr)
				callArgs = append(callArgs, "i8* "+sel)
			case tt.Kind == domain.Float || tt.Kind == domain.Double:
				format.WriteString("%f")
				widened := val
				if tt.Kind == domain.Float {
					widened = g.symbolTable.NextTemp()
					g.emit("%s = fpext float %s to double", widened, val)
				}
				callArgs = append(callArgs, "double "+widened)
			default:
				format.WriteString("%d")
				callArgs = append(callArgs, tt.LLVM()+" "+val)
			}
		case *domain.StringType:
			format.WriteString("%s")
			callArgs = append(callArgs, "i8* "+val)
		case *domain.DStringType:
			format.WriteString("%s")
			callArgs = append(callArgs, "i8* "+val)
		case *domain.PointerType:
			format.WriteString("%p")
			raw := g.symbolTable.NextTemp()
			g.emit("%s = bitcast %s %s to i8*", raw, typ.LLVM(), val)
			callArgs = append(callArgs, "i8* "+raw)
		default:
			format.WriteString("%s")
			callArgs = append(callArgs, "i8* null")
		}
	}
	if newline {
		format.WriteString("\\0A")
	}

	// the format string is assembled at codegen time rather than sourced
	// from user text, so it is interned directly instead of through
	// collectStrings's literal-node walk.
	literal := decodeFormatLiteral(format.String())
	fmtName := g.symbolTable.InternString(literal)
	n := len(literal) + 1
	fmtAddr := g.symbolTable.NextTemp()
	g.emit("%s = getelementptr inbounds [%d x i8], [%d x i8]* %s, i32 0, i32 0", fmtAddr, n, n, fmtName)

	call := append([]string{"i8* " + fmtAddr}, callArgs...)
	g.emit("call i32 (i8*, ...) @printf(%s)", strings.Join(call, ", "))
	return nil
}

// decodeFormatLiteral turns the "\0A" placeholder genPrint writes for a
// trailing newline into the actual byte, since the format string is
// interned as real content, not as escaped IR text.
func decodeFormatLiteral(s string) string {
	return strings.ReplaceAll(s, "\\0A", "\n")
}
