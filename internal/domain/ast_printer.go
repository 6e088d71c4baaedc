package domain

import (
	"fmt"
	"io"
	"strings"
)

// ASTPrinter renders a parse tree as an indented outline, one node per
// line. It implements Visitor so the traversal stays inside the
// Accept/Visit dispatch like every other pass.
type ASTPrinter struct {
	w      io.Writer
	indent int
}

func NewASTPrinter(w io.Writer) *ASTPrinter {
	return &ASTPrinter{w: w}
}

// Print renders node and returns the first write error, if any.
func (p *ASTPrinter) Print(node Node) error {
	return node.Accept(p)
}

func (p *ASTPrinter) line(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", p.indent), fmt.Sprintf(format, args...))
	return err
}

// nested runs fn one indentation level deeper.
func (p *ASTPrinter) nested(fn func() error) error {
	p.indent++
	err := fn()
	p.indent--
	return err
}

func (p *ASTPrinter) child(node Node) error {
	if node == nil {
		return nil
	}
	return p.nested(func() error { return node.Accept(p) })
}

func (p *ASTPrinter) VisitProgram(prog *Program) error {
	if err := p.line("Program"); err != nil {
		return err
	}
	for _, decl := range prog.Declarations {
		if err := p.child(decl); err != nil {
			return err
		}
	}
	return nil
}

func (p *ASTPrinter) VisitClassDecl(decl *ClassDeclaration) error {
	desc := "ClassDeclaration " + decl.Name
	if len(decl.TypeParams) > 0 {
		desc += "<" + strings.Join(decl.TypeParams, ", ") + ">"
	}
	if decl.BaseClass != "" {
		desc += " extends " + decl.BaseClass
	}
	if len(decl.Interfaces) > 0 {
		desc += " implements " + strings.Join(decl.Interfaces, ", ")
	}
	if err := p.line("%s", desc); err != nil {
		return err
	}
	for _, block := range decl.ScopeBlocks {
		if err := p.child(block); err != nil {
			return err
		}
	}
	return nil
}

func (p *ASTPrinter) VisitScopeBlock(block *ScopeBlock) error {
	if err := p.line("ScopeBlock %s", block.Visibility); err != nil {
		return err
	}
	for _, f := range block.Fields {
		if err := p.child(f); err != nil {
			return err
		}
	}
	for _, m := range block.Methods {
		if err := p.child(m); err != nil {
			return err
		}
	}
	return nil
}

func (p *ASTPrinter) VisitFieldDecl(decl *FieldDeclaration) error {
	desc := fmt.Sprintf("FieldDeclaration %s: %s", decl.Name, decl.TypeName)
	if decl.Const {
		desc += " const"
	}
	if a := decl.Annotation; a != nil {
		var flags []string
		if a.ReadOnly {
			flags = append(flags, "readonly")
		}
		if a.WriteOnly {
			flags = append(flags, "writeonly")
		}
		if a.Derived {
			flags = append(flags, "derived")
		}
		if a.Serializable {
			flags = append(flags, "serializable")
		}
		desc += " [" + strings.Join(flags, ", ") + "]"
	}
	if err := p.line("%s", desc); err != nil {
		return err
	}
	return p.child(decl.Initializer)
}

func paramList(params []Parameter) string {
	parts := make([]string, len(params))
	for i, param := range params {
		parts[i] = param.Name + ": " + param.TypeName
	}
	return strings.Join(parts, ", ")
}

func (p *ASTPrinter) VisitMethodDecl(decl *MethodDeclaration) error {
	desc := fmt.Sprintf("MethodDeclaration %s(%s) -> %s", decl.Name, paramList(decl.Parameters), decl.ReturnTypeName)
	if decl.Static {
		desc += " static"
	}
	if decl.Abstract {
		desc += " abstract"
	}
	if err := p.line("%s", desc); err != nil {
		return err
	}
	if decl.Body == nil {
		return nil
	}
	return p.child(decl.Body)
}

func (p *ASTPrinter) VisitInterfaceDecl(decl *InterfaceDeclaration) error {
	if err := p.line("InterfaceDeclaration %s", decl.Name); err != nil {
		return err
	}
	return p.nested(func() error {
		for _, sig := range decl.Methods {
			if err := p.line("MethodSignature %s(%s) -> %s", sig.Name, paramList(sig.Parameters), sig.ReturnTypeName); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *ASTPrinter) VisitFunctionDecl(decl *FunctionDeclaration) error {
	if err := p.line("FunctionDeclaration %s(%s) -> %s", decl.Name, paramList(decl.Parameters), decl.ReturnTypeName); err != nil {
		return err
	}
	return p.child(decl.Body)
}

func (p *ASTPrinter) VisitBlockStmt(stmt *BlockStmt) error {
	if err := p.line("Block"); err != nil {
		return err
	}
	for _, s := range stmt.Statements {
		if err := p.child(s); err != nil {
			return err
		}
	}
	return nil
}

func (p *ASTPrinter) VisitVarDeclStmt(stmt *VarDeclStmt) error {
	desc := fmt.Sprintf("VariableDeclaration %s: %s", stmt.Name, stmt.TypeName)
	if stmt.Const {
		desc += " const"
	}
	if err := p.line("%s", desc); err != nil {
		return err
	}
	return p.child(stmt.Initializer)
}

func (p *ASTPrinter) VisitExprStmt(stmt *ExprStmt) error {
	if err := p.line("ExpressionStatement"); err != nil {
		return err
	}
	return p.child(stmt.Expr)
}

func (p *ASTPrinter) VisitAssignStmt(stmt *AssignStmt) error {
	op := "="
	if stmt.CompoundOp != nil {
		op = stmt.CompoundOp.String() + "="
	}
	if err := p.line("Assignment %s", op); err != nil {
		return err
	}
	if err := p.child(stmt.Target); err != nil {
		return err
	}
	return p.child(stmt.Value)
}

func (p *ASTPrinter) VisitIfStmt(stmt *IfStmt) error {
	if err := p.line("If"); err != nil {
		return err
	}
	if err := p.child(stmt.Condition); err != nil {
		return err
	}
	if err := p.child(stmt.Then); err != nil {
		return err
	}
	if stmt.Else != nil {
		if err := p.line("Else"); err != nil {
			return err
		}
		return p.child(stmt.Else)
	}
	return nil
}

func (p *ASTPrinter) VisitWhileStmt(stmt *WhileStmt) error {
	if err := p.line("While"); err != nil {
		return err
	}
	if err := p.child(stmt.Condition); err != nil {
		return err
	}
	return p.child(stmt.Body)
}

func (p *ASTPrinter) VisitForStmt(stmt *ForStmt) error {
	if err := p.line("For"); err != nil {
		return err
	}
	if err := p.child(stmt.Init); err != nil {
		return err
	}
	if err := p.child(stmt.Condition); err != nil {
		return err
	}
	if err := p.child(stmt.Update); err != nil {
		return err
	}
	return p.child(stmt.Body)
}

func (p *ASTPrinter) VisitForEachStmt(stmt *ForEachStmt) error {
	if err := p.line("ForEach %s: %s", stmt.VarName, stmt.VarTypeName); err != nil {
		return err
	}
	if err := p.child(stmt.Collection); err != nil {
		return err
	}
	return p.child(stmt.Body)
}

func (p *ASTPrinter) VisitBreakStmt(stmt *BreakStmt) error    { return p.line("Break") }
func (p *ASTPrinter) VisitContinueStmt(stmt *ContinueStmt) error { return p.line("Continue") }

func (p *ASTPrinter) VisitReturnStmt(stmt *ReturnStmt) error {
	if err := p.line("Return"); err != nil {
		return err
	}
	return p.child(stmt.Value)
}

func (p *ASTPrinter) VisitPrintStmt(stmt *PrintStmt) error {
	name := "Print"
	if stmt.Newline {
		name = "Println"
	}
	if err := p.line("%s", name); err != nil {
		return err
	}
	for _, a := range stmt.Args {
		if err := p.child(a); err != nil {
			return err
		}
	}
	return nil
}

func (p *ASTPrinter) VisitLiteralExpr(expr *LiteralExpr) error {
	switch expr.Kind {
	case StringLiteralKind:
		return p.line("Literal %q", expr.Value)
	case DStringLiteralKind:
		return p.line("DString %q", expr.Value)
	case NullLiteral:
		return p.line("Literal null")
	default:
		return p.line("Literal %v", expr.Value)
	}
}

func (p *ASTPrinter) VisitIdentifierExpr(expr *IdentifierExpr) error {
	return p.line("Identifier %s", expr.Name)
}

func (p *ASTPrinter) VisitBinaryExpr(expr *BinaryExpr) error {
	if err := p.line("Binary %s", expr.Operator); err != nil {
		return err
	}
	if err := p.child(expr.Left); err != nil {
		return err
	}
	return p.child(expr.Right)
}

func (p *ASTPrinter) VisitUnaryExpr(expr *UnaryExpr) error {
	if err := p.line("Unary %s", expr.Operator); err != nil {
		return err
	}
	return p.child(expr.Operand)
}

func (p *ASTPrinter) VisitPointerExpr(expr *PointerExpr) error {
	op := "Deref"
	if expr.Operator == AddressOf {
		op = "AddressOf"
	}
	if err := p.line("%s", op); err != nil {
		return err
	}
	return p.child(expr.Operand)
}

func (p *ASTPrinter) VisitMemberAccess(expr *MemberAccess) error {
	if err := p.line("MemberAccess .%s", expr.Member); err != nil {
		return err
	}
	return p.child(expr.Object)
}

func (p *ASTPrinter) VisitMethodCall(expr *MethodCall) error {
	if err := p.line("Call"); err != nil {
		return err
	}
	if err := p.child(expr.Callee); err != nil {
		return err
	}
	for _, a := range expr.Args {
		if err := p.child(a); err != nil {
			return err
		}
	}
	return nil
}

func (p *ASTPrinter) VisitNewExpr(expr *NewExpr) error {
	desc := "New " + expr.ClassName
	if len(expr.TypeArgs) > 0 {
		desc += "<" + strings.Join(expr.TypeArgs, ", ") + ">"
	}
	if err := p.line("%s", desc); err != nil {
		return err
	}
	for _, a := range expr.Args {
		if err := p.child(a); err != nil {
			return err
		}
	}
	return nil
}

func (p *ASTPrinter) VisitArrayLiteral(expr *ArrayLiteral) error {
	if err := p.line("ArrayLiteral (%d elements)", len(expr.Elements)); err != nil {
		return err
	}
	for _, el := range expr.Elements {
		if err := p.child(el); err != nil {
			return err
		}
	}
	return nil
}

func (p *ASTPrinter) VisitArrayAccess(expr *ArrayAccess) error {
	if err := p.line("ArrayAccess"); err != nil {
		return err
	}
	if err := p.child(expr.Array); err != nil {
		return err
	}
	return p.child(expr.Index)
}
