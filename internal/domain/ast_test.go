package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// countingVisitor implements Visitor and records which node kinds it saw;
// every method but VisitLiteralExpr is a no-op, which is enough to prove
// Accept dispatches to the matching Visit* method.
type countingVisitor struct {
	literals int
}

func (c *countingVisitor) VisitLiteralExpr(e *LiteralExpr) error { c.literals++; return nil }
func (c *countingVisitor) VisitIdentifierExpr(e *IdentifierExpr) error { return nil }
func (c *countingVisitor) VisitBinaryExpr(e *BinaryExpr) error         { return nil }
func (c *countingVisitor) VisitUnaryExpr(e *UnaryExpr) error           { return nil }
func (c *countingVisitor) VisitPointerExpr(e *PointerExpr) error       { return nil }
func (c *countingVisitor) VisitMemberAccess(e *MemberAccess) error     { return nil }
func (c *countingVisitor) VisitMethodCall(e *MethodCall) error         { return nil }
func (c *countingVisitor) VisitNewExpr(e *NewExpr) error               { return nil }
func (c *countingVisitor) VisitArrayLiteral(e *ArrayLiteral) error     { return nil }
func (c *countingVisitor) VisitArrayAccess(e *ArrayAccess) error       { return nil }
func (c *countingVisitor) VisitExprStmt(s *ExprStmt) error             { return nil }
func (c *countingVisitor) VisitVarDeclStmt(s *VarDeclStmt) error       { return nil }
func (c *countingVisitor) VisitAssignStmt(s *AssignStmt) error         { return nil }
func (c *countingVisitor) VisitIfStmt(s *IfStmt) error                 { return nil }
func (c *countingVisitor) VisitWhileStmt(s *WhileStmt) error           { return nil }
func (c *countingVisitor) VisitForStmt(s *ForStmt) error               { return nil }
func (c *countingVisitor) VisitForEachStmt(s *ForEachStmt) error       { return nil }
func (c *countingVisitor) VisitBreakStmt(s *BreakStmt) error           { return nil }
func (c *countingVisitor) VisitContinueStmt(s *ContinueStmt) error     { return nil }
func (c *countingVisitor) VisitReturnStmt(s *ReturnStmt) error         { return nil }
func (c *countingVisitor) VisitPrintStmt(s *PrintStmt) error           { return nil }
func (c *countingVisitor) VisitBlockStmt(s *BlockStmt) error           { return nil }
func (c *countingVisitor) VisitFieldDecl(d *FieldDeclaration) error    { return nil }
func (c *countingVisitor) VisitMethodDecl(d *MethodDeclaration) error  { return nil }
func (c *countingVisitor) VisitScopeBlock(d *ScopeBlock) error         { return nil }
func (c *countingVisitor) VisitClassDecl(d *ClassDeclaration) error    { return nil }
func (c *countingVisitor) VisitInterfaceDecl(d *InterfaceDeclaration) error { return nil }
func (c *countingVisitor) VisitFunctionDecl(d *FunctionDeclaration) error  { return nil }
func (c *countingVisitor) VisitProgram(p *Program) error               { return nil }

func TestLiteralExprAcceptDispatches(t *testing.T) {
	lit := &LiteralExpr{Kind: IntLiteral, Value: 42}
	v := &countingVisitor{}
	assert.NoError(t, lit.Accept(v))
	assert.Equal(t, 1, v.literals)
}

func TestBinaryExprOperatorStringsIncludeXor(t *testing.T) {
	// `^` must be its own operator kind, never aliased to Mul.
	assert.Equal(t, "^", Xor.String())
	assert.NotEqual(t, Mul.String(), Xor.String())
}

func TestClassFieldAnnotationRoundTrip(t *testing.T) {
	field := &FieldDeclaration{
		Name:     "balance",
		TypeName: "int",
		Annotation: &FieldAnnotation{
			Serializable: true,
		},
	}
	assert.True(t, field.Annotation.Serializable)
	assert.False(t, field.Annotation.Derived)
}

func TestNewExprAcceptsBothSyntacticForms(t *testing.T) {
	// `Hospital.new()` and `new Hospital()` both desugar to *NewExpr.
	byMember := &NewExpr{ClassName: "Hospital"}
	byKeyword := &NewExpr{ClassName: "Hospital"}
	assert.Equal(t, byMember.ClassName, byKeyword.ClassName)
}
