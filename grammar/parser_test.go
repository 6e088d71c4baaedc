package grammar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinterlang/sinterc/internal/domain"
	"github.com/sinterlang/sinterc/internal/interfaces"
	"github.com/sinterlang/sinterc/lexer"
)

func parseSource(t *testing.T, src string) *domain.Program {
	t.Helper()
	lex := lexer.NewLexer()
	require.NoError(t, lex.SetInput("test.sin", strings.NewReader(src)))
	p := NewRecursiveDescentParser()
	prog, err := p.Parse(lex)
	require.NoError(t, err)
	require.NotNil(t, prog)
	return prog
}

func parseExprSource(t *testing.T, src string) domain.Expression {
	t.Helper()
	lex := lexer.NewLexer()
	require.NoError(t, lex.SetInput("test.sin", strings.NewReader(src)))
	p := &Parser{}
	p.lexer = lex
	p.current = p.lexer.NextToken()
	expr, err := p.parseExpression()
	require.NoError(t, err)
	return expr
}

func TestParser_EmptyProgram(t *testing.T) {
	prog := parseSource(t, "")
	assert.Empty(t, prog.Declarations)
}

func TestParser_FunctionDeclaration(t *testing.T) {
	prog := parseSource(t, `
		function add(a: int, b: int): int {
			return a + b;
		}
	`)
	require.Len(t, prog.Declarations, 1)
	fn, ok := prog.Declarations[0].(*domain.FunctionDeclaration)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, "int", fn.ReturnTypeName)
	require.Len(t, fn.Parameters, 2)
	assert.Equal(t, "a", fn.Parameters[0].Name)
	assert.Equal(t, "int", fn.Parameters[0].TypeName)
	require.Len(t, fn.Body.Statements, 1)
	ret, ok := fn.Body.Statements[0].(*domain.ReturnStmt)
	require.True(t, ok)
	bin, ok := ret.Value.(*domain.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, domain.Add, bin.Operator)
}

func TestParser_FunctionWithoutReturnType(t *testing.T) {
	prog := parseSource(t, `
		function log(message: str) {
			println(message);
		}
	`)
	fn := prog.Declarations[0].(*domain.FunctionDeclaration)
	assert.Equal(t, "void", fn.ReturnTypeName)
	print, ok := fn.Body.Statements[0].(*domain.PrintStmt)
	require.True(t, ok)
	assert.True(t, print.Newline)
}

func TestParser_ClassWithVisibilitySectionsAndInheritance(t *testing.T) {
	prog := parseSource(t, `
		class Box extends Container implements Shaped {
			private:
				var width: int;
				var height: int = 0;
			public:
				@readonly
				var area: int;
				method getWidth(): int {
					return this.width;
				}
				static method origin(): *Box { return null; }
				abstract method resize(factor: int);
		}
	`)
	require.Len(t, prog.Declarations, 1)
	class, ok := prog.Declarations[0].(*domain.ClassDeclaration)
	require.True(t, ok)
	assert.Equal(t, "Box", class.Name)
	assert.Equal(t, "Container", class.BaseClass)
	assert.Equal(t, []string{"Shaped"}, class.Interfaces)
	require.Len(t, class.ScopeBlocks, 2)

	private := class.ScopeBlocks[0]
	assert.Equal(t, "private", private.Visibility)
	require.Len(t, private.Fields, 2)
	assert.Equal(t, "width", private.Fields[0].Name)
	assert.Equal(t, "int", private.Fields[0].TypeName)
	assert.Nil(t, private.Fields[0].Initializer)
	assert.NotNil(t, private.Fields[1].Initializer)

	public := class.ScopeBlocks[1]
	assert.Equal(t, "public", public.Visibility)
	require.Len(t, public.Fields, 1)
	require.NotNil(t, public.Fields[0].Annotation)
	assert.True(t, public.Fields[0].Annotation.ReadOnly)
	assert.Equal(t, "public", public.Fields[0].Visibility)

	require.Len(t, public.Methods, 3)
	assert.Equal(t, "getWidth", public.Methods[0].Name)
	assert.False(t, public.Methods[0].Static)
	assert.False(t, public.Methods[0].Abstract)

	assert.Equal(t, "origin", public.Methods[1].Name)
	assert.True(t, public.Methods[1].Static)
	assert.Equal(t, "*Box", public.Methods[1].ReturnTypeName)

	assert.Equal(t, "resize", public.Methods[2].Name)
	assert.True(t, public.Methods[2].Abstract)
	assert.Nil(t, public.Methods[2].Body)
}

func TestParser_InterfaceDeclaration(t *testing.T) {
	prog := parseSource(t, `
		interface Shaped {
			method area(): int;
			method describe(prefix: str): void;
		}
	`)
	iface, ok := prog.Declarations[0].(*domain.InterfaceDeclaration)
	require.True(t, ok)
	assert.Equal(t, "Shaped", iface.Name)
	require.Len(t, iface.Methods, 2)
	assert.Equal(t, "area", iface.Methods[0].Name)
	assert.Equal(t, "int", iface.Methods[0].ReturnTypeName)
	assert.Equal(t, "describe", iface.Methods[1].Name)
}

func TestParser_ParametrizedClass(t *testing.T) {
	prog := parseSource(t, `
		parametrized class Pair<A, B> {
			public:
				var first: A;
				var second: B;
		}
	`)
	class := prog.Declarations[0].(*domain.ClassDeclaration)
	assert.Equal(t, []string{"A", "B"}, class.TypeParams)
}

func TestParser_VarAndConstDeclStatements(t *testing.T) {
	prog := parseSource(t, `
		function main() {
			var x: int = 1;
			const y: int = 2;
			var z = x + y;
		}
	`)
	fn := prog.Declarations[0].(*domain.FunctionDeclaration)
	require.Len(t, fn.Body.Statements, 3)

	x := fn.Body.Statements[0].(*domain.VarDeclStmt)
	assert.False(t, x.Const)
	assert.Equal(t, "int", x.TypeName)

	y := fn.Body.Statements[1].(*domain.VarDeclStmt)
	assert.True(t, y.Const)

	z := fn.Body.Statements[2].(*domain.VarDeclStmt)
	assert.Equal(t, "", z.TypeName)
	assert.NotNil(t, z.Initializer)
}

func TestParser_IfElseStatement(t *testing.T) {
	prog := parseSource(t, `
		function check(n: int) {
			if (n < 0) {
				println("negative");
			} else if (n == 0) {
				println("zero");
			} else {
				println("positive");
			}
		}
	`)
	fn := prog.Declarations[0].(*domain.FunctionDeclaration)
	ifStmt := fn.Body.Statements[0].(*domain.IfStmt)
	require.NotNil(t, ifStmt.Else)
	elseIf, ok := ifStmt.Else.(*domain.IfStmt)
	require.True(t, ok)
	require.NotNil(t, elseIf.Else)
}

func TestParser_WhileAndClassicForLoop(t *testing.T) {
	prog := parseSource(t, `
		function countdown(n: int) {
			while (n > 0) {
				n = n - 1;
			}
			for (var i: int = 0; i < n; i++) {
				println(i);
			}
		}
	`)
	fn := prog.Declarations[0].(*domain.FunctionDeclaration)
	require.Len(t, fn.Body.Statements, 2)

	_, ok := fn.Body.Statements[0].(*domain.WhileStmt)
	assert.True(t, ok)

	forStmt, ok := fn.Body.Statements[1].(*domain.ForStmt)
	require.True(t, ok)
	init, ok := forStmt.Init.(*domain.VarDeclStmt)
	require.True(t, ok)
	assert.Equal(t, "i", init.Name)
	require.NotNil(t, forStmt.Condition)
	require.NotNil(t, forStmt.Update)
}

func TestParser_ForEachLoop(t *testing.T) {
	prog := parseSource(t, `
		function sumAll(items: int[]) {
			for (var item: int in items) {
				println(item);
			}
		}
	`)
	fn := prog.Declarations[0].(*domain.FunctionDeclaration)
	forEach, ok := fn.Body.Statements[0].(*domain.ForEachStmt)
	require.True(t, ok)
	assert.Equal(t, "item", forEach.VarName)
	assert.Equal(t, "int", forEach.VarTypeName)
	_, ok = forEach.Collection.(*domain.IdentifierExpr)
	assert.True(t, ok)
}

func TestParser_BreakContinueReturn(t *testing.T) {
	prog := parseSource(t, `
		function loop() {
			while (true) {
				if (false) {
					break;
				}
				continue;
			}
			return;
		}
	`)
	fn := prog.Declarations[0].(*domain.FunctionDeclaration)
	ret, ok := fn.Body.Statements[1].(*domain.ReturnStmt)
	require.True(t, ok)
	assert.Nil(t, ret.Value)
}

func TestParser_AssignmentAndCompoundAssignment(t *testing.T) {
	prog := parseSource(t, `
		function update(x: int) {
			x = x + 1;
			x += 2;
		}
	`)
	fn := prog.Declarations[0].(*domain.FunctionDeclaration)
	plain := fn.Body.Statements[0].(*domain.AssignStmt)
	assert.Nil(t, plain.CompoundOp)

	compound := fn.Body.Statements[1].(*domain.AssignStmt)
	require.NotNil(t, compound.CompoundOp)
	assert.Equal(t, domain.Add, *compound.CompoundOp)
}

func TestParser_BinaryOperatorPrecedence(t *testing.T) {
	expr := parseExprSource(t, "1 + 2 * 3")
	bin := expr.(*domain.BinaryExpr)
	assert.Equal(t, domain.Add, bin.Operator)
	right := bin.Right.(*domain.BinaryExpr)
	assert.Equal(t, domain.Mul, right.Operator)
}

func TestParser_XorIsNeverAPointerSigil(t *testing.T) {
	expr := parseExprSource(t, "a ^ b")
	bin, ok := expr.(*domain.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, domain.Xor, bin.Operator)
}

func TestParser_FullPrecedenceChain(t *testing.T) {
	expr := parseExprSource(t, "a || b && c == d < e | f ^ g & h + i * j")
	top := expr.(*domain.BinaryExpr)
	assert.Equal(t, domain.Or, top.Operator)
}

func TestParser_PointerPrefixDisambiguatedFromBinaryStarAndAmp(t *testing.T) {
	deref := parseExprSource(t, "*p")
	ptr, ok := deref.(*domain.PointerExpr)
	require.True(t, ok)
	assert.Equal(t, domain.Deref, ptr.Operator)

	addr := parseExprSource(t, "&p")
	ptr2, ok := addr.(*domain.PointerExpr)
	require.True(t, ok)
	assert.Equal(t, domain.AddressOf, ptr2.Operator)

	mul := parseExprSource(t, "a * b")
	bin, ok := mul.(*domain.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, domain.Mul, bin.Operator)

	bitAnd := parseExprSource(t, "a & b")
	bin2, ok := bitAnd.(*domain.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, domain.BitAnd, bin2.Operator)
}

func TestParser_UnaryPrefixOperators(t *testing.T) {
	not := parseExprSource(t, "!flag")
	un, ok := not.(*domain.UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, domain.Not, un.Operator)

	neg := parseExprSource(t, "-x")
	un2 := neg.(*domain.UnaryExpr)
	assert.Equal(t, domain.Neg, un2.Operator)

	preInc := parseExprSource(t, "++x")
	un3 := preInc.(*domain.UnaryExpr)
	assert.Equal(t, domain.PreInc, un3.Operator)
}

func TestParser_PostfixIncrementAndMemberChains(t *testing.T) {
	postInc := parseExprSource(t, "x++")
	un := postInc.(*domain.UnaryExpr)
	assert.Equal(t, domain.PostInc, un.Operator)

	chain := parseExprSource(t, "obj.field.call(1, 2)")
	call, ok := chain.(*domain.MethodCall)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
	member, ok := call.Callee.(*domain.MemberAccess)
	require.True(t, ok)
	assert.Equal(t, "call", member.Member)
	inner, ok := member.Object.(*domain.MemberAccess)
	require.True(t, ok)
	assert.Equal(t, "field", inner.Member)
}

func TestParser_ArrayLiteralAndAccess(t *testing.T) {
	lit := parseExprSource(t, "[1, 2, 3]")
	arrLit, ok := lit.(*domain.ArrayLiteral)
	require.True(t, ok)
	assert.Len(t, arrLit.Elements, 3)

	access := parseExprSource(t, "items[0]")
	arrAccess, ok := access.(*domain.ArrayAccess)
	require.True(t, ok)
	_, ok = arrAccess.Array.(*domain.IdentifierExpr)
	assert.True(t, ok)
}

func TestParser_NewExpressionBothForms(t *testing.T) {
	keywordForm := parseExprSource(t, "new Box(1, 2)")
	newExpr, ok := keywordForm.(*domain.NewExpr)
	require.True(t, ok)
	assert.Equal(t, "Box", newExpr.ClassName)
	require.Len(t, newExpr.Args, 2)

	desugaredForm := parseExprSource(t, "Box.new(1, 2)")
	newExpr2, ok := desugaredForm.(*domain.NewExpr)
	require.True(t, ok)
	assert.Equal(t, "Box", newExpr2.ClassName)
	require.Len(t, newExpr2.Args, 2)
}

func TestParser_GenericNewExpression(t *testing.T) {
	expr := parseExprSource(t, "new Pair<int, str>(1, \"a\")")
	newExpr := expr.(*domain.NewExpr)
	assert.Equal(t, "Pair", newExpr.ClassName)
	assert.Equal(t, []string{"int", "str"}, newExpr.TypeArgs)
}

func TestParser_LiteralKinds(t *testing.T) {
	cases := []struct {
		src  string
		kind domain.LiteralKind
	}{
		{"42", domain.IntLiteral},
		{"3.14", domain.FloatLiteral},
		{"\"hi\"", domain.StringLiteralKind},
		{"D\"count: {n}\"", domain.DStringLiteralKind},
		{"true", domain.BoolLiteral},
		{"false", domain.BoolLiteral},
		{"null", domain.NullLiteral},
	}
	for _, c := range cases {
		expr := parseExprSource(t, c.src)
		lit, ok := expr.(*domain.LiteralExpr)
		require.True(t, ok, "source %q", c.src)
		assert.Equal(t, c.kind, lit.Kind)
	}
}

func TestParser_ThisAndSelfIdentifiers(t *testing.T) {
	this := parseExprSource(t, "this")
	ident, ok := this.(*domain.IdentifierExpr)
	require.True(t, ok)
	assert.Equal(t, "this", ident.Name)

	self := parseExprSource(t, "self")
	ident2 := self.(*domain.IdentifierExpr)
	assert.Equal(t, "self", ident2.Name)
}

func TestParser_ParenthesizedExpressionOverridesPrecedence(t *testing.T) {
	expr := parseExprSource(t, "(1 + 2) * 3")
	bin := expr.(*domain.BinaryExpr)
	assert.Equal(t, domain.Mul, bin.Operator)
	left := bin.Left.(*domain.BinaryExpr)
	assert.Equal(t, domain.Add, left.Operator)
}

func TestParser_SyntaxErrorReportsLocationAndDoesNotPanic(t *testing.T) {
	lex := lexer.NewLexer()
	require.NoError(t, lex.SetInput("bad.sin", strings.NewReader(`
		function broken( {
			return;
		}
	`)))
	p := NewRecursiveDescentParser()
	_, err := p.Parse(lex)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.sin")
}

func TestParser_ErrorReporterReceivesSyntaxError(t *testing.T) {
	lex := lexer.NewLexer()
	require.NoError(t, lex.SetInput("bad.sin", strings.NewReader("class {}")))
	p := NewRecursiveDescentParser()
	reporter := &fakeErrorReporter{}
	p.SetErrorReporter(reporter)
	_, err := p.Parse(lex)
	require.Error(t, err)
	require.Len(t, reporter.errors, 1)
	assert.Equal(t, domain.SyntaxError, reporter.errors[0].Type)
}

type fakeErrorReporter struct {
	errors   []domain.CompilerError
	warnings []domain.CompilerError
}

func (f *fakeErrorReporter) ReportError(err domain.CompilerError) { f.errors = append(f.errors, err) }
func (f *fakeErrorReporter) ReportWarning(w domain.CompilerError) { f.warnings = append(f.warnings, w) }
func (f *fakeErrorReporter) HasErrors() bool                      { return len(f.errors) > 0 }
func (f *fakeErrorReporter) HasWarnings() bool                    { return len(f.warnings) > 0 }
func (f *fakeErrorReporter) GetErrors() []domain.CompilerError    { return f.errors }
func (f *fakeErrorReporter) GetWarnings() []domain.CompilerError  { return f.warnings }
func (f *fakeErrorReporter) Clear()                               { f.errors, f.warnings = nil, nil }

var _ interfaces.Parser = (*Parser)(nil)

func TestParser_ArrowReturnType(t *testing.T) {
	prog := parseSource(t, `
		function main() -> int {
			return 0;
		}
	`)
	fn := prog.Declarations[0].(*domain.FunctionDeclaration)
	assert.Equal(t, "int", fn.ReturnTypeName)
}

func TestParser_ArrowReturnTypeOnMethodsAndInterfaces(t *testing.T) {
	prog := parseSource(t, `
		interface Speaker {
			method speak() -> str;
		}
		class Dog implements Speaker {
			public:
			method speak() -> str { return "woof"; }
		}
	`)
	iface := prog.Declarations[0].(*domain.InterfaceDeclaration)
	require.Len(t, iface.Methods, 1)
	assert.Equal(t, "str", iface.Methods[0].ReturnTypeName)

	class := prog.Declarations[1].(*domain.ClassDeclaration)
	require.Len(t, class.ScopeBlocks, 1)
	assert.Equal(t, "str", class.ScopeBlocks[0].Methods[0].ReturnTypeName)
}

func TestParser_AnnotationKeyValueArguments(t *testing.T) {
	prog := parseSource(t, `
		class Box {
			public:
			@annotation(serializable=true, derived=false)
			var width: int
		}
	`)
	class := prog.Declarations[0].(*domain.ClassDeclaration)
	field := class.ScopeBlocks[0].Fields[0]
	require.NotNil(t, field.Annotation)
	assert.True(t, field.Annotation.Serializable)
	assert.False(t, field.Annotation.Derived)
}

func TestParser_LexicalErrorSurfacesVerbatim(t *testing.T) {
	lex := lexer.NewLexer()
	require.NoError(t, lex.SetInput("test.sin", strings.NewReader(`function main() -> int { var s: str = "abc`)))
	p := NewRecursiveDescentParser()
	_, err := p.Parse(lex)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unterminated string at line 1")
}
