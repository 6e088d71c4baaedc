package codegen

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinterlang/sinterc/grammar"
	"github.com/sinterlang/sinterc/internal/domain"
	"github.com/sinterlang/sinterc/internal/infrastructure"
	"github.com/sinterlang/sinterc/internal/interfaces"
	"github.com/sinterlang/sinterc/lexer"
	"github.com/sinterlang/sinterc/semantic"
)

// generateIR runs source through lex, parse, and analysis, then emits IR
// with a fresh generator sharing the analyzer's registry and symbol table.
func generateIR(t *testing.T, src string) string {
	t.Helper()

	lex := lexer.NewLexer()
	require.NoError(t, lex.SetInput("test.sin", strings.NewReader(src)))
	p := grammar.NewRecursiveDescentParser()
	prog, err := p.Parse(lex)
	require.NoError(t, err)

	reporter := infrastructure.NewConsoleErrorReporter(io.Discard)
	registry := domain.NewDefaultTypeRegistry()
	symbols := infrastructure.NewDefaultSymbolTable()

	analyzer := semantic.NewAnalyzer()
	analyzer.SetTypeRegistry(registry)
	analyzer.SetSymbolTable(symbols)
	analyzer.SetErrorReporter(reporter)
	require.NoError(t, analyzer.Analyze(prog), "analysis errors: %v", reporter.GetErrors())

	g := NewGenerator()
	g.SetTypeRegistry(registry)
	g.SetSymbolTable(symbols)
	g.SetErrorReporter(reporter)
	ir, err := g.Generate(prog)
	require.NoError(t, err)
	require.False(t, reporter.HasErrors(), "codegen errors: %v", reporter.GetErrors())
	return ir
}

func TestModulePreamble(t *testing.T) {
	ir := generateIR(t, `function main() -> int { return 0; }`)

	assert.Contains(t, ir, "target triple = \"x86_64-unknown-linux-gnu\"")
	for _, decl := range []string{
		"declare i8* @malloc(i64)",
		"declare void @free(i8*)",
		"declare i32 @printf(i8*, ...)",
		"declare i32 @sprintf(i8*, i8*, ...)",
		"declare i32 @snprintf(i8*, i64, i8*, ...)",
		"declare i64 @strlen(i8*)",
		"declare i8* @strcpy(i8*, i8*)",
		"declare i8* @strcat(i8*, i8*)",
		"declare i32 @strcmp(i8*, i8*)",
	} {
		assert.Contains(t, ir, decl)
	}
}

func TestTargetTripleOverride(t *testing.T) {
	lex := lexer.NewLexer()
	require.NoError(t, lex.SetInput("test.sin", strings.NewReader(`function main() -> int { return 0; }`)))
	p := grammar.NewRecursiveDescentParser()
	prog, err := p.Parse(lex)
	require.NoError(t, err)

	reporter := infrastructure.NewConsoleErrorReporter(io.Discard)
	registry := domain.NewDefaultTypeRegistry()
	symbols := infrastructure.NewDefaultSymbolTable()
	analyzer := semantic.NewAnalyzer()
	analyzer.SetTypeRegistry(registry)
	analyzer.SetSymbolTable(symbols)
	analyzer.SetErrorReporter(reporter)
	require.NoError(t, analyzer.Analyze(prog))

	g := NewGenerator()
	g.SetTypeRegistry(registry)
	g.SetSymbolTable(symbols)
	g.SetErrorReporter(reporter)
	g.SetOptions(interfaces.CodeGenOptions{TargetTriple: "arm64-apple-macosx14.0.0"})
	ir, err := g.Generate(prog)
	require.NoError(t, err)
	assert.Contains(t, ir, "target triple = \"arm64-apple-macosx14.0.0\"")
}

func TestDStringRuntimeEmittedOnce(t *testing.T) {
	ir := generateIR(t, `function main() -> int { return 0; }`)

	assert.Equal(t, 1, strings.Count(ir, "%DString = type { i8*, i64, i8*, i64, i8**, i32*, i32, i1 }"))
	for _, fn := range []string{
		"define %DString* @DString_create",
		"define void @DString_setVar",
		"define void @DString_markDirty",
		"define void @DString_free",
		"define i8* @DString_get",
	} {
		assert.Equal(t, 1, strings.Count(ir, fn), fn)
	}

	// per-type substitution formats: %d for ints, %f for floats, %lf for
	// doubles
	assert.Contains(t, ir, "@.dstr.pct.d = private unnamed_addr constant [3 x i8] c\"%d\\00\"")
	assert.Contains(t, ir, "@.dstr.pct.f = private unnamed_addr constant [3 x i8] c\"%f\\00\"")
	assert.Contains(t, ir, "@.dstr.pct.lf = private unnamed_addr constant [4 x i8] c\"%lf\\00\"")
}

func TestClassStructVtableConstructorDestructor(t *testing.T) {
	ir := generateIR(t, `
		class Account {
			public:
			var balance: int = 100
			var owner: str
			method deposit(amount: int) -> void { balance = balance + amount; }
		}
		function main() -> int {
			var a: Account* = Account.new();
			a.deposit(5);
			a.clean();
			return 0;
		}
	`)

	assert.Contains(t, ir, "%class.Account = type { i8**, i32, i8* }")
	assert.Contains(t, ir, "%vtable.Account = type { void (%class.Account*, i32)* }")
	assert.Contains(t, ir, "@vtable.Account = global %vtable.Account { void (%class.Account*, i32)* @Account_deposit }")

	// constructor: sizeof via gep-null, malloc, vtable store, field init
	assert.Contains(t, ir, "define %class.Account* @Account_new()")
	assert.Contains(t, ir, "call i8* @malloc")
	assert.Contains(t, ir, "store i8** bitcast (%vtable.Account* @vtable.Account to i8**)")
	assert.Contains(t, ir, "store i32 100")

	// destructor: str field is pointer-like but only true pointer fields
	// get a null-checked free; the struct itself is always freed
	assert.Contains(t, ir, "define void @Account_clean_impl(%class.Account* %this)")
	assert.Contains(t, ir, "call void @free(i8*")

	// .clean() lowers to the destructor
	assert.Contains(t, ir, "call void @Account_clean_impl(%class.Account* ")
}

func TestDestructorFreesPointerFieldsNullChecked(t *testing.T) {
	ir := generateIR(t, `
		class Node {
			public:
			var next: Node*
			var value: int
		}
		function main() -> int {
			var n: Node* = Node.new();
			n.clean();
			return 0;
		}
	`)

	destructor := irFunction(t, ir, "define void @Node_clean_impl")
	assert.Contains(t, destructor, "icmp eq %class.Node*")
	assert.Contains(t, destructor, "br i1")
	assert.GreaterOrEqual(t, strings.Count(destructor, "call void @free(i8*"), 2,
		"frees the next field on its non-null path and the struct itself")
}

func TestInheritedMethodUsesParentSymbolInVtable(t *testing.T) {
	ir := generateIR(t, `
		class A {
			public:
			method f() -> int { return 1; }
		}
		class B extends A {
			public:
			var extra: int
		}
		function main() -> int {
			var b: B* = B.new();
			b.clean();
			return 0;
		}
	`)

	// B inherits f without overriding: its vtable slot still points at A_f
	vtLine := irLine(t, ir, "@vtable.B = global")
	assert.Contains(t, vtLine, "@A_f")

	// layout prefix: B = A's fields then its own
	assert.Contains(t, ir, "%class.A = type { i8** }")
	assert.Contains(t, ir, "%class.B = type { i8**, i32 }")
}

func TestStringPoolEscapesAndDeduplicates(t *testing.T) {
	ir := generateIR(t, `
		function main() -> int {
			var a: str = "line1\nline2";
			var b: str = "line1\nline2";
			println(a);
			println(b);
			return 0;
		}
	`)

	assert.Equal(t, 1, strings.Count(ir, "c\"line1\\0Aline2\\00\""))
}

func TestBinaryOperatorSelection(t *testing.T) {
	ir := generateIR(t, `
		function main() -> int {
			var a: int = 6;
			var b: int = 3;
			var f: double = 1.5;
			var g: double = 2.5;
			var s: int = a + b;
			var d: int = a / b;
			var m: int = a % b;
			var x: int = a ^ b;
			var fs: double = f + g;
			var cmp: boolean = a < b;
			var fcmpv: boolean = f < g;
			return 0;
		}
	`)

	assert.Contains(t, ir, "add i32")
	assert.Contains(t, ir, "sdiv i32")
	assert.Contains(t, ir, "srem i32")
	assert.Contains(t, ir, "xor i32")
	assert.Contains(t, ir, "fadd double")
	assert.Contains(t, ir, "icmp slt i32")
	assert.Contains(t, ir, "fcmp olt double")
}

func TestMixedArithmeticWidens(t *testing.T) {
	ir := generateIR(t, `
		function main() -> int {
			var i: int = 2;
			var d: double = 1.5;
			var r: double = i + d;
			return 0;
		}
	`)

	assert.Contains(t, ir, "sitofp i32")
	assert.Contains(t, ir, "fadd double")
}

func TestStringConcatenation(t *testing.T) {
	ir := generateIR(t, `
		function main() -> int {
			var a: str = "foo";
			var b: str = "bar";
			var c: str = a + b;
			println(c);
			return 0;
		}
	`)

	assert.Contains(t, ir, "call i64 @strlen")
	assert.Contains(t, ir, "call i8* @strcpy")
	assert.Contains(t, ir, "call i8* @strcat")
}

func TestControlFlowLabelsAndBreakContinue(t *testing.T) {
	ir := generateIR(t, `
		function main() -> int {
			var i: int = 0;
			while (i < 10) {
				i = i + 1;
				if (i == 5) { break; }
				if (i == 2) { continue; }
			}
			for (var j: int = 0; j < 3; j = j + 1) {
				println(j);
			}
			return 0;
		}
	`)

	assert.Contains(t, ir, "while.cond")
	assert.Contains(t, ir, "while.body")
	assert.Contains(t, ir, "while.end")
	assert.Contains(t, ir, "for.cond")
	assert.Contains(t, ir, "br i1")
}

func TestPrintFormatsPerArgumentType(t *testing.T) {
	ir := generateIR(t, `
		function main() -> int {
			var n: int = 1;
			var f: double = 2.5;
			var s: str = "x";
			var b: boolean = true;
			println(n, f, s, b);
			return 0;
		}
	`)

	assert.Contains(t, ir, "c\"%d%f%s%s\\0A\\00\"")
	assert.Contains(t, ir, "select i1")
	assert.Contains(t, ir, "@.bool.true")
	assert.Contains(t, ir, "@.bool.false")
	assert.Contains(t, ir, "call i32 (i8*, ...) @printf")
}

func TestDStringLoweringAndDirtyTracking(t *testing.T) {
	ir := generateIR(t, `
		function main() -> int {
			var c: int = 0;
			var m: str = D"count is {c}";
			println(m);
			c = 5;
			c++;
			println(m);
			return 0;
		}
	`)

	// template format global, with the placeholder replaced by %s
	assert.Contains(t, ir, "@.dstr.fmt.0")
	assert.Contains(t, ir, "c\"count is %s\\00\"")

	// instance creation wires c's stack slot in with type code 0 (int)
	assert.Contains(t, ir, "call %DString* @DString_create")
	assert.Contains(t, ir, "i32 0)")
	assert.Contains(t, ir, "call void @DString_setVar")

	// both the assignment and the increment dirty the dependent d-string
	assert.GreaterOrEqual(t, strings.Count(ir, "call void @DString_markDirty"), 2)

	// each read of m goes through the caching getter
	assert.GreaterOrEqual(t, strings.Count(ir, "call i8* @DString_get"), 2)
}

func TestAsJSONEmission(t *testing.T) {
	ir := generateIR(t, `
		class Point {
			public:
			@serializable
			var x: int = 1
			@serializable
			var label: str
			private:
			var hidden: int
		}
		function main() -> int {
			var p: Point* = Point.new();
			var j: str = p.as_json();
			println(j);
			p.clean();
			return 0;
		}
	`)

	jsonFn := irFunction(t, ir, "define i8* @Point_as_json")
	assert.Contains(t, jsonFn, "call i8* @malloc(i64 4096)")
	assert.Contains(t, jsonFn, "@.json.key.Point.x")
	assert.Contains(t, jsonFn, "@.json.key.Point.label")
	assert.NotContains(t, jsonFn, "hidden")
	assert.Contains(t, jsonFn, "@.json.fmt.d")
	// str field renders null when unset
	assert.Contains(t, jsonFn, "@.json.null")
	assert.Contains(t, ir, "call i8* @Point_as_json(%class.Point*")
}

func TestPointerDerefAndAddressOf(t *testing.T) {
	ir := generateIR(t, `
		function main() -> int {
			var n: int = 7;
			var p: int* = &n;
			var v: int = *p;
			return v;
		}
	`)

	assert.Contains(t, ir, "load i32*, i32** %p.addr")
	assert.Contains(t, ir, "load i32, i32* ")
}

func TestFunctionTerminatorSynthesis(t *testing.T) {
	ir := generateIR(t, `
		function report(n: int) -> void {
			println(n);
		}
		function main() -> int {
			report(4);
		}
	`)

	reportFn := irFunction(t, ir, "define void @report")
	assert.Contains(t, reportFn, "ret void")
	mainFn := irFunction(t, ir, "define i32 @main")
	assert.Contains(t, mainFn, "ret i32 0")
}

// irLine returns the single line of ir starting with prefix.
func irLine(t *testing.T, ir, prefix string) string {
	t.Helper()
	for _, line := range strings.Split(ir, "\n") {
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
	t.Fatalf("no line with prefix %q in emitted IR", prefix)
	return ""
}

// irFunction returns the body of the function whose define line starts
// with prefix, up to its closing brace.
func irFunction(t *testing.T, ir, prefix string) string {
	t.Helper()
	lines := strings.Split(ir, "\n")
	var body []string
	inside := false
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			inside = true
		}
		if inside {
			body = append(body, line)
			if line == "}" {
				return strings.Join(body, "\n")
			}
		}
	}
	t.Fatalf("no function with prefix %q in emitted IR", prefix)
	return ""
}
