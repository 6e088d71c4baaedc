package semantic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sinterlang/sinterc/grammar"
	"github.com/sinterlang/sinterc/lexer"
)

// validatePointers parses src with the real lexer and parser, requiring
// a clean parse, then runs the pointer-cleanup validator over it.
func validatePointers(t *testing.T, src string) *capturingReporter {
	t.Helper()

	lex := lexer.NewLexer()
	require.NoError(t, lex.SetInput("test.sn", strings.NewReader(src)))

	parser := grammar.NewRecursiveDescentParser()
	parseReporter := &capturingReporter{}
	parser.SetErrorReporter(parseReporter)

	program, err := parser.Parse(lex)
	require.NoError(t, err)
	require.Empty(t, parseReporter.errors, "source must parse cleanly")

	reporter := &capturingReporter{}
	NewPointerValidator(reporter).Validate(program)
	return reporter
}

func TestPointerValidator_CleanedAllocationHasNoErrors(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		function f(): void {
			var p: *Foo = new Foo();
			p.clean();
		}
	`)
	require.False(t, reporter.HasErrors(), "%v", reporter.errors)
}

func TestPointerValidator_UncleanedAllocationReportsErrorAtExit(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		function f(): void {
			var p: *Foo = new Foo();
		}
	`)
	require.True(t, reporter.HasErrors())
}

func TestPointerValidator_UncleanedBeforeReturnReportsError(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		function f(): int {
			var p: *Foo = new Foo();
			return 1;
		}
	`)
	require.True(t, reporter.HasErrors())
}

func TestPointerValidator_ReleaseSatisfiesCleanup(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		function f(): void {
			var p: *Foo = new Foo();
			p.release();
		}
	`)
	require.False(t, reporter.HasErrors(), "%v", reporter.errors)
}

// A pointer allocated inside an if-branch and never cleaned there must
// still be reported: the branch's local tracker is discarded, but its
// allocation is merged into the parent before that happens.
func TestPointerValidator_BranchAllocationPropagatesToParent(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		function f(cond: bool): void {
			if (cond) {
				var p: *Foo = new Foo();
			}
			return;
		}
	`)
	require.True(t, reporter.HasErrors(), "branch-local allocation must surface once merged upward")
}

func TestPointerValidator_SymmetricCleanupAcrossBranchesHasNoErrors(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		function f(cond: bool): void {
			if (cond) {
				var p: *Foo = new Foo();
				p.clean();
			} else {
				var p: *Foo = new Foo();
				p.clean();
			}
		}
	`)
	require.False(t, reporter.HasErrors(), "%v", reporter.errors)
}

func TestPointerValidator_AsymmetricBranchCleanupWarnsAndStillErrors(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		function f(cond: bool): void {
			if (cond) {
				var p: *Foo = new Foo();
				p.clean();
			} else {
				var p: *Foo = new Foo();
			}
		}
	`)
	require.True(t, reporter.HasWarnings(), "differing branch states must warn")
	require.True(t, reporter.HasErrors(), "the merged state is conservatively allocated")
}

func TestPointerValidator_WhileLoopAllocationWarnsOnly(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		function f(cond: bool): void {
			while (cond) {
				var p: *Foo = new Foo();
			}
		}
	`)
	require.True(t, reporter.HasWarnings())
	require.False(t, reporter.HasErrors(), "loop-body allocations are discarded with the loop tracker, not merged")
}

func TestPointerValidator_OverwritingAllocatedPointerWarns(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		function f(): void {
			var p: *Foo = new Foo();
			p = new Foo();
			p.clean();
		}
	`)
	require.True(t, reporter.HasWarnings(), "reassigning a live allocation without cleanup first must warn")
}

func TestPointerValidator_ClassMethodCleanedHasNoErrors(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		class Hospital {
			public:
				method admit(): void {
					var p: *Foo = new Foo();
					p.clean();
				}
		}
	`)
	require.False(t, reporter.HasErrors(), "%v", reporter.errors)
}

func TestPointerValidator_ClassMethodUncleanedReportsError(t *testing.T) {
	reporter := validatePointers(t, `
		class Foo {
		}
		class Hospital {
			public:
				method admit(): void {
					var p: *Foo = new Foo();
				}
		}
	`)
	require.True(t, reporter.HasErrors())
}
