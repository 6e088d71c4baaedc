// Package pipeline orchestrates the Sinter compilation phases: lexing,
// parsing, semantic analysis, pointer-cleanup validation, and LLVM IR
// generation, threading one shared type registry and symbol table through
// all of them.
package pipeline

import (
	"fmt"
	"io"

	"github.com/sinterlang/sinterc/codegen"
	"github.com/sinterlang/sinterc/grammar"
	"github.com/sinterlang/sinterc/internal/domain"
	"github.com/sinterlang/sinterc/internal/infrastructure"
	"github.com/sinterlang/sinterc/internal/interfaces"
	"github.com/sinterlang/sinterc/lexer"
	"github.com/sinterlang/sinterc/semantic"
)

// DefaultCompilerPipeline implements interfaces.CompilerPipeline.
type DefaultCompilerPipeline struct {
	lexer            interfaces.Lexer
	parser           interfaces.Parser
	semanticAnalyzer interfaces.SemanticAnalyzer
	pointerValidator interfaces.PointerValidator
	codeGenerator    interfaces.CodeGenerator
	errorReporter    domain.ErrorReporter
	options          domain.CompilationOptions
	typeRegistry     domain.TypeRegistry
	symbolTable      interfaces.SymbolTable
}

func NewDefaultCompilerPipeline() *DefaultCompilerPipeline {
	return &DefaultCompilerPipeline{}
}

// NewDefaultPipeline wires a pipeline from the default implementation of
// every phase, sharing one type registry and symbol table across the
// analyzer and the code generator.
func NewDefaultPipeline(reporter domain.ErrorReporter) *DefaultCompilerPipeline {
	cp := NewDefaultCompilerPipeline()
	cp.SetErrorReporter(reporter)
	cp.SetTypeRegistry(domain.NewDefaultTypeRegistry())
	cp.SetSymbolTable(infrastructure.NewDefaultSymbolTable())
	cp.SetLexer(lexer.NewLexer())
	cp.SetParser(grammar.NewRecursiveDescentParser())
	cp.SetSemanticAnalyzer(semantic.NewAnalyzer())
	cp.SetPointerValidator(semantic.NewPointerValidator(reporter))
	cp.SetCodeGenerator(codegen.NewGenerator())
	return cp
}

// Compile runs a single source file through every phase and returns the
// LLVM IR text. Each phase must complete without recorded errors before
// the next runs.
func (cp *DefaultCompilerPipeline) Compile(filename string, input io.Reader) (string, error) {
	if err := cp.validateComponents(); err != nil {
		return "", fmt.Errorf("pipeline validation failed: %w", err)
	}

	cp.errorReporter.Clear()

	if err := cp.lexer.SetInput(filename, input); err != nil {
		return "", fmt.Errorf("failed to set lexer input: %w", err)
	}

	ast, err := cp.parser.Parse(cp.lexer)
	if err != nil {
		return "", fmt.Errorf("parsing failed: %w", err)
	}
	if err := cp.checkErrors("parsing"); err != nil {
		return "", err
	}

	if err := cp.semanticAnalyzer.Analyze(ast); err != nil {
		return "", fmt.Errorf("semantic analysis failed: %w", err)
	}
	if err := cp.checkErrors("semantic analysis"); err != nil {
		return "", err
	}

	if err := cp.pointerValidator.Validate(ast); err != nil {
		return "", fmt.Errorf("pointer cleanup validation failed: %w", err)
	}
	if err := cp.checkErrors("pointer cleanup validation"); err != nil {
		return "", err
	}

	if cp.options.WarningsAsErrors && cp.errorReporter.HasWarnings() {
		return "", fmt.Errorf("compilation failed: %d warning(s) treated as errors", len(cp.errorReporter.GetWarnings()))
	}

	cp.codeGenerator.SetOptions(interfaces.CodeGenOptions{
		TargetTriple: cp.options.TargetTriple,
		DebugInfo:    cp.options.DebugInfo,
	})
	ir, err := cp.codeGenerator.Generate(ast)
	if err != nil {
		return "", fmt.Errorf("code generation failed: %w", err)
	}
	if err := cp.checkErrors("code generation"); err != nil {
		return "", err
	}

	return ir, nil
}

func (cp *DefaultCompilerPipeline) checkErrors(phase string) error {
	if cp.errorReporter.HasErrors() {
		return fmt.Errorf("%s failed with %d error(s)", phase, len(cp.errorReporter.GetErrors()))
	}
	return nil
}

func (cp *DefaultCompilerPipeline) SetLexer(l interfaces.Lexer) {
	cp.lexer = l
}

func (cp *DefaultCompilerPipeline) SetParser(parser interfaces.Parser) {
	cp.parser = parser
	if cp.errorReporter != nil {
		parser.SetErrorReporter(cp.errorReporter)
	}
}

func (cp *DefaultCompilerPipeline) SetSemanticAnalyzer(analyzer interfaces.SemanticAnalyzer) {
	cp.semanticAnalyzer = analyzer
	if cp.errorReporter != nil {
		analyzer.SetErrorReporter(cp.errorReporter)
	}
	if cp.typeRegistry != nil {
		analyzer.SetTypeRegistry(cp.typeRegistry)
	}
	if cp.symbolTable != nil {
		analyzer.SetSymbolTable(cp.symbolTable)
	}
}

func (cp *DefaultCompilerPipeline) SetPointerValidator(validator interfaces.PointerValidator) {
	cp.pointerValidator = validator
	if cp.errorReporter != nil {
		validator.SetErrorReporter(cp.errorReporter)
	}
}

func (cp *DefaultCompilerPipeline) SetCodeGenerator(generator interfaces.CodeGenerator) {
	cp.codeGenerator = generator
	if cp.errorReporter != nil {
		generator.SetErrorReporter(cp.errorReporter)
	}
	if cp.typeRegistry != nil {
		generator.SetTypeRegistry(cp.typeRegistry)
	}
	if cp.symbolTable != nil {
		generator.SetSymbolTable(cp.symbolTable)
	}
}

func (cp *DefaultCompilerPipeline) SetErrorReporter(reporter domain.ErrorReporter) {
	cp.errorReporter = reporter
	if cp.parser != nil {
		cp.parser.SetErrorReporter(reporter)
	}
	if cp.semanticAnalyzer != nil {
		cp.semanticAnalyzer.SetErrorReporter(reporter)
	}
	if cp.pointerValidator != nil {
		cp.pointerValidator.SetErrorReporter(reporter)
	}
	if cp.codeGenerator != nil {
		cp.codeGenerator.SetErrorReporter(reporter)
	}
}

func (cp *DefaultCompilerPipeline) SetOptions(options domain.CompilationOptions) {
	cp.options = options
}

func (cp *DefaultCompilerPipeline) SetTypeRegistry(registry domain.TypeRegistry) {
	cp.typeRegistry = registry
	if cp.semanticAnalyzer != nil {
		cp.semanticAnalyzer.SetTypeRegistry(registry)
	}
	if cp.codeGenerator != nil {
		cp.codeGenerator.SetTypeRegistry(registry)
	}
}

func (cp *DefaultCompilerPipeline) SetSymbolTable(symbolTable interfaces.SymbolTable) {
	cp.symbolTable = symbolTable
	if cp.semanticAnalyzer != nil {
		cp.semanticAnalyzer.SetSymbolTable(symbolTable)
	}
	if cp.codeGenerator != nil {
		cp.codeGenerator.SetSymbolTable(symbolTable)
	}
}

func (cp *DefaultCompilerPipeline) validateComponents() error {
	if cp.lexer == nil {
		return fmt.Errorf("lexer not set")
	}
	if cp.parser == nil {
		return fmt.Errorf("parser not set")
	}
	if cp.semanticAnalyzer == nil {
		return fmt.Errorf("semantic analyzer not set")
	}
	if cp.pointerValidator == nil {
		return fmt.Errorf("pointer validator not set")
	}
	if cp.codeGenerator == nil {
		return fmt.Errorf("code generator not set")
	}
	if cp.errorReporter == nil {
		return fmt.Errorf("error reporter not set")
	}
	if cp.typeRegistry == nil {
		return fmt.Errorf("type registry not set")
	}
	if cp.symbolTable == nil {
		return fmt.Errorf("symbol table not set")
	}
	return nil
}
