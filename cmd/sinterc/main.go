// Command sinterc compiles a Sinter source file to LLVM IR and, by
// default, drives llc and clang to produce a native executable.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sinterlang/sinterc/grammar"
	"github.com/sinterlang/sinterc/internal/domain"
	"github.com/sinterlang/sinterc/internal/infrastructure"
	"github.com/sinterlang/sinterc/internal/interfaces"
	"github.com/sinterlang/sinterc/lexer"
	"github.com/sinterlang/sinterc/pipeline"
)

var (
	// Version information (set by build flags)
	Version = "0.1.0-dev"

	outputPath  string
	emitLLVM    bool
	emitASM     bool
	compileOnly bool
	dumpAST     bool
	dumpTokens  bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "sinterc [flags] file.sin",
	Short: "Sinter compiler",
	Long: `sinterc is an ahead-of-time compiler for the Sinter language.

It compiles a single source file to LLVM IR and, unless told to stop
earlier, invokes llc and clang to assemble and link a native executable.`,
	Version:       Version,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCompile,
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path (default derives from the input name)")
	rootCmd.Flags().BoolVar(&emitLLVM, "emit-llvm", false, "write LLVM IR text and stop")
	rootCmd.Flags().BoolVar(&emitASM, "emit-asm", false, "emit assembly via llc and stop")
	rootCmd.Flags().BoolVarP(&compileOnly, "compile-only", "c", false, "emit an object file and stop")
	rootCmd.Flags().BoolVar(&dumpAST, "ast", false, "pretty-print the AST and stop")
	rootCmd.Flags().BoolVar(&dumpTokens, "tokens", false, "pretty-print the token stream and stop")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "announce each pipeline stage")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func announce(stage string) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[sinterc] %s\n", stage)
	}
}

func runCompile(_ *cobra.Command, args []string) error {
	sourcePath := args[0]

	if dumpTokens {
		return printTokens(os.Stdout, sourcePath)
	}
	if dumpAST {
		return printAST(os.Stdout, sourcePath)
	}

	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", sourcePath, err)
	}
	defer source.Close()

	reporter := infrastructure.NewSortedErrorReporter(infrastructure.NewConsoleErrorReporter(os.Stderr))
	cp := pipeline.NewDefaultPipeline(reporter)

	announce("compiling " + sourcePath)
	ir, err := cp.Compile(sourcePath, source)
	if err != nil {
		reporter.Flush()
		return err
	}
	reporter.Flush()

	if emitLLVM {
		llPath := derivePath(sourcePath, outputPath, ".ll")
		announce("writing IR to " + llPath)
		return os.WriteFile(llPath, []byte(ir), 0o644)
	}

	// every external-tool path starts from an IR file next to the input
	llPath := derivePath(sourcePath, "", ".ll")
	if err := os.WriteFile(llPath, []byte(ir), 0o644); err != nil {
		return err
	}

	backend := infrastructure.NewLLVMBackend()
	backend.Verbose = verbose
	backend.Log = os.Stderr

	if emitASM {
		asmPath := derivePath(sourcePath, outputPath, ".s")
		announce("assembling " + asmPath)
		return backend.EmitAssembly(llPath, asmPath)
	}

	objPath := derivePath(sourcePath, "", ".o")
	if compileOnly {
		objPath = derivePath(sourcePath, outputPath, ".o")
	}
	announce("emitting object " + objPath)
	if err := backend.EmitObject(llPath, objPath); err != nil {
		return err
	}
	if compileOnly {
		return nil
	}

	exePath := derivePath(sourcePath, outputPath, "")
	announce("linking " + exePath)
	return backend.LinkExecutable(objPath, exePath)
}

// derivePath resolves the output path for one pipeline product: an
// explicit -o wins, otherwise the input's extension is replaced (or
// stripped, for the executable).
func derivePath(sourcePath, override, ext string) string {
	if override != "" {
		return override
	}
	base := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	if ext == "" {
		return base
	}
	return base + ext
}

func printTokens(w io.Writer, sourcePath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", sourcePath, err)
	}
	defer source.Close()

	lex := lexer.NewLexer()
	if err := lex.SetInput(sourcePath, source); err != nil {
		return err
	}
	for {
		tok := lex.NextToken()
		fmt.Fprintf(w, "%s:%d:%d\t%s\t%q\n",
			tok.Location.Filename, tok.Location.Line, tok.Location.Column, tok.Type, tok.Value)
		if tok.Type == interfaces.TokenEOF {
			return nil
		}
		if tok.Type == interfaces.TokenError {
			return fmt.Errorf("%s", tok.Value)
		}
	}
}

func printAST(w io.Writer, sourcePath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", sourcePath, err)
	}
	defer source.Close()

	lex := lexer.NewLexer()
	if err := lex.SetInput(sourcePath, source); err != nil {
		return err
	}
	parser := grammar.NewRecursiveDescentParser()
	prog, err := parser.Parse(lex)
	if err != nil {
		return err
	}
	return domain.NewASTPrinter(w).Print(prog)
}
