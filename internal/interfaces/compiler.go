// Package interfaces defines the core interfaces wiring the Sinter
// compiler's pipeline stages together.
package interfaces

import (
	"io"

	"github.com/sinterlang/sinterc/internal/domain"
)

// Token is a single lexical token: kind, lexeme text, and source position.
type Token struct {
	Type     TokenType
	Value    string
	Location domain.SourcePosition
}

type TokenType int

const (
	// Literals
	TokenInt TokenType = iota
	TokenFloat
	TokenString
	TokenDString
	TokenBool
	TokenNull
	TokenIdentifier
	TokenAnnotation

	// Keywords
	TokenClass
	TokenFunction
	TokenMethod
	TokenParametrized
	TokenExtends
	TokenImplements
	TokenInterface
	TokenAbstract
	TokenPrivate
	TokenProtected
	TokenPublic
	TokenVar
	TokenConst
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenFor
	TokenIn
	TokenBreak
	TokenContinue
	TokenTrue
	TokenFalse
	TokenNullKeyword
	TokenNew
	TokenThis
	TokenSelf
	TokenPrint
	TokenPrintln

	// Primitive type keywords
	TokenTypeByte
	TokenTypeShort
	TokenTypeInt
	TokenTypeLong
	TokenTypeFloat
	TokenTypeDouble
	TokenTypeBoolean
	TokenTypeStr
	TokenTypeVoid

	// Operators (longest match first in the lexer)
	TokenPlusPlus
	TokenMinusMinus
	TokenPlusEqual
	TokenMinusEqual
	TokenStarEqual
	TokenSlashEqual
	TokenPercentEqual
	TokenEqualEqual
	TokenNotEqual
	TokenLessEqual
	TokenGreaterEqual
	TokenAndAnd
	TokenOrOr
	TokenArrow
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent
	TokenAssign
	TokenNot
	TokenLess
	TokenGreater
	TokenBitAnd
	TokenBitOr
	TokenCaret // ^ is XOR, never multiplicative

	// Delimiters
	TokenLeftParen
	TokenRightParen
	TokenLeftBrace
	TokenRightBrace
	TokenLeftBracket
	TokenRightBracket
	TokenSemicolon
	TokenComma
	TokenDot
	TokenColon

	// Special
	TokenEOF
	TokenError
)

var tokenTypeNames = map[TokenType]string{
	TokenInt:        "INT",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenDString:    "DSTRING",
	TokenBool:       "BOOL",
	TokenNull:       "NULL",
	TokenIdentifier: "IDENTIFIER",
	TokenAnnotation: "ANNOTATION",

	TokenClass:        "CLASS",
	TokenFunction:     "FUNCTION",
	TokenMethod:       "METHOD",
	TokenParametrized: "PARAMETRIZED",
	TokenExtends:      "EXTENDS",
	TokenImplements:   "IMPLEMENTS",
	TokenInterface:    "INTERFACE",
	TokenAbstract:     "ABSTRACT",
	TokenPrivate:      "PRIVATE",
	TokenProtected:    "PROTECTED",
	TokenPublic:       "PUBLIC",
	TokenVar:          "VAR",
	TokenConst:        "CONST",
	TokenReturn:       "RETURN",
	TokenIf:           "IF",
	TokenElse:         "ELSE",
	TokenWhile:        "WHILE",
	TokenFor:          "FOR",
	TokenIn:           "IN",
	TokenBreak:        "BREAK",
	TokenContinue:     "CONTINUE",
	TokenTrue:         "TRUE",
	TokenFalse:        "FALSE",
	TokenNullKeyword:  "NULL_KEYWORD",
	TokenNew:          "NEW",
	TokenThis:         "THIS",
	TokenSelf:         "SELF",
	TokenPrint:        "PRINT",
	TokenPrintln:      "PRINTLN",

	TokenTypeByte:    "TYPE_BYTE",
	TokenTypeShort:   "TYPE_SHORT",
	TokenTypeInt:     "TYPE_INT",
	TokenTypeLong:    "TYPE_LONG",
	TokenTypeFloat:   "TYPE_FLOAT",
	TokenTypeDouble:  "TYPE_DOUBLE",
	TokenTypeBoolean: "TYPE_BOOLEAN",
	TokenTypeStr:     "TYPE_STR",
	TokenTypeVoid:    "TYPE_VOID",

	TokenPlusPlus:     "PLUS_PLUS",
	TokenMinusMinus:   "MINUS_MINUS",
	TokenPlusEqual:    "PLUS_EQUAL",
	TokenMinusEqual:   "MINUS_EQUAL",
	TokenStarEqual:    "STAR_EQUAL",
	TokenSlashEqual:   "SLASH_EQUAL",
	TokenPercentEqual: "PERCENT_EQUAL",
	TokenEqualEqual:   "EQUAL_EQUAL",
	TokenNotEqual:     "NOT_EQUAL",
	TokenLessEqual:    "LESS_EQUAL",
	TokenGreaterEqual: "GREATER_EQUAL",
	TokenAndAnd:       "AND_AND",
	TokenOrOr:         "OR_OR",
	TokenArrow:        "ARROW",
	TokenPlus:         "PLUS",
	TokenMinus:        "MINUS",
	TokenStar:         "STAR",
	TokenSlash:        "SLASH",
	TokenPercent:      "PERCENT",
	TokenAssign:       "ASSIGN",
	TokenNot:          "NOT",
	TokenLess:         "LESS",
	TokenGreater:      "GREATER",
	TokenBitAnd:       "BIT_AND",
	TokenBitOr:        "BIT_OR",
	TokenCaret:        "CARET",

	TokenLeftParen:    "LEFT_PAREN",
	TokenRightParen:   "RIGHT_PAREN",
	TokenLeftBrace:    "LEFT_BRACE",
	TokenRightBrace:   "RIGHT_BRACE",
	TokenLeftBracket:  "LEFT_BRACKET",
	TokenRightBracket: "RIGHT_BRACKET",
	TokenSemicolon:    "SEMICOLON",
	TokenComma:        "COMMA",
	TokenDot:          "DOT",
	TokenColon:        "COLON",

	TokenEOF:   "EOF",
	TokenError: "ERROR",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Lexer is a single-pass character scanner producing a token stream
// terminated by EOF.
type Lexer interface {
	NextToken() Token
	Peek() Token
	SetInput(filename string, input io.Reader) error
	GetCurrentPosition() domain.SourcePosition
}

// Parser builds an AST from a token stream via recursive descent.
type Parser interface {
	Parse(lexer Lexer) (*domain.Program, error)
	SetErrorReporter(reporter domain.ErrorReporter)
}

// SemanticAnalyzer runs the four ordered passes over the AST.
type SemanticAnalyzer interface {
	Analyze(program *domain.Program) error
	SetTypeRegistry(registry domain.TypeRegistry)
	SetSymbolTable(symbolTable SymbolTable)
	SetErrorReporter(reporter domain.ErrorReporter)
}

// PointerValidator runs the flow-sensitive cleanup check over every
// function/method body after semantic analysis succeeds.
type PointerValidator interface {
	Validate(program *domain.Program) error
	SetErrorReporter(reporter domain.ErrorReporter)
}

// CodeGenerator lowers the analyzed AST to LLVM IR text.
type CodeGenerator interface {
	Generate(program *domain.Program) (string, error)
	SetTypeRegistry(registry domain.TypeRegistry)
	SetSymbolTable(symbolTable SymbolTable)
	SetOptions(options CodeGenOptions)
	SetErrorReporter(reporter domain.ErrorReporter)
}

type CodeGenOptions struct {
	TargetTriple string
	DebugInfo    bool
}

// Symbol is a resolved name in some lexical scope.
type Symbol struct {
	Name             string
	Type             domain.Type
	Kind             SymbolKind
	Location         domain.SourceRange
	Const            bool
	EmissionName     string
	Initialized      bool
	PointerAllocated bool
}

type SymbolKind int

const (
	VariableSymbol SymbolKind = iota
	ParameterSymbol
	FieldSymbol
	MethodSymbol
	FunctionSymbol
	ClassSymbol
	TypeSymbol
)

// Scope is one frame of the symbol table's lexical scope stack.
type Scope struct {
	Name     string
	Parent   *Scope
	Symbols  map[string]*Symbol
	Children []*Scope
}

// SymbolTable is a stack of lexical scopes, resolved outward.
type SymbolTable interface {
	EnterScope(name string) *Scope
	ExitScope()
	GetCurrentScope() *Scope
	GetGlobalScope() *Scope
	DeclareSymbol(name string, symbolType domain.Type, kind SymbolKind, location domain.SourceRange) (*Symbol, error)
	LookupSymbol(name string) (*Symbol, bool)
	LookupSymbolInScope(name string, scope *Scope) (*Symbol, bool)
	NextTemp() string
	NextLabel(prefix string) string
	InternString(value string) string
	NextDStringID() int
	StringPool() []struct{ Value, Name string }
}

// CompilerPipeline orchestrates lexer -> parser -> analyzer -> validator ->
// codegen for a single source file.
type CompilerPipeline interface {
	Compile(filename string, input io.Reader) (string, error)
	SetLexer(lexer Lexer)
	SetParser(parser Parser)
	SetSemanticAnalyzer(analyzer SemanticAnalyzer)
	SetPointerValidator(validator PointerValidator)
	SetCodeGenerator(generator CodeGenerator)
	SetErrorReporter(reporter domain.ErrorReporter)
	SetOptions(options domain.CompilationOptions)
}
