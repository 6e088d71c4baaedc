package lexer

import (
	"strings"
	"testing"

	"github.com/sinterlang/sinterc/internal/interfaces"
)

// TestLexer_BasicTokenization tests basic token recognition
func TestLexer_BasicTokenization(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []interfaces.TokenType
	}{
		{
			name:  "keywords",
			input: "class function method var const if else while for return true false",
			expected: []interfaces.TokenType{
				interfaces.TokenClass, interfaces.TokenFunction, interfaces.TokenMethod, interfaces.TokenVar,
				interfaces.TokenConst, interfaces.TokenIf, interfaces.TokenElse, interfaces.TokenWhile,
				interfaces.TokenFor, interfaces.TokenReturn, interfaces.TokenTrue, interfaces.TokenFalse,
				interfaces.TokenEOF,
			},
		},
		{
			name:  "operators",
			input: "+ - * / % == != < <= > >= && || ! = ^ & |",
			expected: []interfaces.TokenType{
				interfaces.TokenPlus, interfaces.TokenMinus, interfaces.TokenStar, interfaces.TokenSlash,
				interfaces.TokenPercent, interfaces.TokenEqualEqual, interfaces.TokenNotEqual, interfaces.TokenLess,
				interfaces.TokenLessEqual, interfaces.TokenGreater, interfaces.TokenGreaterEqual,
				interfaces.TokenAndAnd, interfaces.TokenOrOr, interfaces.TokenNot, interfaces.TokenAssign,
				interfaces.TokenCaret, interfaces.TokenBitAnd, interfaces.TokenBitOr,
				interfaces.TokenEOF,
			},
		},
		{
			name:  "compound assignment and increment",
			input: "++ -- += -= *= /= %=",
			expected: []interfaces.TokenType{
				interfaces.TokenPlusPlus, interfaces.TokenMinusMinus, interfaces.TokenPlusEqual,
				interfaces.TokenMinusEqual, interfaces.TokenStarEqual, interfaces.TokenSlashEqual,
				interfaces.TokenPercentEqual, interfaces.TokenEOF,
			},
		},
		{
			name:  "delimiters",
			input: "( ) { } [ ] ; , . : ->",
			expected: []interfaces.TokenType{
				interfaces.TokenLeftParen, interfaces.TokenRightParen, interfaces.TokenLeftBrace,
				interfaces.TokenRightBrace, interfaces.TokenLeftBracket, interfaces.TokenRightBracket,
				interfaces.TokenSemicolon, interfaces.TokenComma, interfaces.TokenDot, interfaces.TokenColon,
				interfaces.TokenArrow, interfaces.TokenEOF,
			},
		},
		{
			name:  "literals",
			input: `42 3.14 "hello" D"hi {name}" identifier`,
			expected: []interfaces.TokenType{
				interfaces.TokenInt, interfaces.TokenFloat, interfaces.TokenString, interfaces.TokenDString,
				interfaces.TokenIdentifier, interfaces.TokenEOF,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer()
			err := lexer.SetInput("test.sin", strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("SetInput failed: %v", err)
			}

			var tokens []interfaces.TokenType
			for {
				token := lexer.NextToken()
				tokens = append(tokens, token.Type)
				if token.Type == interfaces.TokenEOF {
					break
				}
			}

			if len(tokens) != len(tt.expected) {
				t.Errorf("Token count mismatch. Got %d, expected %d", len(tokens), len(tt.expected))
				t.Errorf("Got tokens: %v", tokens)
				t.Errorf("Expected:   %v", tt.expected)
				return
			}

			for i, expected := range tt.expected {
				if tokens[i] != expected {
					t.Errorf("Token %d: got %v, expected %v", i, tokens[i], expected)
				}
			}
		})
	}
}

// TestLexer_TokenValues tests that token values are correctly extracted
func TestLexer_TokenValues(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedType  interfaces.TokenType
		expectedValue string
	}{
		{"integer", "42", interfaces.TokenInt, "42"},
		{"float", "3.14", interfaces.TokenFloat, "3.14"},
		{"string", `"hello world"`, interfaces.TokenString, "hello world"},
		{"dstring", `D"hello {name}"`, interfaces.TokenDString, "hello {name}"},
		{"identifier", "myVariable", interfaces.TokenIdentifier, "myVariable"},
		{"keyword_class", "class", interfaces.TokenClass, "class"},
		{"keyword_var", "var", interfaces.TokenVar, "var"},
		{"annotation_bare", "@serializable", interfaces.TokenAnnotation, "@serializable"},
		{"annotation_args", "@range(0, 10)", interfaces.TokenAnnotation, "@range(0, 10)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer()
			err := lexer.SetInput("test.sin", strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("SetInput failed: %v", err)
			}

			token := lexer.NextToken()
			if token.Type != tt.expectedType {
				t.Errorf("Token type: got %v, expected %v", token.Type, tt.expectedType)
			}
			if token.Value != tt.expectedValue {
				t.Errorf("Token value: got %q, expected %q", token.Value, tt.expectedValue)
			}
		})
	}
}

// TestLexer_PositionTracking tests that source positions are correctly tracked
func TestLexer_PositionTracking(t *testing.T) {
	input := `class Box {
    var x: int = 42;
}`

	lexer := NewLexer()
	err := lexer.SetInput("test.sin", strings.NewReader(input))
	if err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}

	tests := []struct {
		expectedType   interfaces.TokenType
		expectedLine   int
		expectedColumn int
	}{
		{interfaces.TokenClass, 1, 1},
		{interfaces.TokenIdentifier, 1, 7}, // "Box"
		{interfaces.TokenLeftBrace, 1, 11},
		{interfaces.TokenVar, 2, 5},
		{interfaces.TokenIdentifier, 2, 9}, // "x"
		{interfaces.TokenColon, 2, 10},
		{interfaces.TokenTypeInt, 2, 12},
		{interfaces.TokenAssign, 2, 16},
		{interfaces.TokenInt, 2, 18}, // "42"
		{interfaces.TokenSemicolon, 2, 20},
	}

	for i, expected := range tests {
		token := lexer.NextToken()
		if token.Type != expected.expectedType {
			t.Errorf("Token %d type: got %v, expected %v", i, token.Type, expected.expectedType)
		}
		if token.Location.Line != expected.expectedLine {
			t.Errorf("Token %d line: got %d, expected %d", i, token.Location.Line, expected.expectedLine)
		}
		if token.Location.Column != expected.expectedColumn {
			t.Errorf("Token %d column: got %d, expected %d", i, token.Location.Column, expected.expectedColumn)
		}
	}
}

// TestLexer_ErrorHandling tests lexer behavior with invalid input
func TestLexer_ErrorHandling(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated_string", `"unterminated string`},
		{"unterminated_dstring", `D"unterminated {x}`},
		{"invalid_number", "123.456.789"},
		{"unexpected_character", "#$`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer()
			err := lexer.SetInput("test.sin", strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("SetInput failed: %v", err)
			}

			token := lexer.NextToken()
			if token.Type == interfaces.TokenEOF && len(tt.input) > 0 {
				t.Errorf("Unexpected EOF for non-empty input")
			}
		})
	}
}

// TestLexer_CommentHandling tests that comments are properly skipped
func TestLexer_CommentHandling(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []interfaces.TokenType
	}{
		{
			name:     "single_line_comment",
			input:    "class // this is a comment\nMain",
			expected: []interfaces.TokenType{interfaces.TokenClass, interfaces.TokenIdentifier, interfaces.TokenEOF},
		},
		{
			name:     "block_comment",
			input:    "class /* comment\nspanning lines */ Main",
			expected: []interfaces.TokenType{interfaces.TokenClass, interfaces.TokenIdentifier, interfaces.TokenEOF},
		},
		{
			name:     "multiple_comments",
			input:    "// first comment\nclass // second comment\nMain // third comment",
			expected: []interfaces.TokenType{interfaces.TokenClass, interfaces.TokenIdentifier, interfaces.TokenEOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer()
			err := lexer.SetInput("test.sin", strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("SetInput failed: %v", err)
			}

			var tokens []interfaces.TokenType
			for {
				token := lexer.NextToken()
				tokens = append(tokens, token.Type)
				if token.Type == interfaces.TokenEOF {
					break
				}
			}

			if len(tokens) != len(tt.expected) {
				t.Errorf("Token count mismatch. Got %d, expected %d", len(tokens), len(tt.expected))
				t.Errorf("Got tokens: %v", tokens)
				t.Errorf("Expected:   %v", tt.expected)
				return
			}

			for i, expected := range tt.expected {
				if tokens[i] != expected {
					t.Errorf("Token %d: got %v, expected %v", i, tokens[i], expected)
				}
			}
		})
	}
}

// TestLexer_PeekFunctionality tests the Peek method
func TestLexer_PeekFunctionality(t *testing.T) {
	input := "class Box"
	lexer := NewLexer()
	err := lexer.SetInput("test.sin", strings.NewReader(input))
	if err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}

	peeked := lexer.Peek()
	if peeked.Type != interfaces.TokenClass {
		t.Errorf("Peek: got %v, expected %v", peeked.Type, interfaces.TokenClass)
	}

	next := lexer.NextToken()
	if next.Type != interfaces.TokenClass {
		t.Errorf("NextToken after Peek: got %v, expected %v", next.Type, interfaces.TokenClass)
	}

	peeked2 := lexer.Peek()
	if peeked2.Type != interfaces.TokenIdentifier {
		t.Errorf("Second Peek: got %v, expected %v", peeked2.Type, interfaces.TokenIdentifier)
	}
}

// TestLexer_WhitespaceHandling tests whitespace is properly handled
func TestLexer_WhitespaceHandling(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"spaces", "class   Box"},
		{"tabs", "class\t\tBox"},
		{"newlines", "class\n\nBox"},
		{"mixed", "class \t\n  Box"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer()
			err := lexer.SetInput("test.sin", strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("SetInput failed: %v", err)
			}

			token1 := lexer.NextToken()
			if token1.Type != interfaces.TokenClass {
				t.Errorf("First token: got %v, expected %v", token1.Type, interfaces.TokenClass)
			}

			token2 := lexer.NextToken()
			if token2.Type != interfaces.TokenIdentifier {
				t.Errorf("Second token: got %v, expected %v", token2.Type, interfaces.TokenIdentifier)
			}
			if token2.Value != "Box" {
				t.Errorf("Second token value: got %q, expected %q", token2.Value, "Box")
			}

			token3 := lexer.NextToken()
			if token3.Type != interfaces.TokenEOF {
				t.Errorf("Third token: got %v, expected %v", token3.Type, interfaces.TokenEOF)
			}
		})
	}
}

// TestLexer_NumberFormats tests different number formats
func TestLexer_NumberFormats(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedType  interfaces.TokenType
		expectedValue string
	}{
		{"integer_zero", "0", interfaces.TokenInt, "0"},
		{"integer_positive", "42", interfaces.TokenInt, "42"},
		{"integer_large", "123456789", interfaces.TokenInt, "123456789"},
		{"float_basic", "3.14", interfaces.TokenFloat, "3.14"},
		{"float_zero", "0.0", interfaces.TokenFloat, "0.0"},
		{"float_leading_zero", "0.5", interfaces.TokenFloat, "0.5"},
		{"float_trailing_zero", "5.0", interfaces.TokenFloat, "5.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer()
			err := lexer.SetInput("test.sin", strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("SetInput failed: %v", err)
			}

			token := lexer.NextToken()
			if token.Type != tt.expectedType {
				t.Errorf("Token type: got %v, expected %v", token.Type, tt.expectedType)
			}
			if token.Value != tt.expectedValue {
				t.Errorf("Token value: got %q, expected %q", token.Value, tt.expectedValue)
			}
		})
	}
}

// TestLexer_StringEscapes tests string literal escape sequences
func TestLexer_StringEscapes(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedValue string
	}{
		{"simple_string", `"hello"`, "hello"},
		{"empty_string", `""`, ""},
		{"string_with_spaces", `"hello world"`, "hello world"},
		{"string_with_newline", `"hello\nworld"`, "hello\nworld"},
		{"string_with_tab", `"hello\tworld"`, "hello\tworld"},
		{"string_with_quote", `"say \"hello\""`, `say "hello"`},
		{"string_with_backslash", `"path\\to\\file"`, `path\to\file`},
		{"single_quoted_string", `'hello'`, "hello"},
		{"single_quoted_with_escaped_quote", `'it\'s'`, "it's"},
		{"single_quoted_keeps_double_quote", `'say "hi"'`, `say "hi"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer()
			err := lexer.SetInput("test.sin", strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("SetInput failed: %v", err)
			}

			token := lexer.NextToken()
			if token.Type != interfaces.TokenString {
				t.Errorf("Token type: got %v, expected %v", token.Type, interfaces.TokenString)
			}
			if token.Value != tt.expectedValue {
				t.Errorf("Token value: got %q, expected %q", token.Value, tt.expectedValue)
			}
		})
	}
}

// TestLexer_DStringPreservesPlaceholders ensures a D-string's raw lexeme
// keeps its {name} placeholders intact for the parser/codegen to consume.
func TestLexer_DStringPreservesPlaceholders(t *testing.T) {
	lexer := NewLexer()
	err := lexer.SetInput("test.sin", strings.NewReader(`D"total: {count} items for {user}"`))
	if err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}

	token := lexer.NextToken()
	if token.Type != interfaces.TokenDString {
		t.Fatalf("Token type: got %v, expected %v", token.Type, interfaces.TokenDString)
	}
	expected := "total: {count} items for {user}"
	if token.Value != expected {
		t.Errorf("Token value: got %q, expected %q", token.Value, expected)
	}
}

// TestLexer_SingleQuotedDString checks the D'…' spelling lexes like D"…".
func TestLexer_SingleQuotedDString(t *testing.T) {
	lexer := NewLexer()
	err := lexer.SetInput("test.sin", strings.NewReader(`D'count is {c}'`))
	if err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}

	token := lexer.NextToken()
	if token.Type != interfaces.TokenDString {
		t.Fatalf("Token type: got %v, expected %v", token.Type, interfaces.TokenDString)
	}
	if token.Value != "count is {c}" {
		t.Errorf("Token value: got %q, expected %q", token.Value, "count is {c}")
	}
}

// TestLexer_ComplexProgram tests lexing a complete small program
func TestLexer_ComplexProgram(t *testing.T) {
	input := `class Fib {
    function fib(n: int) -> int {
        if (n <= 1) {
            return n;
        } else {
            return fib(n - 1) + fib(n - 2);
        }
    }
}`

	lexer := NewLexer()
	err := lexer.SetInput("test.sin", strings.NewReader(input))
	if err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}

	tokenCount := 0
	for {
		token := lexer.NextToken()
		tokenCount++
		if token.Type == interfaces.TokenEOF {
			break
		}
		if token.Type == interfaces.TokenError {
			t.Errorf("Error token at position %d:%d with value %q",
				token.Location.Line, token.Location.Column, token.Value)
		}
	}

	if tokenCount < 35 || tokenCount > 60 {
		t.Errorf("Unexpected token count: %d (expected between 35-60)", tokenCount)
	}
}
