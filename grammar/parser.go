// Package grammar implements a hand-written recursive-descent parser for
// Sinter. Binary expressions are parsed by precedence climbing over the ten
// levels below (lowest to highest): assignment, logical-or, logical-and,
// equality, relational, bitwise-or, xor, bitwise-and, additive,
// multiplicative, with unary/postfix/primary above those.
//
// The parser stops at the first syntax error (no error recovery, matching
// the compiler's single-shot error model).
package grammar

import (
	"fmt"
	"strings"

	"github.com/sinterlang/sinterc/internal/domain"
	"github.com/sinterlang/sinterc/internal/interfaces"
)

// Parser is a recursive-descent parser over an interfaces.Lexer token stream.
type Parser struct {
	lexer    interfaces.Lexer
	reporter domain.ErrorReporter
	current  interfaces.Token
}

// NewRecursiveDescentParser returns a new Sinter parser.
func NewRecursiveDescentParser() interfaces.Parser {
	return &Parser{}
}

func (p *Parser) SetErrorReporter(reporter domain.ErrorReporter) {
	p.reporter = reporter
}

// Parse consumes the lexer's full token stream and returns the Program AST.
func (p *Parser) Parse(lex interfaces.Lexer) (*domain.Program, error) {
	p.lexer = lex
	p.current = p.lexer.NextToken()

	start := p.current.Location
	var decls []domain.Declaration

	for !p.check(interfaces.TokenEOF) {
		decl, err := p.parseTopLevelDecl()
		if err != nil {
			p.reportError(err)
			return nil, err
		}
		decls = append(decls, decl)
	}

	return &domain.Program{
		BaseNode:     domain.BaseNode{Location: domain.SourceRange{Start: start, End: p.current.Location}},
		Declarations: decls,
	}, nil
}

func (p *Parser) reportError(err error) {
	if p.reporter == nil {
		return
	}
	errType := domain.SyntaxError
	if p.current.Type == interfaces.TokenError {
		errType = domain.LexicalError
	}
	p.reporter.ReportError(domain.CompilerError{
		Type:     errType,
		Message:  err.Error(),
		Location: domain.SourceRange{Start: p.current.Location, End: p.current.Location},
	})
}

// ---- token stream helpers ----

func (p *Parser) advance() interfaces.Token {
	tok := p.current
	p.current = p.lexer.NextToken()
	return tok
}

func (p *Parser) check(t interfaces.TokenType) bool {
	return p.current.Type == t
}

func (p *Parser) checkAny(types ...interfaces.TokenType) bool {
	for _, t := range types {
		if p.current.Type == t {
			return true
		}
	}
	return false
}

func (p *Parser) match(t interfaces.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t interfaces.TokenType, context string) (interfaces.Token, error) {
	if p.current.Type == interfaces.TokenError {
		// the lexer already phrased the message; pass it through verbatim
		return interfaces.Token{}, fmt.Errorf("%s", p.current.Value)
	}
	if !p.check(t) {
		return interfaces.Token{}, fmt.Errorf("%s:%d:%d: expected token %d in %s, got %q",
			p.current.Location.Filename, p.current.Location.Line, p.current.Location.Column, t, context, p.current.Value)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdentifier(context string) (string, error) {
	tok, err := p.expect(interfaces.TokenIdentifier, context)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// ---- type names ----

var primitiveTypeTokens = map[interfaces.TokenType]bool{
	interfaces.TokenTypeByte:    true,
	interfaces.TokenTypeShort:   true,
	interfaces.TokenTypeInt:     true,
	interfaces.TokenTypeLong:    true,
	interfaces.TokenTypeFloat:   true,
	interfaces.TokenTypeDouble:  true,
	interfaces.TokenTypeBoolean: true,
	interfaces.TokenTypeStr:     true,
	interfaces.TokenTypeVoid:    true,
}

// parseTypeName scans a type reference: a primitive keyword or
// class/interface identifier with any number of '*' pointer markers
// (written as suffixes, `Box*`, though the prefix spelling `*Box` is
// accepted too) and trailing "[]" array markers. The result is a flat
// string like "*Box" or "int[]", with pointer levels normalized to
// leading stars, resolved against the type registry during semantic
// analysis.
func (p *Parser) parseTypeName() (string, error) {
	prefix := ""
	for p.match(interfaces.TokenStar) {
		prefix += "*"
	}

	var base string
	if primitiveTypeTokens[p.current.Type] {
		base = p.advance().Value
	} else if p.check(interfaces.TokenIdentifier) {
		base = p.advance().Value
	} else {
		return "", fmt.Errorf("%s:%d:%d: expected a type name, got %q",
			p.current.Location.Filename, p.current.Location.Line, p.current.Location.Column, p.current.Value)
	}

	suffix := ""
	for {
		if p.check(interfaces.TokenStar) {
			p.advance()
			prefix += "*"
			continue
		}
		if p.check(interfaces.TokenLeftBracket) {
			p.advance()
			if _, err := p.expect(interfaces.TokenRightBracket, "array type"); err != nil {
				return "", err
			}
			suffix += "[]"
			continue
		}
		break
	}

	return prefix + base + suffix, nil
}

// ---- top level ----

func (p *Parser) parseTopLevelDecl() (domain.Declaration, error) {
	switch {
	case p.check(interfaces.TokenParametrized), p.check(interfaces.TokenClass):
		return p.parseClassDecl()
	case p.check(interfaces.TokenInterface):
		return p.parseInterfaceDecl()
	case p.check(interfaces.TokenFunction):
		return p.parseFunctionDecl()
	default:
		return nil, fmt.Errorf("%s:%d:%d: expected a class, interface, or function declaration, got %q",
			p.current.Location.Filename, p.current.Location.Line, p.current.Location.Column, p.current.Value)
	}
}

func (p *Parser) parseClassDecl() (*domain.ClassDeclaration, error) {
	start := p.current.Location
	p.match(interfaces.TokenParametrized)

	if _, err := p.expect(interfaces.TokenClass, "class declaration"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier("class name")
	if err != nil {
		return nil, err
	}

	var typeParams []string
	if p.match(interfaces.TokenLess) {
		for {
			param, err := p.expectIdentifier("type parameter")
			if err != nil {
				return nil, err
			}
			typeParams = append(typeParams, param)
			if !p.match(interfaces.TokenComma) {
				break
			}
		}
		if _, err := p.expect(interfaces.TokenGreater, "type parameter list"); err != nil {
			return nil, err
		}
	}

	baseClass := ""
	if p.match(interfaces.TokenExtends) {
		baseClass, err = p.expectIdentifier("base class name")
		if err != nil {
			return nil, err
		}
	}

	var ifaces []string
	if p.match(interfaces.TokenImplements) {
		for {
			ifaceName, err := p.expectIdentifier("implemented interface name")
			if err != nil {
				return nil, err
			}
			ifaces = append(ifaces, ifaceName)
			if !p.match(interfaces.TokenComma) {
				break
			}
		}
	}

	if _, err := p.expect(interfaces.TokenLeftBrace, "class body"); err != nil {
		return nil, err
	}

	var blocks []*domain.ScopeBlock
	for !p.check(interfaces.TokenRightBrace) {
		block, err := p.parseScopeBlock()
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	end := p.current.Location
	if _, err := p.expect(interfaces.TokenRightBrace, "class body"); err != nil {
		return nil, err
	}

	return &domain.ClassDeclaration{
		BaseNode:    domain.BaseNode{Location: domain.SourceRange{Start: start, End: end}},
		Name:        name,
		TypeParams:  typeParams,
		BaseClass:   baseClass,
		Interfaces:  ifaces,
		ScopeBlocks: blocks,
	}, nil
}

var visibilityTokens = map[interfaces.TokenType]string{
	interfaces.TokenPublic:    "public",
	interfaces.TokenPrivate:   "private",
	interfaces.TokenProtected: "protected",
}

// parseScopeBlock parses one `public:`/`private:`/`protected:` section and
// every field/method declaration up to the next visibility keyword or the
// closing brace of the class body.
func (p *Parser) parseScopeBlock() (*domain.ScopeBlock, error) {
	start := p.current.Location
	visibility, ok := visibilityTokens[p.current.Type]
	if !ok {
		return nil, fmt.Errorf("%s:%d:%d: expected a visibility section (public/private/protected), got %q",
			p.current.Location.Filename, p.current.Location.Line, p.current.Location.Column, p.current.Value)
	}
	p.advance()
	if _, err := p.expect(interfaces.TokenColon, "visibility section"); err != nil {
		return nil, err
	}

	block := &domain.ScopeBlock{Visibility: visibility}

	for !p.check(interfaces.TokenRightBrace) && !visibilityStarts(p.current.Type) {
		var annotation *domain.FieldAnnotation
		for p.check(interfaces.TokenAnnotation) {
			annotation = mergeAnnotation(annotation, p.current.Value)
			p.advance()
		}

		switch {
		case p.check(interfaces.TokenVar), p.check(interfaces.TokenConst):
			field, err := p.parseFieldDecl(annotation)
			if err != nil {
				return nil, err
			}
			field.Visibility = visibility
			block.Fields = append(block.Fields, field)
		case p.check(interfaces.TokenMethod), p.check(interfaces.TokenAbstract), p.isIdentifierValue("static"):
			method, err := p.parseMethodDecl()
			if err != nil {
				return nil, err
			}
			method.Visibility = visibility
			block.Methods = append(block.Methods, method)
		default:
			return nil, fmt.Errorf("%s:%d:%d: expected a field or method declaration, got %q",
				p.current.Location.Filename, p.current.Location.Line, p.current.Location.Column, p.current.Value)
		}
	}

	block.Location = domain.SourceRange{Start: start, End: p.current.Location}
	return block, nil
}

func visibilityStarts(t interfaces.TokenType) bool {
	_, ok := visibilityTokens[t]
	return ok
}

// isIdentifierValue reports whether the current token is a plain identifier
// spelled value. It is used for "static", which Sinter does not reserve as a
// keyword since it only ever modifies a method declaration.
func (p *Parser) isIdentifierValue(value string) bool {
	return p.current.Type == interfaces.TokenIdentifier && p.current.Value == value
}

// mergeAnnotation folds one raw annotation into the field's flag set.
// Both spellings are accepted: a bare flag name (@serializable) and a
// key=value argument list (@annotation(serializable=true, derived=false)).
func mergeAnnotation(existing *domain.FieldAnnotation, raw string) *domain.FieldAnnotation {
	if existing == nil {
		existing = &domain.FieldAnnotation{}
	}
	apply := func(name string, value bool) {
		switch name {
		case "readonly":
			existing.ReadOnly = value
		case "writeonly":
			existing.WriteOnly = value
		case "derived":
			existing.Derived = value
		case "serializable":
			existing.Serializable = value
		}
	}
	name, args := splitAnnotation(raw)
	apply(name, true)
	for _, kv := range strings.Split(args, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		apply(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]) == "true")
	}
	return existing
}

// splitAnnotation strips the leading '@' and separates the name from the
// contents of its "(...)" argument list, if any.
func splitAnnotation(raw string) (string, string) {
	name := raw[1:]
	for i, r := range name {
		if r == '(' {
			args := name[i+1:]
			if len(args) > 0 && args[len(args)-1] == ')' {
				args = args[:len(args)-1]
			}
			return name[:i], args
		}
	}
	return name, ""
}

func (p *Parser) parseFieldDecl(annotation *domain.FieldAnnotation) (*domain.FieldDeclaration, error) {
	start := p.current.Location
	isConst := p.check(interfaces.TokenConst)
	p.advance() // consume 'var' or 'const'

	name, err := p.expectIdentifier("field name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(interfaces.TokenColon, "field declaration"); err != nil {
		return nil, err
	}
	typeName, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}

	var init domain.Expression
	if p.match(interfaces.TokenAssign) {
		init, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	end := p.current.Location
	// field declarations may omit the trailing semicolon
	p.match(interfaces.TokenSemicolon)

	return &domain.FieldDeclaration{
		BaseNode:    domain.BaseNode{Location: domain.SourceRange{Start: start, End: end}},
		Name:        name,
		TypeName:    typeName,
		Const:       isConst,
		Initializer: init,
		Annotation:  annotation,
	}, nil
}

func (p *Parser) parseMethodDecl() (*domain.MethodDeclaration, error) {
	start := p.current.Location
	static := false
	if p.isIdentifierValue("static") {
		static = true
		p.advance()
	}
	abstract := p.match(interfaces.TokenAbstract)

	if _, err := p.expect(interfaces.TokenMethod, "method declaration"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier("method name")
	if err != nil {
		return nil, err
	}

	params, err := p.parseParameterList()
	if err != nil {
		return nil, err
	}

	returnType := "void"
	if p.match(interfaces.TokenColon) || p.match(interfaces.TokenArrow) {
		returnType, err = p.parseTypeName()
		if err != nil {
			return nil, err
		}
	}

	var body *domain.BlockStmt
	end := p.current.Location
	if abstract {
		if _, err := p.expect(interfaces.TokenSemicolon, "abstract method declaration"); err != nil {
			return nil, err
		}
	} else {
		body, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
		end = body.Location.End
	}

	return &domain.MethodDeclaration{
		BaseNode:       domain.BaseNode{Location: domain.SourceRange{Start: start, End: end}},
		Name:           name,
		Parameters:     params,
		ReturnTypeName: returnType,
		Body:           body,
		Static:         static,
		Abstract:       abstract,
	}, nil
}

func (p *Parser) parseParameterList() ([]domain.Parameter, error) {
	if _, err := p.expect(interfaces.TokenLeftParen, "parameter list"); err != nil {
		return nil, err
	}
	var params []domain.Parameter
	for !p.check(interfaces.TokenRightParen) {
		name, err := p.expectIdentifier("parameter name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(interfaces.TokenColon, "parameter declaration"); err != nil {
			return nil, err
		}
		typeName, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		params = append(params, domain.Parameter{Name: name, TypeName: typeName})
		if !p.match(interfaces.TokenComma) {
			break
		}
	}
	if _, err := p.expect(interfaces.TokenRightParen, "parameter list"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseInterfaceDecl() (*domain.InterfaceDeclaration, error) {
	start := p.current.Location
	if _, err := p.expect(interfaces.TokenInterface, "interface declaration"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier("interface name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(interfaces.TokenLeftBrace, "interface body"); err != nil {
		return nil, err
	}

	var methods []domain.InterfaceMethodSig
	for !p.check(interfaces.TokenRightBrace) {
		if _, err := p.expect(interfaces.TokenMethod, "interface method signature"); err != nil {
			return nil, err
		}
		methodName, err := p.expectIdentifier("method name")
		if err != nil {
			return nil, err
		}
		params, err := p.parseParameterList()
		if err != nil {
			return nil, err
		}
		returnType := "void"
		if p.match(interfaces.TokenColon) || p.match(interfaces.TokenArrow) {
			returnType, err = p.parseTypeName()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(interfaces.TokenSemicolon, "interface method signature"); err != nil {
			return nil, err
		}
		methods = append(methods, domain.InterfaceMethodSig{Name: methodName, Parameters: params, ReturnTypeName: returnType})
	}

	end := p.current.Location
	if _, err := p.expect(interfaces.TokenRightBrace, "interface body"); err != nil {
		return nil, err
	}

	return &domain.InterfaceDeclaration{
		BaseNode: domain.BaseNode{Location: domain.SourceRange{Start: start, End: end}},
		Name:     name,
		Methods:  methods,
	}, nil
}

func (p *Parser) parseFunctionDecl() (*domain.FunctionDeclaration, error) {
	start := p.current.Location
	if _, err := p.expect(interfaces.TokenFunction, "function declaration"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier("function name")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParameterList()
	if err != nil {
		return nil, err
	}
	returnType := "void"
	if p.match(interfaces.TokenColon) || p.match(interfaces.TokenArrow) {
		returnType, err = p.parseTypeName()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &domain.FunctionDeclaration{
		BaseNode:       domain.BaseNode{Location: domain.SourceRange{Start: start, End: body.Location.End}},
		Name:           name,
		Parameters:     params,
		ReturnTypeName: returnType,
		Body:           body,
	}, nil
}

// ---- statements ----

func (p *Parser) parseBlock() (*domain.BlockStmt, error) {
	start := p.current.Location
	if _, err := p.expect(interfaces.TokenLeftBrace, "block"); err != nil {
		return nil, err
	}
	var stmts []domain.Statement
	for !p.check(interfaces.TokenRightBrace) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	end := p.current.Location
	if _, err := p.expect(interfaces.TokenRightBrace, "block"); err != nil {
		return nil, err
	}
	return &domain.BlockStmt{
		BaseNode:   domain.BaseNode{Location: domain.SourceRange{Start: start, End: end}},
		Statements: stmts,
	}, nil
}

func (p *Parser) parseStatement() (domain.Statement, error) {
	switch {
	case p.check(interfaces.TokenLeftBrace):
		return p.parseBlock()
	case p.check(interfaces.TokenVar), p.check(interfaces.TokenConst):
		return p.parseVarDeclStmt()
	case p.check(interfaces.TokenIf):
		return p.parseIfStmt()
	case p.check(interfaces.TokenWhile):
		return p.parseWhileStmt()
	case p.check(interfaces.TokenFor):
		return p.parseForStmt()
	case p.check(interfaces.TokenBreak):
		loc := p.advance().Location
		if _, err := p.expect(interfaces.TokenSemicolon, "break statement"); err != nil {
			return nil, err
		}
		return &domain.BreakStmt{BaseNode: domain.BaseNode{Location: domain.SourceRange{Start: loc, End: loc}}}, nil
	case p.check(interfaces.TokenContinue):
		loc := p.advance().Location
		if _, err := p.expect(interfaces.TokenSemicolon, "continue statement"); err != nil {
			return nil, err
		}
		return &domain.ContinueStmt{BaseNode: domain.BaseNode{Location: domain.SourceRange{Start: loc, End: loc}}}, nil
	case p.check(interfaces.TokenReturn):
		return p.parseReturnStmt()
	case p.check(interfaces.TokenPrint), p.check(interfaces.TokenPrintln):
		return p.parsePrintStmt()
	default:
		stmt, err := p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(interfaces.TokenSemicolon, "statement"); err != nil {
			return nil, err
		}
		return stmt, nil
	}
}

func (p *Parser) parseVarDeclStmt() (*domain.VarDeclStmt, error) {
	start := p.current.Location
	isConst := p.check(interfaces.TokenConst)
	p.advance()

	name, err := p.expectIdentifier("variable name")
	if err != nil {
		return nil, err
	}
	typeName := ""
	if p.match(interfaces.TokenColon) {
		typeName, err = p.parseTypeName()
		if err != nil {
			return nil, err
		}
	}
	var init domain.Expression
	if p.match(interfaces.TokenAssign) {
		init, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	end := p.current.Location
	if _, err := p.expect(interfaces.TokenSemicolon, "variable declaration"); err != nil {
		return nil, err
	}
	return &domain.VarDeclStmt{
		BaseNode:    domain.BaseNode{Location: domain.SourceRange{Start: start, End: end}},
		Name:        name,
		TypeName:    typeName,
		Const:       isConst,
		Initializer: init,
	}, nil
}

func (p *Parser) parseIfStmt() (*domain.IfStmt, error) {
	start := p.advance().Location // 'if'
	if _, err := p.expect(interfaces.TokenLeftParen, "if condition"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(interfaces.TokenRightParen, "if condition"); err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	var elseStmt domain.Statement
	end := then.GetLocation().End
	if p.match(interfaces.TokenElse) {
		elseStmt, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
		end = elseStmt.GetLocation().End
	}
	return &domain.IfStmt{
		BaseNode:  domain.BaseNode{Location: domain.SourceRange{Start: start, End: end}},
		Condition: cond,
		Then:      then,
		Else:      elseStmt,
	}, nil
}

func (p *Parser) parseWhileStmt() (*domain.WhileStmt, error) {
	start := p.advance().Location // 'while'
	if _, err := p.expect(interfaces.TokenLeftParen, "while condition"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(interfaces.TokenRightParen, "while condition"); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &domain.WhileStmt{
		BaseNode:  domain.BaseNode{Location: domain.SourceRange{Start: start, End: body.GetLocation().End}},
		Condition: cond,
		Body:      body,
	}, nil
}

// parseForStmt handles both the classic three-clause for loop and the
// `for (var name [: Type] in collection)` foreach form. The two are
// disambiguated by whether an `in` keyword follows the loop variable.
func (p *Parser) parseForStmt() (domain.Statement, error) {
	start := p.advance().Location // 'for'
	if _, err := p.expect(interfaces.TokenLeftParen, "for loop"); err != nil {
		return nil, err
	}

	if p.check(interfaces.TokenVar) {
		p.advance()
		name, err := p.expectIdentifier("loop variable name")
		if err != nil {
			return nil, err
		}
		typeName := ""
		if p.match(interfaces.TokenColon) {
			typeName, err = p.parseTypeName()
			if err != nil {
				return nil, err
			}
		}
		if p.match(interfaces.TokenIn) {
			collection, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(interfaces.TokenRightParen, "for-each loop"); err != nil {
				return nil, err
			}
			body, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			return &domain.ForEachStmt{
				BaseNode:    domain.BaseNode{Location: domain.SourceRange{Start: start, End: body.GetLocation().End}},
				VarName:     name,
				VarTypeName: typeName,
				Collection:  collection,
				Body:        body,
			}, nil
		}

		// Classic for with a var-decl initializer.
		var init domain.Expression
		if p.match(interfaces.TokenAssign) {
			init, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		initStmt := &domain.VarDeclStmt{Name: name, TypeName: typeName, Initializer: init}
		return p.finishClassicFor(start, initStmt)
	}

	var initStmt domain.Statement
	if !p.check(interfaces.TokenSemicolon) {
		var err error
		initStmt, err = p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
	}
	return p.finishClassicFor(start, initStmt)
}

func (p *Parser) finishClassicFor(start domain.SourcePosition, init domain.Statement) (domain.Statement, error) {
	if _, err := p.expect(interfaces.TokenSemicolon, "for loop"); err != nil {
		return nil, err
	}
	var cond domain.Expression
	if !p.check(interfaces.TokenSemicolon) {
		var err error
		cond, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(interfaces.TokenSemicolon, "for loop"); err != nil {
		return nil, err
	}
	var update domain.Statement
	if !p.check(interfaces.TokenRightParen) {
		var err error
		update, err = p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(interfaces.TokenRightParen, "for loop"); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &domain.ForStmt{
		BaseNode:  domain.BaseNode{Location: domain.SourceRange{Start: start, End: body.GetLocation().End}},
		Init:      init,
		Condition: cond,
		Update:    update,
		Body:      body,
	}, nil
}

func (p *Parser) parseReturnStmt() (*domain.ReturnStmt, error) {
	start := p.advance().Location // 'return'
	var value domain.Expression
	end := start
	if !p.check(interfaces.TokenSemicolon) {
		var err error
		value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
		end = value.GetLocation().End
	}
	if _, err := p.expect(interfaces.TokenSemicolon, "return statement"); err != nil {
		return nil, err
	}
	return &domain.ReturnStmt{
		BaseNode: domain.BaseNode{Location: domain.SourceRange{Start: start, End: end}},
		Value:    value,
	}, nil
}

func (p *Parser) parsePrintStmt() (*domain.PrintStmt, error) {
	newline := p.check(interfaces.TokenPrintln)
	start := p.advance().Location // 'print' or 'println'
	if _, err := p.expect(interfaces.TokenLeftParen, "print arguments"); err != nil {
		return nil, err
	}
	var args []domain.Expression
	for !p.check(interfaces.TokenRightParen) {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.match(interfaces.TokenComma) {
			break
		}
	}
	end := p.current.Location
	if _, err := p.expect(interfaces.TokenRightParen, "print arguments"); err != nil {
		return nil, err
	}
	if _, err := p.expect(interfaces.TokenSemicolon, "print statement"); err != nil {
		return nil, err
	}
	return &domain.PrintStmt{
		BaseNode: domain.BaseNode{Location: domain.SourceRange{Start: start, End: end}},
		Args:     args,
		Newline:  newline,
	}, nil
}

var compoundAssignOps = map[interfaces.TokenType]domain.BinaryOperator{
	interfaces.TokenPlusEqual:    domain.Add,
	interfaces.TokenMinusEqual:   domain.Sub,
	interfaces.TokenStarEqual:    domain.Mul,
	interfaces.TokenSlashEqual:   domain.Div,
	interfaces.TokenPercentEqual: domain.Mod,
}

// parseSimpleStmt parses an assignment or a bare expression statement,
// without consuming a trailing semicolon (the caller does, since this is
// also used for for-loop init/update clauses which have no semicolon of
// their own in that position).
func (p *Parser) parseSimpleStmt() (domain.Statement, error) {
	start := p.current.Location
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.check(interfaces.TokenAssign) {
		p.advance()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &domain.AssignStmt{
			BaseNode: domain.BaseNode{Location: domain.SourceRange{Start: start, End: value.GetLocation().End}},
			Target:   expr,
			Value:    value,
		}, nil
	}

	if op, ok := compoundAssignOps[p.current.Type]; ok {
		p.advance()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		opCopy := op
		return &domain.AssignStmt{
			BaseNode:   domain.BaseNode{Location: domain.SourceRange{Start: start, End: value.GetLocation().End}},
			Target:     expr,
			Value:      value,
			CompoundOp: &opCopy,
		}, nil
	}

	return &domain.ExprStmt{
		BaseNode: domain.BaseNode{Location: expr.GetLocation()},
		Expr:     expr,
	}, nil
}

// ---- expressions: precedence climbing ----

func (p *Parser) parseExpression() (domain.Expression, error) {
	return p.parseLogicalOr()
}

func (p *Parser) parseLogicalOr() (domain.Expression, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.check(interfaces.TokenOrOr) {
		p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		left = binaryExpr(left, domain.Or, right)
	}
	return left, nil
}

func (p *Parser) parseLogicalAnd() (domain.Expression, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.check(interfaces.TokenAndAnd) {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = binaryExpr(left, domain.And, right)
	}
	return left, nil
}

var equalityOps = map[interfaces.TokenType]domain.BinaryOperator{
	interfaces.TokenEqualEqual: domain.Eq,
	interfaces.TokenNotEqual:   domain.Ne,
}

func (p *Parser) parseEquality() (domain.Expression, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := equalityOps[p.current.Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = binaryExpr(left, op, right)
	}
}

var relationalOps = map[interfaces.TokenType]domain.BinaryOperator{
	interfaces.TokenLess:         domain.Lt,
	interfaces.TokenLessEqual:    domain.Le,
	interfaces.TokenGreater:      domain.Gt,
	interfaces.TokenGreaterEqual: domain.Ge,
}

func (p *Parser) parseRelational() (domain.Expression, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := relationalOps[p.current.Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		left = binaryExpr(left, op, right)
	}
}

func (p *Parser) parseBitOr() (domain.Expression, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.check(interfaces.TokenBitOr) {
		p.advance()
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = binaryExpr(left, domain.BitOr, right)
	}
	return left, nil
}

// parseXor handles '^'. Per the revised grammar '^' is reserved
// exclusively for bitwise XOR: it is never accepted as a pointer sigil.
func (p *Parser) parseXor() (domain.Expression, error) {
	left, err := p.parseBitAnd()
	if err != nil {
		return nil, err
	}
	for p.check(interfaces.TokenCaret) {
		p.advance()
		right, err := p.parseBitAnd()
		if err != nil {
			return nil, err
		}
		left = binaryExpr(left, domain.Xor, right)
	}
	return left, nil
}

func (p *Parser) parseBitAnd() (domain.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.check(interfaces.TokenBitAnd) {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = binaryExpr(left, domain.BitAnd, right)
	}
	return left, nil
}

var additiveOps = map[interfaces.TokenType]domain.BinaryOperator{
	interfaces.TokenPlus:  domain.Add,
	interfaces.TokenMinus: domain.Sub,
}

func (p *Parser) parseAdditive() (domain.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := additiveOps[p.current.Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryExpr(left, op, right)
	}
}

var multiplicativeOps = map[interfaces.TokenType]domain.BinaryOperator{
	interfaces.TokenStar:    domain.Mul,
	interfaces.TokenSlash:   domain.Div,
	interfaces.TokenPercent: domain.Mod,
}

func (p *Parser) parseMultiplicative() (domain.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := multiplicativeOps[p.current.Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryExpr(left, op, right)
	}
}

func binaryExpr(left domain.Expression, op domain.BinaryOperator, right domain.Expression) domain.Expression {
	loc := domain.SourceRange{Start: left.GetLocation().Start, End: right.GetLocation().End}
	return &domain.BinaryExpr{
		TypedBase: typedBaseAt(loc),
		Left:      left,
		Operator:  op,
		Right:     right,
	}
}

// typedBaseAt builds the embedded TypedBase for an Expression node at the
// given source range; its type is filled in later by semantic analysis.
func typedBaseAt(loc domain.SourceRange) domain.TypedBase {
	return domain.TypedBase{BaseNode: domain.BaseNode{Location: loc}}
}

// parseUnary handles prefix '!', '-', '++', '--' and the pointer prefix
// forms '*expr' (dereference) and '&expr' (address-of); '*' and '&' are
// disambiguated from multiplication/bitwise-and purely by prefix position.
func (p *Parser) parseUnary() (domain.Expression, error) {
	start := p.current.Location
	switch {
	case p.check(interfaces.TokenNot):
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &domain.UnaryExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: operand.GetLocation().End}),
			Operator:  domain.Not,
			Operand:   operand,
		}, nil
	case p.check(interfaces.TokenMinus):
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &domain.UnaryExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: operand.GetLocation().End}),
			Operator:  domain.Neg,
			Operand:   operand,
		}, nil
	case p.check(interfaces.TokenPlusPlus):
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &domain.UnaryExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: operand.GetLocation().End}),
			Operator:  domain.PreInc,
			Operand:   operand,
		}, nil
	case p.check(interfaces.TokenMinusMinus):
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &domain.UnaryExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: operand.GetLocation().End}),
			Operator:  domain.PreDec,
			Operand:   operand,
		}, nil
	case p.check(interfaces.TokenStar):
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &domain.PointerExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: operand.GetLocation().End}),
			Operator:  domain.Deref,
			Operand:   operand,
		}, nil
	case p.check(interfaces.TokenBitAnd):
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &domain.PointerExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: operand.GetLocation().End}),
			Operator:  domain.AddressOf,
			Operand:   operand,
		}, nil
	default:
		return p.parsePostfix()
	}
}

// parsePostfix handles call/index/member chains and trailing '++'/'--',
// plus the `ClassName.new(args)` instantiation form which desugars to the
// same NewExpr node as the `new ClassName(args)` keyword form.
func (p *Parser) parsePostfix() (domain.Expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.check(interfaces.TokenDot):
			p.advance()
			if ident, ok := expr.(*domain.IdentifierExpr); ok && p.check(interfaces.TokenNew) {
				p.advance()
				args, end, err := p.parseArgList()
				if err != nil {
					return nil, err
				}
				expr = &domain.NewExpr{
					TypedBase: typedBaseAt(domain.SourceRange{Start: expr.GetLocation().Start, End: end}),
					ClassName: ident.Name,
					Args:      args,
				}
				continue
			}
			member, err := p.expectIdentifier("member name")
			if err != nil {
				return nil, err
			}
			memberExpr := &domain.MemberAccess{
				TypedBase: typedBaseAt(domain.SourceRange{Start: expr.GetLocation().Start, End: p.current.Location}),
				Object:    expr,
				Member:    member,
			}
			if p.check(interfaces.TokenLeftParen) {
				args, end, err := p.parseArgList()
				if err != nil {
					return nil, err
				}
				expr = &domain.MethodCall{
					TypedBase: typedBaseAt(domain.SourceRange{Start: expr.GetLocation().Start, End: end}),
					Callee:    memberExpr,
					Args:      args,
				}
			} else {
				expr = memberExpr
			}
		case p.check(interfaces.TokenLeftParen):
			args, end, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			expr = &domain.MethodCall{
				TypedBase: typedBaseAt(domain.SourceRange{Start: expr.GetLocation().Start, End: end}),
				Callee:    expr,
				Args:      args,
			}
		case p.check(interfaces.TokenLeftBracket):
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			end := p.current.Location
			if _, err := p.expect(interfaces.TokenRightBracket, "array index"); err != nil {
				return nil, err
			}
			expr = &domain.ArrayAccess{
				TypedBase: typedBaseAt(domain.SourceRange{Start: expr.GetLocation().Start, End: end}),
				Array:     expr,
				Index:     index,
			}
		case p.check(interfaces.TokenPlusPlus):
			end := p.current.Location
			p.advance()
			expr = &domain.UnaryExpr{
				TypedBase: typedBaseAt(domain.SourceRange{Start: expr.GetLocation().Start, End: end}),
				Operator:  domain.PostInc,
				Operand:   expr,
			}
		case p.check(interfaces.TokenMinusMinus):
			end := p.current.Location
			p.advance()
			expr = &domain.UnaryExpr{
				TypedBase: typedBaseAt(domain.SourceRange{Start: expr.GetLocation().Start, End: end}),
				Operator:  domain.PostDec,
				Operand:   expr,
			}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArgList() ([]domain.Expression, domain.SourcePosition, error) {
	if _, err := p.expect(interfaces.TokenLeftParen, "argument list"); err != nil {
		return nil, domain.SourcePosition{}, err
	}
	var args []domain.Expression
	for !p.check(interfaces.TokenRightParen) {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, domain.SourcePosition{}, err
		}
		args = append(args, arg)
		if !p.match(interfaces.TokenComma) {
			break
		}
	}
	end := p.current.Location
	if _, err := p.expect(interfaces.TokenRightParen, "argument list"); err != nil {
		return nil, domain.SourcePosition{}, err
	}
	return args, end, nil
}

func (p *Parser) parsePrimary() (domain.Expression, error) {
	start := p.current.Location

	switch {
	case p.check(interfaces.TokenInt):
		tok := p.advance()
		return &domain.LiteralExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: tok.Location}),
			Kind:      domain.IntLiteral,
			Value:     tok.Value,
		}, nil
	case p.check(interfaces.TokenFloat):
		tok := p.advance()
		return &domain.LiteralExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: tok.Location}),
			Kind:      domain.FloatLiteral,
			Value:     tok.Value,
		}, nil
	case p.check(interfaces.TokenString):
		tok := p.advance()
		return &domain.LiteralExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: tok.Location}),
			Kind:      domain.StringLiteralKind,
			Value:     tok.Value,
		}, nil
	case p.check(interfaces.TokenDString):
		tok := p.advance()
		return &domain.LiteralExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: tok.Location}),
			Kind:      domain.DStringLiteralKind,
			Value:     tok.Value,
		}, nil
	case p.check(interfaces.TokenTrue):
		p.advance()
		return &domain.LiteralExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: start}),
			Kind:      domain.BoolLiteral,
			Value:     true,
		}, nil
	case p.check(interfaces.TokenFalse):
		p.advance()
		return &domain.LiteralExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: start}),
			Kind:      domain.BoolLiteral,
			Value:     false,
		}, nil
	case p.check(interfaces.TokenNullKeyword):
		p.advance()
		return &domain.LiteralExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: start}),
			Kind:      domain.NullLiteral,
			Value:     nil,
		}, nil
	case p.check(interfaces.TokenThis):
		p.advance()
		return &domain.IdentifierExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: start}),
			Name:      "this",
		}, nil
	case p.check(interfaces.TokenSelf):
		p.advance()
		return &domain.IdentifierExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: start}),
			Name:      "self",
		}, nil
	case p.check(interfaces.TokenIdentifier):
		tok := p.advance()
		return &domain.IdentifierExpr{
			TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: tok.Location}),
			Name:      tok.Value,
		}, nil
	case p.check(interfaces.TokenNew):
		return p.parseNewExpr()
	case p.check(interfaces.TokenLeftParen):
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(interfaces.TokenRightParen, "parenthesized expression"); err != nil {
			return nil, err
		}
		return expr, nil
	case p.check(interfaces.TokenLeftBracket):
		return p.parseArrayLiteral()
	default:
		if p.current.Type == interfaces.TokenError {
			return nil, fmt.Errorf("%s", p.current.Value)
		}
		return nil, fmt.Errorf("%s:%d:%d: expected an expression, got %q",
			p.current.Location.Filename, p.current.Location.Line, p.current.Location.Column, p.current.Value)
	}
}

func (p *Parser) parseNewExpr() (domain.Expression, error) {
	start := p.advance().Location // 'new'
	className, err := p.expectIdentifier("class name")
	if err != nil {
		return nil, err
	}
	var typeArgs []string
	if p.match(interfaces.TokenLess) {
		for {
			arg, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			typeArgs = append(typeArgs, arg)
			if !p.match(interfaces.TokenComma) {
				break
			}
		}
		if _, err := p.expect(interfaces.TokenGreater, "type argument list"); err != nil {
			return nil, err
		}
	}
	args, end, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	return &domain.NewExpr{
		TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: end}),
		ClassName: className,
		TypeArgs:  typeArgs,
		Args:      args,
	}, nil
}

func (p *Parser) parseArrayLiteral() (domain.Expression, error) {
	start := p.advance().Location // '['
	var elements []domain.Expression
	for !p.check(interfaces.TokenRightBracket) {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elements = append(elements, elem)
		if !p.match(interfaces.TokenComma) {
			break
		}
	}
	end := p.current.Location
	if _, err := p.expect(interfaces.TokenRightBracket, "array literal"); err != nil {
		return nil, err
	}
	return &domain.ArrayLiteral{
		TypedBase: typedBaseAt(domain.SourceRange{Start: start, End: end}),
		Elements:  elements,
	}, nil
}
