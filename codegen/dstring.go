package codegen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sinterlang/sinterc/internal/domain"
)

// dstrPlaceholder matches a `{name}` substitution point inside a D-string
// template.
var dstrPlaceholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z_0-9]*)\}`)

// dstrRef is one entry in a function's variable-to-dstring dependency
// index: declAddr is the alloca'd slot of a live d_str binding, reloaded
// fresh each time so markDStringDependentsDirty always dirties whatever
// DString instance the binding currently holds.
type dstrRef struct {
	declAddr string
	declType domain.Type
}

// parseDStringTemplate splits a raw D-string template into a printf-style
// format (every `{name}` replaced with %s) and the ordered list of
// variable names it references.
func parseDStringTemplate(raw string) (string, []string) {
	var vars []string
	format := dstrPlaceholder.ReplaceAllStringFunc(raw, func(m string) string {
		vars = append(vars, dstrPlaceholder.FindStringSubmatch(m)[1])
		return "%s"
	})
	return format, vars
}

// dstringTypeCode maps a sinter type to the DString runtime's type-code
// constant: int=0, float=1, double=2, boolean=3, string=4, pointer=5.
func dstringTypeCode(t domain.Type) int {
	switch tt := t.(type) {
	case *domain.PrimitiveType:
		switch tt.Kind {
		case domain.Boolean:
			return 3
		case domain.Float:
			return 1
		case domain.Double:
			return 2
		default:
			return 0
		}
	case *domain.StringType, *domain.DStringType:
		return 4
	default:
		return 5
	}
}

// genDStringLiteral lowers a D-string literal: creates a DString runtime
// instance from its parsed format template, then wires each referenced
// variable's address into it via DString_setVar. The referenced names are
// stashed on the generator so bindDStringVar can register the dependency
// once the literal's destination binding is known.
func (g *Generator) genDStringLiteral(expr *domain.LiteralExpr) error {
	raw := expr.Value.(string)
	format, vars := parseDStringTemplate(raw)

	id := g.symbolTable.NextDStringID()
	fmtName := fmt.Sprintf("@.dstr.fmt.%d", id)
	n := len(format) + 1
	g.emitGlobal("%s = private unnamed_addr constant [%d x i8] c\"%s\\00\", align 1", fmtName, n, escapeForLLVM(format))
	fmtAddr := g.symbolTable.NextTemp()
	g.emit("%s = getelementptr inbounds [%d x i8], [%d x i8]* %s, i32 0, i32 0", fmtAddr, n, n, fmtName)

	dsReg := g.symbolTable.NextTemp()
	g.emit("%s = call %%DString* @DString_create(i8* %s, i64 %d, i32 %d)", dsReg, fmtAddr, len(format), len(vars))

	for i, name := range vars {
		lv, ok := g.locals[name]
		if !ok {
			g.reportError(fmt.Sprintf("D-string references undefined variable '%s'", name), expr.GetLocation())
			continue
		}
		addrAsBytes := g.symbolTable.NextTemp()
		g.emit("%s = bitcast %s* %s to i8*", addrAsBytes, lv.sinType.LLVM(), lv.addr)
		g.emit("call void @DString_setVar(%%DString* %s, i32 %d, i8* %s, i32 %d)", dsReg, i, addrAsBytes, dstringTypeCode(lv.sinType))
	}

	g.lastDStringRefs = vars
	g.curVal, g.curTyp = dsReg, &domain.DStringType{}
	return nil
}

// genDStringRead lowers reading a d_str-typed local: loads the DString
// pointer and hands it to DString_get, which recomputes the cached text
// only if a dependency marked it dirty since the last read.
func (g *Generator) genDStringRead(name string, lv *localVar) error {
	dsReg := g.symbolTable.NextTemp()
	g.emit("%s = load %s, %s* %s", dsReg, lv.sinType.LLVM(), lv.sinType.LLVM(), lv.addr)
	strReg := g.symbolTable.NextTemp()
	g.emit("%s = call i8* @DString_get(%%DString* %s)", strReg, dsReg)
	g.curVal, g.curTyp, g.curAddr = strReg, &domain.DStringType{}, ""
	return nil
}

// bindDStringVar registers name's alloca slot as the owner of the D-string
// references collected by the most recently visited D-string literal, so
// a later mutation of any of those source variables can find and dirty it.
func (g *Generator) bindDStringVar(name string, val string) {
	lv, ok := g.locals[name]
	if !ok || len(g.lastDStringRefs) == 0 {
		g.lastDStringRefs = nil
		return
	}
	if g.dstrDeps == nil {
		g.dstrDeps = make(map[string][]dstrRef)
	}
	for _, dep := range g.lastDStringRefs {
		g.dstrDeps[dep] = append(g.dstrDeps[dep], dstrRef{declAddr: lv.addr, declType: lv.sinType})
	}
	g.lastDStringRefs = nil
}

// markDStringDependentsDirty emits DString_markDirty for every D-string
// that embeds varName, called after any store to that variable.
func (g *Generator) markDStringDependentsDirty(varName string) {
	for _, ref := range g.dstrDeps[varName] {
		dsReg := g.symbolTable.NextTemp()
		g.emit("%s = load %s, %s* %s", dsReg, ref.declType.LLVM(), ref.declType.LLVM(), ref.declAddr)
		g.emit("call void @DString_markDirty(%%DString* %s)", dsReg)
	}
}

// emitDStringRuntime emits the fixed DString struct layout and its five
// runtime functions exactly once per module. DString_get's substitution
// loop walks the format template and the output buffer with two
// independently advancing cursors, so a replacement text of any length is
// copied in full instead of clobbering only the two bytes a literal "%s"
// occupied.
func (g *Generator) emitDStringRuntime() {
	g.emitGlobal("%s", strings.TrimPrefix(dstringRuntimeIR, "\n"))
}

const dstringRuntimeIR = `
%DString = type { i8*, i64, i8*, i64, i8**, i32*, i32, i1 }

define %DString* @DString_create(i8* %fmt, i64 %fmtlen, i32 %varcount) {
entry:
  %size.gep = getelementptr %DString, %DString* null, i32 1
  %size = ptrtoint %DString* %size.gep to i64
  %raw = call i8* @malloc(i64 %size)
  %d = bitcast i8* %raw to %DString*

  %fmt.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 0
  store i8* %fmt, i8** %fmt.slot
  %fmtlen.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 1
  store i64 %fmtlen, i64* %fmtlen.slot
  %cache.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 2
  store i8* null, i8** %cache.slot
  %cachelen.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 3
  store i64 0, i64* %cachelen.slot

  %varcount.ext = sext i32 %varcount to i64
  %varptrs.bytes = mul i64 %varcount.ext, 8
  %varptrs.raw = call i8* @malloc(i64 %varptrs.bytes)
  %varptrs.arr = bitcast i8* %varptrs.raw to i8**
  %varptrs.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 4
  store i8** %varptrs.arr, i8*** %varptrs.slot

  %vartypes.bytes = mul i64 %varcount.ext, 4
  %vartypes.raw = call i8* @malloc(i64 %vartypes.bytes)
  %vartypes.arr = bitcast i8* %vartypes.raw to i32*
  %vartypes.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 5
  store i32* %vartypes.arr, i32** %vartypes.slot

  %varcount.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 6
  store i32 %varcount, i32* %varcount.slot
  %dirty.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 7
  store i1 true, i1* %dirty.slot

  ret %DString* %d
}

define void @DString_setVar(%DString* %d, i32 %index, i8* %varptr, i32 %typecode) {
entry:
  %varptrs.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 4
  %varptrs.arr = load i8**, i8*** %varptrs.slot
  %varptrs.elem = getelementptr inbounds i8*, i8** %varptrs.arr, i32 %index
  store i8* %varptr, i8** %varptrs.elem

  %vartypes.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 5
  %vartypes.arr = load i32*, i32** %vartypes.slot
  %vartypes.elem = getelementptr inbounds i32, i32* %vartypes.arr, i32 %index
  store i32 %typecode, i32* %vartypes.elem

  ret void
}

define void @DString_markDirty(%DString* %d) {
entry:
  %dirty.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 7
  store i1 true, i1* %dirty.slot
  ret void
}

define void @DString_free(%DString* %d) {
entry:
  %cache.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 2
  %cache = load i8*, i8** %cache.slot
  %cache.isnull = icmp eq i8* %cache, null
  br i1 %cache.isnull, label %skip.cache, label %free.cache

free.cache:
  call void @free(i8* %cache)
  br label %skip.cache

skip.cache:
  %varptrs.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 4
  %varptrs.arr = load i8**, i8*** %varptrs.slot
  %varptrs.bytes = bitcast i8** %varptrs.arr to i8*
  call void @free(i8* %varptrs.bytes)

  %vartypes.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 5
  %vartypes.arr = load i32*, i32** %vartypes.slot
  %vartypes.bytes = bitcast i32* %vartypes.arr to i8*
  call void @free(i8* %vartypes.bytes)

  %self.bytes = bitcast %DString* %d to i8*
  call void @free(i8* %self.bytes)
  ret void
}

define i8* @DString_get(%DString* %d) {
entry:
  %dirty.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 7
  %dirty = load i1, i1* %dirty.slot
  br i1 %dirty, label %recompute, label %return.cached

return.cached:
  %cache.slot.fresh = getelementptr inbounds %DString, %DString* %d, i32 0, i32 2
  %cache.fresh = load i8*, i8** %cache.slot.fresh
  ret i8* %cache.fresh

recompute:
  %old.cache.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 2
  %old.cache = load i8*, i8** %old.cache.slot
  %old.isnull = icmp eq i8* %old.cache, null
  br i1 %old.isnull, label %alloc.buf, label %free.old

free.old:
  call void @free(i8* %old.cache)
  br label %alloc.buf

alloc.buf:
  %buf = call i8* @malloc(i64 4096)
  %scratch = alloca [64 x i8]
  %scratch.ptr = getelementptr inbounds [64 x i8], [64 x i8]* %scratch, i32 0, i32 0

  %fmt.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 0
  %fmt = load i8*, i8** %fmt.slot
  %fmtlen.slot = getelementptr inbounds %DString, %DString* %d, i32 0, i32 1
  %fmtlen = load i64, i64* %fmtlen.slot
  %varptrs.slot2 = getelementptr inbounds %DString, %DString* %d, i32 0, i32 4
  %varptrs = load i8**, i8*** %varptrs.slot2
  %vartypes.slot2 = getelementptr inbounds %DString, %DString* %d, i32 0, i32 5
  %vartypes = load i32*, i32** %vartypes.slot2

  %incursor.addr = alloca i64
  store i64 0, i64* %incursor.addr
  %outcursor.addr = alloca i64
  store i64 0, i64* %outcursor.addr
  %varindex.addr = alloca i32
  store i32 0, i32* %varindex.addr
  br label %scan.cond

scan.cond:
  %incursor = load i64, i64* %incursor.addr
  %scan.more = icmp slt i64 %incursor, %fmtlen
  br i1 %scan.more, label %scan.body, label %scan.done

scan.body:
  %cur.ptr = getelementptr inbounds i8, i8* %fmt, i64 %incursor
  %cur.byte = load i8, i8* %cur.ptr
  %is.percent = icmp eq i8 %cur.byte, 37
  br i1 %is.percent, label %check.s, label %copy.literal

check.s:
  %incursor.plus1 = add i64 %incursor, 1
  %has.next = icmp slt i64 %incursor.plus1, %fmtlen
  br i1 %has.next, label %check.s.load, label %copy.literal

check.s.load:
  %next.ptr = getelementptr inbounds i8, i8* %fmt, i64 %incursor.plus1
  %next.byte = load i8, i8* %next.ptr
  %is.s = icmp eq i8 %next.byte, 115
  br i1 %is.s, label %substitute, label %copy.literal

copy.literal:
  %outcursor.lit = load i64, i64* %outcursor.addr
  %out.lit.ptr = getelementptr inbounds i8, i8* %buf, i64 %outcursor.lit
  store i8 %cur.byte, i8* %out.lit.ptr
  %outcursor.lit.next = add i64 %outcursor.lit, 1
  store i64 %outcursor.lit.next, i64* %outcursor.addr
  %incursor.lit.next = add i64 %incursor, 1
  store i64 %incursor.lit.next, i64* %incursor.addr
  br label %scan.cond

substitute:
  %varindex = load i32, i32* %varindex.addr
  %varptr.elem = getelementptr inbounds i8*, i8** %varptrs, i32 %varindex
  %varptr = load i8*, i8** %varptr.elem
  %vartype.elem = getelementptr inbounds i32, i32* %vartypes, i32 %varindex
  %vartype = load i32, i32* %vartype.elem

  %is.int = icmp eq i32 %vartype, 0
  br i1 %is.int, label %fmt.int, label %check.float

fmt.int:
  %int.ptr = bitcast i8* %varptr to i32*
  %int.val = load i32, i32* %int.ptr
  %n.int = call i32 (i8*, i8*, ...) @sprintf(i8* %scratch.ptr, i8* getelementptr inbounds ([3 x i8], [3 x i8]* @.dstr.pct.d, i32 0, i32 0), i32 %int.val)
  br label %append.scratch

check.float:
  %is.float = icmp eq i32 %vartype, 1
  br i1 %is.float, label %fmt.float, label %check.double

fmt.float:
  %float.ptr = bitcast i8* %varptr to float*
  %float.val = load float, float* %float.ptr
  %float.ext = fpext float %float.val to double
  %n.float = call i32 (i8*, i8*, ...) @sprintf(i8* %scratch.ptr, i8* getelementptr inbounds ([3 x i8], [3 x i8]* @.dstr.pct.f, i32 0, i32 0), double %float.ext)
  br label %append.scratch

check.double:
  %is.double = icmp eq i32 %vartype, 2
  br i1 %is.double, label %fmt.double, label %check.bool

fmt.double:
  %double.ptr = bitcast i8* %varptr to double*
  %double.val = load double, double* %double.ptr
  %n.double = call i32 (i8*, i8*, ...) @sprintf(i8* %scratch.ptr, i8* getelementptr inbounds ([4 x i8], [4 x i8]* @.dstr.pct.lf, i32 0, i32 0), double %double.val)
  br label %append.scratch

check.bool:
  %is.bool = icmp eq i32 %vartype, 3
  br i1 %is.bool, label %fmt.bool, label %direct.ptr

fmt.bool:
  %bool.ptr = bitcast i8* %varptr to i1*
  %bool.val = load i1, i1* %bool.ptr
  %bool.true.addr = getelementptr inbounds [5 x i8], [5 x i8]* @.bool.true, i32 0, i32 0
  %bool.false.addr = getelementptr inbounds [6 x i8], [6 x i8]* @.bool.false, i32 0, i32 0
  %bool.src = select i1 %bool.val, i8* %bool.true.addr, i8* %bool.false.addr
  br label %append.direct

direct.ptr:
  ; type codes 4 (string/d_str) and 5 (pointer): the stored address is
  ; itself a pointer to the value to read, so one load yields the i8*
  ; content to splice in directly.
  %direct.ptr.ptr = bitcast i8* %varptr to i8**
  %direct.src = load i8*, i8** %direct.ptr.ptr
  br label %append.direct

append.scratch:
  %append.dest.idx = load i64, i64* %outcursor.addr
  %append.dest = getelementptr inbounds i8, i8* %buf, i64 %append.dest.idx
  %copied = call i8* @strcpy(i8* %append.dest, i8* %scratch.ptr)
  br label %advance.out

append.direct:
  %direct.dest.idx = load i64, i64* %outcursor.addr
  %direct.dest = getelementptr inbounds i8, i8* %buf, i64 %direct.dest.idx
  %direct.src.sel = phi i8* [ %bool.src, %fmt.bool ], [ %direct.src, %direct.ptr ]
  %direct.copied = call i8* @strcpy(i8* %direct.dest, i8* %direct.src.sel)
  br label %advance.out

advance.out:
  %appended.ptr = phi i8* [ %append.dest, %append.scratch ], [ %direct.dest, %append.direct ]
  %appended.len = call i64 @strlen(i8* %appended.ptr)
  %outcursor.cur = load i64, i64* %outcursor.addr
  %outcursor.new = add i64 %outcursor.cur, %appended.len
  store i64 %outcursor.new, i64* %outcursor.addr

  %varindex.next = add i32 %varindex, 1
  store i32 %varindex.next, i32* %varindex.addr
  %incursor.sub.next = add i64 %incursor, 2
  store i64 %incursor.sub.next, i64* %incursor.addr
  br label %scan.cond

scan.done:
  %final.outcursor = load i64, i64* %outcursor.addr
  %term.ptr = getelementptr inbounds i8, i8* %buf, i64 %final.outcursor
  store i8 0, i8* %term.ptr

  %cache.slot.final = getelementptr inbounds %DString, %DString* %d, i32 0, i32 2
  store i8* %buf, i8** %cache.slot.final
  %cachelen.slot.final = getelementptr inbounds %DString, %DString* %d, i32 0, i32 3
  store i64 %final.outcursor, i64* %cachelen.slot.final
  %dirty.slot.clear = getelementptr inbounds %DString, %DString* %d, i32 0, i32 7
  store i1 false, i1* %dirty.slot.clear

  ret i8* %buf
}

@.dstr.pct.d = private unnamed_addr constant [3 x i8] c"%d\00", align 1
@.dstr.pct.f = private unnamed_addr constant [3 x i8] c"%f\00", align 1
@.dstr.pct.lf = private unnamed_addr constant [4 x i8] c"%lf\00", align 1
`
