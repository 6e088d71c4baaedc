package codegen

import (
	"fmt"

	"github.com/sinterlang/sinterc/internal/domain"
)

// serializableFields returns class's public, non-derived serializable
// fields in layout order.
func serializableFields(class *domain.ClassType) []*domain.FieldInfo {
	var fields []*domain.FieldInfo
	for _, name := range class.FieldOrder {
		f := class.Fields[name]
		if f.Serializable && !f.Derived && f.Visibility == "public" {
			fields = append(fields, f)
		}
	}
	return fields
}

// emitJSONHelpers emits the shared punctuation and format constants the
// generated as_json functions append from, once per module.
func (g *Generator) emitJSONHelpers() {
	if g.jsonHelpersEmitted {
		return
	}
	g.jsonHelpersEmitted = true
	g.emitGlobal("@.json.open = private unnamed_addr constant [2 x i8] c\"{\\00\", align 1")
	g.emitGlobal("@.json.close = private unnamed_addr constant [2 x i8] c\"}\\00\", align 1")
	g.emitGlobal("@.json.comma = private unnamed_addr constant [3 x i8] c\", \\00\", align 1")
	g.emitGlobal("@.json.null = private unnamed_addr constant [5 x i8] c\"null\\00\", align 1")
	g.emitGlobal("@.json.quote = private unnamed_addr constant [2 x i8] c\"\\22\\00\", align 1")
	g.emitGlobal("@.json.fmt.d = private unnamed_addr constant [3 x i8] c\"%%d\\00\", align 1")
	g.emitGlobal("@.json.fmt.ld = private unnamed_addr constant [4 x i8] c\"%%ld\\00\", align 1")
	g.emitGlobal("@.json.fmt.f = private unnamed_addr constant [3 x i8] c\"%%f\\00\", align 1")
	g.emitGlobal("@.json.fmt.p = private unnamed_addr constant [3 x i8] c\"%%p\\00\", align 1")
	g.emitGlobal("")
}

// jsonAppendConst strcats the named [n x i8] global onto buf.
func (g *Generator) jsonAppendConst(buf, name string, n int) {
	ptr := g.symbolTable.NextTemp()
	g.emit("%s = getelementptr inbounds [%d x i8], [%d x i8]* %s, i32 0, i32 0", ptr, n, n, name)
	g.emit("call i8* @strcat(i8* %s, i8* %s)", buf, ptr)
}

// emitAsJSON emits @<ClassName>_as_json for a class with at least one
// public, non-derived serializable field. The function mallocs a 4096-byte
// buffer, writes `{` + comma-separated `"field": value` pairs + `}`, and
// returns the buffer; the caller owns it, same as concatenation results.
func (g *Generator) emitAsJSON(class *domain.ClassType) {
	fields := serializableFields(class)
	if len(fields) == 0 {
		return
	}
	g.emitJSONHelpers()

	for _, f := range fields {
		key := fmt.Sprintf("\"%s\": ", f.Name)
		g.emitGlobal("@.json.key.%s.%s = private unnamed_addr constant [%d x i8] c\"%s\\00\", align 1",
			class.Name, f.Name, len(key)+1, escapeForLLVM(key))
	}

	g.indent = 0
	g.emit("define i8* @%s_as_json(%s %%this) {", class.Name, class.LLVM()+"*")
	g.indent++
	g.emit("entry:")
	buf := g.symbolTable.NextTemp()
	g.emit("%s = call i8* @malloc(i64 4096)", buf)
	scratch := g.symbolTable.NextTemp()
	g.emit("%s = alloca [64 x i8]", scratch)
	scratchPtr := g.symbolTable.NextTemp()
	g.emit("%s = getelementptr inbounds [64 x i8], [64 x i8]* %s, i32 0, i32 0", scratchPtr, scratch)
	g.emit("store i8 0, i8* %s", buf)
	g.jsonAppendConst(buf, "@.json.open", 2)

	for i, f := range fields {
		if i > 0 {
			g.jsonAppendConst(buf, "@.json.comma", 3)
		}
		keyName := fmt.Sprintf("@.json.key.%s.%s", class.Name, f.Name)
		g.jsonAppendConst(buf, keyName, len(f.Name)+5)

		slot := g.symbolTable.NextTemp()
		g.emit("%s = getelementptr inbounds %s, %s %%this, i32 0, i32 %d",
			slot, class.LLVM(), class.LLVM()+"*", fieldIndex(class, f.Name))
		val := g.symbolTable.NextTemp()
		g.emit("%s = load %s, %s* %s", val, f.FieldType.LLVM(), f.FieldType.LLVM(), slot)
		g.emitJSONValue(buf, scratchPtr, val, f.FieldType)
	}

	g.jsonAppendConst(buf, "@.json.close", 2)
	g.emit("ret i8* %s", buf)
	g.indent--
	g.emit("}")
	g.emit("")
}

// emitJSONValue appends one field's JSON rendering onto buf: %d/%ld for
// integers, %f for floats, the words true/false for booleans, a quoted
// string for str, and null for a null pointer.
func (g *Generator) emitJSONValue(buf, scratchPtr, val string, t domain.Type) {
	switch tt := t.(type) {
	case *domain.PrimitiveType:
		switch tt.Kind {
		case domain.Boolean:
			trueAddr := g.symbolTable.NextTemp()
			g.emit("%s = getelementptr inbounds [5 x i8], [5 x i8]* %s, i32 0, i32 0", trueAddr, trueLiteralName)
			falseAddr := g.symbolTable.NextTemp()
			g.emit("%s = getelementptr inbounds [6 x i8], [6 x i8]* %s, i32 0, i32 0", falseAddr, falseLiteralName)
			sel := g.symbolTable.NextTemp()
			g.emit("%s = select i1 %s, i8* %s, i8* %s", sel, val, trueAddr, falseAddr)
			g.emit("call i8* @strcat(i8* %s, i8* %s)", buf, sel)
		case domain.Long:
			fmtAddr := g.symbolTable.NextTemp()
			g.emit("%s = getelementptr inbounds [4 x i8], [4 x i8]* @.json.fmt.ld, i32 0, i32 0", fmtAddr)
			g.emit("call i32 (i8*, i8*, ...) @sprintf(i8* %s, i8* %s, i64 %s)", scratchPtr, fmtAddr, val)
			g.emit("call i8* @strcat(i8* %s, i8* %s)", buf, scratchPtr)
		case domain.Float, domain.Double:
			wide := val
			if tt.Kind == domain.Float {
				wide = g.symbolTable.NextTemp()
				g.emit("%s = fpext float %s to double", wide, val)
			}
			fmtAddr := g.symbolTable.NextTemp()
			g.emit("%s = getelementptr inbounds [3 x i8], [3 x i8]* @.json.fmt.f, i32 0, i32 0", fmtAddr)
			g.emit("call i32 (i8*, i8*, ...) @sprintf(i8* %s, i8* %s, double %s)", scratchPtr, fmtAddr, wide)
			g.emit("call i8* @strcat(i8* %s, i8* %s)", buf, scratchPtr)
		default: // byte, short, int print as %d
			wide := val
			if tt.Kind == domain.Byte || tt.Kind == domain.Short {
				wide = g.symbolTable.NextTemp()
				g.emit("%s = sext %s %s to i32", wide, tt.LLVM(), val)
			}
			fmtAddr := g.symbolTable.NextTemp()
			g.emit("%s = getelementptr inbounds [3 x i8], [3 x i8]* @.json.fmt.d, i32 0, i32 0", fmtAddr)
			g.emit("call i32 (i8*, i8*, ...) @sprintf(i8* %s, i8* %s, i32 %s)", scratchPtr, fmtAddr, wide)
			g.emit("call i8* @strcat(i8* %s, i8* %s)", buf, scratchPtr)
		}
	case *domain.StringType, *domain.DStringType:
		isNull := g.symbolTable.NextTemp()
		g.emit("%s = icmp eq %s %s, null", isNull, t.LLVM(), val)
		nullLabel := g.symbolTable.NextLabel("json.null")
		someLabel := g.symbolTable.NextLabel("json.str")
		doneLabel := g.symbolTable.NextLabel("json.done")
		g.emit("br i1 %s, label %%%s, label %%%s", isNull, nullLabel, someLabel)
		g.indent--
		g.emit("%s:", nullLabel)
		g.indent++
		g.jsonAppendConst(buf, "@.json.null", 5)
		g.emit("br label %%%s", doneLabel)
		g.indent--
		g.emit("%s:", someLabel)
		g.indent++
		text := val
		if _, isDStr := tt.(*domain.DStringType); isDStr {
			text = g.symbolTable.NextTemp()
			g.emit("%s = call i8* @DString_get(%%DString* %s)", text, val)
		}
		g.jsonAppendConst(buf, "@.json.quote", 2)
		g.emit("call i8* @strcat(i8* %s, i8* %s)", buf, text)
		g.jsonAppendConst(buf, "@.json.quote", 2)
		g.emit("br label %%%s", doneLabel)
		g.indent--
		g.emit("%s:", doneLabel)
		g.indent++
	default: // pointer-typed fields render as null or the raw address
		isNull := g.symbolTable.NextTemp()
		g.emit("%s = icmp eq %s %s, null", isNull, t.LLVM(), val)
		nullLabel := g.symbolTable.NextLabel("json.null")
		someLabel := g.symbolTable.NextLabel("json.ptr")
		doneLabel := g.symbolTable.NextLabel("json.done")
		g.emit("br i1 %s, label %%%s, label %%%s", isNull, nullLabel, someLabel)
		g.indent--
		g.emit("%s:", nullLabel)
		g.indent++
		g.jsonAppendConst(buf, "@.json.null", 5)
		g.emit("br label %%%s", doneLabel)
		g.indent--
		g.emit("%s:", someLabel)
		g.indent++
		raw := g.symbolTable.NextTemp()
		g.emit("%s = bitcast %s %s to i8*", raw, t.LLVM(), val)
		fmtAddr := g.symbolTable.NextTemp()
		g.emit("%s = getelementptr inbounds [3 x i8], [3 x i8]* @.json.fmt.p, i32 0, i32 0", fmtAddr)
		g.emit("call i32 (i8*, i8*, ...) @sprintf(i8* %s, i8* %s, i8* %s)", scratchPtr, fmtAddr, raw)
		g.emit("call i8* @strcat(i8* %s, i8* %s)", buf, scratchPtr)
		g.emit("br label %%%s", doneLabel)
		g.indent--
		g.emit("%s:", doneLabel)
		g.indent++
	}
}

// genAsJSONCall lowers `obj.as_json()` to a call of the generated
// serializer; the resulting buffer is caller-owned str.
func (g *Generator) genAsJSONCall(class *domain.ClassType, thisVal string) error {
	if len(serializableFields(class)) == 0 {
		g.reportError(fmt.Sprintf("class '%s' has no serializable fields", class.Name), domain.SourceRange{})
		return nil
	}
	reg := g.symbolTable.NextTemp()
	g.emit("%s = call i8* @%s_as_json(%s %s)", reg, class.Name, class.LLVM()+"*", thisVal)
	g.curVal, g.curTyp = reg, &domain.StringType{}
	return nil
}
