// Package domain contains the type system definitions for Sinter.
package domain

import (
	"fmt"
	"strings"
)

// Type is a closed sum of the kinds the Sinter type system recognizes:
// primitives, void, null, string, d-string, pointer-to, array-of, class,
// interface, and function-signature. Every Type exposes a name, an
// LLVM-IR textual form, and a byte size.
type Type interface {
	String() string
	Equals(other Type) bool
	LLVM() string
	Size() int
}

// PrimitiveKind enumerates Sinter's scalar kinds, in widening order for the
// numeric subset (Byte < Short < Int < Long < Float < Double).
type PrimitiveKind int

const (
	Byte PrimitiveKind = iota
	Short
	Int
	Long
	Float
	Double
	Boolean
)

var primitiveNames = [...]string{"byte", "short", "int", "long", "float", "double", "boolean"}
var primitiveLLVM = [...]string{"i8", "i16", "i32", "i64", "float", "double", "i1"}
var primitiveSizes = [...]int{1, 2, 4, 8, 4, 8, 1}

// PrimitiveType is a scalar numeric or boolean type.
type PrimitiveType struct {
	Kind PrimitiveKind
}

func (t *PrimitiveType) String() string { return primitiveNames[t.Kind] }
func (t *PrimitiveType) LLVM() string   { return primitiveLLVM[t.Kind] }
func (t *PrimitiveType) Size() int      { return primitiveSizes[t.Kind] }
func (t *PrimitiveType) Equals(other Type) bool {
	o, ok := other.(*PrimitiveType)
	return ok && o.Kind == t.Kind
}

func (t *PrimitiveType) IsNumeric() bool { return t.Kind != Boolean }

// VoidType is the absence of a value (function return position only).
type VoidType struct{}

func (t *VoidType) String() string         { return "void" }
func (t *VoidType) LLVM() string           { return "void" }
func (t *VoidType) Size() int              { return 0 }
func (t *VoidType) Equals(other Type) bool { _, ok := other.(*VoidType); return ok }

// NullType is the type of the `null` literal; compatible with any pointer.
type NullType struct{}

func (t *NullType) String() string         { return "null" }
func (t *NullType) LLVM() string           { return "i8*" }
func (t *NullType) Size() int              { return 8 }
func (t *NullType) Equals(other Type) bool { _, ok := other.(*NullType); return ok }

// StringType is a plain, fixed-at-creation string.
type StringType struct{}

func (t *StringType) String() string         { return "str" }
func (t *StringType) LLVM() string           { return "i8*" }
func (t *StringType) Size() int              { return 8 }
func (t *StringType) Equals(other Type) bool { _, ok := other.(*StringType); return ok }

// DStringType is a D-string: it behaves as str (compatible with it) but
// lowers to a pointer to the DString runtime struct.
type DStringType struct{}

func (t *DStringType) String() string         { return "d_str" }
func (t *DStringType) LLVM() string            { return "%DString*" }
func (t *DStringType) Size() int               { return 8 }
func (t *DStringType) Equals(other Type) bool  { _, ok := other.(*DStringType); return ok }

// PointerType is pointer-to(T). Pointer types are interned by the name of
// their pointee via TypeRegistry.PointerTo.
type PointerType struct {
	Pointee Type
}

func (t *PointerType) String() string { return t.Pointee.String() + "*" }
func (t *PointerType) LLVM() string   { return t.Pointee.LLVM() + "*" }
func (t *PointerType) Size() int      { return 8 }
func (t *PointerType) Equals(other Type) bool {
	o, ok := other.(*PointerType)
	return ok && t.Pointee.Equals(o.Pointee)
}

// ArrayType is array-of(T, optional size). Size -1 means unsized (parsed
// but not bounds-checked at compile time).
type ArrayType struct {
	Element Type
	Size_   int
}

func (t *ArrayType) String() string {
	if t.Size_ < 0 {
		return t.Element.String() + "[]"
	}
	return fmt.Sprintf("%s[%d]", t.Element.String(), t.Size_)
}
func (t *ArrayType) LLVM() string { return t.Element.LLVM() + "*" }
func (t *ArrayType) Size() int    { return 8 }
func (t *ArrayType) Equals(other Type) bool {
	o, ok := other.(*ArrayType)
	return ok && t.Size_ == o.Size_ && t.Element.Equals(o.Element)
}

// InvalidType marks an expression whose type could not be determined
// because an earlier semantic error already fired; it suppresses
// cascading type-check errors on uses of that expression.
type InvalidType struct{ Reason string }

func (t *InvalidType) String() string         { return "<invalid>" }
func (t *InvalidType) LLVM() string           { return "i8*" }
func (t *InvalidType) Size() int              { return 0 }
func (t *InvalidType) Equals(other Type) bool { _, ok := other.(*InvalidType); return ok }

// FieldInfo describes one field of a ClassType.
type FieldInfo struct {
	Name         string
	FieldType    Type
	Offset       int
	Const        bool
	Visibility   string // "private" | "protected" | "public"
	ReadOnly     bool
	WriteOnly    bool
	Derived      bool
	Serializable bool
	Initializer  Node // optional; nil if absent
}

// MethodInfo describes one method of a ClassType.
type MethodInfo struct {
	Name        string
	ReturnType  Type
	ParamTypes  []Type
	ParamNames  []string
	Static      bool
	Visibility  string
	VTableIndex int // -1 if static
}

// ClassType is a class declaration's resolved shape. Fields preserve
// insertion (layout) order; the vtable is an ordered list of non-static
// methods with stable indices. ParentName is resolved through the owning
// TypeRegistry rather than held as a direct pointer, so subclasses refer to
// their parent by stable name instead of a cyclic object reference.
type ClassType struct {
	Name        string
	ParentName  string // "" if no parent
	Interfaces  []string
	Fields      map[string]*FieldInfo
	FieldOrder  []string
	Methods     map[string]*MethodInfo
	MethodOrder []string
	Vtable      []*MethodInfo // ordered, stable indices == VTableIndex
	StructSize  int
}

func NewClassType(name string) *ClassType {
	return &ClassType{
		Name:    name,
		Fields:  make(map[string]*FieldInfo),
		Methods: make(map[string]*MethodInfo),
		// offset 0 is reserved for the vtable pointer slot every class carries
		StructSize: 8,
	}
}

func (t *ClassType) String() string { return t.Name }
func (t *ClassType) LLVM() string   { return "%class." + t.Name }
func (t *ClassType) Size() int      { return t.StructSize }
func (t *ClassType) Equals(other Type) bool {
	o, ok := other.(*ClassType)
	return ok && t.Name == o.Name
}

// AddField assigns the field an aligned offset at or beyond current
// StructSize and grows StructSize accordingly.
func (t *ClassType) AddField(f *FieldInfo) {
	align := f.FieldType.Size()
	if align < 1 {
		align = 1
	}
	offset := t.StructSize
	if rem := offset % align; rem != 0 {
		offset += align - rem
	}
	f.Offset = offset
	t.Fields[f.Name] = f
	t.FieldOrder = append(t.FieldOrder, f.Name)
	t.StructSize = offset + f.FieldType.Size()
}

// AddMethod registers a method; non-static methods are appended to the
// vtable and their VTableIndex set to the new slot.
func (t *ClassType) AddMethod(m *MethodInfo) {
	if !m.Static {
		m.VTableIndex = len(t.Vtable)
		t.Vtable = append(t.Vtable, m)
	} else {
		m.VTableIndex = -1
	}
	t.Methods[m.Name] = m
	t.MethodOrder = append(t.MethodOrder, m.Name)
}

// OverrideMethod replaces the vtable slot at the parent's index rather than
// appending a new one, preserving the prefix-compatibility invariant.
func (t *ClassType) OverrideMethod(m *MethodInfo, index int) {
	m.VTableIndex = index
	t.Vtable[index] = m
	t.Methods[m.Name] = m
	t.MethodOrder = append(t.MethodOrder, m.Name)
}

// InheritFrom copies the parent's field map (preserving order) and seeds
// this class's vtable with the parent's vtable, as they stand at the call;
// member analysis calls it once the parent's own members are in place.
// Must run before any of this class's own fields/methods are added.
func (t *ClassType) InheritFrom(parent *ClassType) {
	t.ParentName = parent.Name
	for _, name := range parent.FieldOrder {
		pf := parent.Fields[name]
		cf := *pf
		t.Fields[name] = &cf
		t.FieldOrder = append(t.FieldOrder, name)
	}
	t.StructSize = parent.StructSize
	t.Vtable = append(t.Vtable, parent.Vtable...)
	for _, m := range parent.Vtable {
		t.Methods[m.Name] = m
	}
}

// InterfaceType declares method signatures without bodies.
type InterfaceType struct {
	Name    string
	Methods map[string]*MethodInfo
}

func (t *InterfaceType) String() string         { return t.Name }
func (t *InterfaceType) LLVM() string           { return "i8*" }
func (t *InterfaceType) Size() int              { return 8 }
func (t *InterfaceType) Equals(other Type) bool { o, ok := other.(*InterfaceType); return ok && o.Name == t.Name }

// FunctionType is a function's signature type, e.g. the type of
// `ClassName.new` or a free function reference.
type FunctionType struct {
	ParamTypes []Type
	ReturnType Type
}

func (t *FunctionType) String() string {
	parts := make([]string, len(t.ParamTypes))
	for i, p := range t.ParamTypes {
		parts[i] = p.String()
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(parts, ", "), t.ReturnType.String())
}
func (t *FunctionType) LLVM() string { return t.ReturnType.LLVM() + " (...)*" }
func (t *FunctionType) Size() int    { return 8 }
func (t *FunctionType) Equals(other Type) bool {
	o, ok := other.(*FunctionType)
	if !ok || len(t.ParamTypes) != len(o.ParamTypes) {
		return false
	}
	for i, p := range t.ParamTypes {
		if !p.Equals(o.ParamTypes[i]) {
			return false
		}
	}
	return t.ReturnType.Equals(o.ReturnType)
}

// TypeRegistry interns every type reachable by name during compilation and
// seeds the builtins. pointer-to/array-of construction is idempotent.
type TypeRegistry interface {
	RegisterClass(c *ClassType) error
	RegisterInterface(i *InterfaceType) error
	GetClass(name string) (*ClassType, bool)
	GetInterface(name string) (*InterfaceType, bool)
	GetBuiltin(name string) (Type, bool)
	PointerTo(pointee Type) *PointerType
	ArrayOf(elem Type, size int) *ArrayType
	AllClasses() []*ClassType
}

// DefaultTypeRegistry is the registry implementation; grows monotonically
// during semantic analysis and is read-only during code generation.
type DefaultTypeRegistry struct {
	builtins   map[string]Type
	classes    map[string]*ClassType
	classOrder []string
	interfaces map[string]*InterfaceType
	pointers   map[string]*PointerType
	arrays     map[string]*ArrayType
}

func NewDefaultTypeRegistry() *DefaultTypeRegistry {
	r := &DefaultTypeRegistry{
		builtins:   make(map[string]Type),
		classes:    make(map[string]*ClassType),
		interfaces: make(map[string]*InterfaceType),
		pointers:   make(map[string]*PointerType),
		arrays:     make(map[string]*ArrayType),
	}
	r.builtins["byte"] = &PrimitiveType{Kind: Byte}
	r.builtins["short"] = &PrimitiveType{Kind: Short}
	r.builtins["int"] = &PrimitiveType{Kind: Int}
	r.builtins["long"] = &PrimitiveType{Kind: Long}
	r.builtins["float"] = &PrimitiveType{Kind: Float}
	r.builtins["double"] = &PrimitiveType{Kind: Double}
	r.builtins["boolean"] = &PrimitiveType{Kind: Boolean}
	r.builtins["void"] = &VoidType{}
	r.builtins["null"] = &NullType{}
	r.builtins["str"] = &StringType{}
	r.builtins["d_str"] = &DStringType{}
	return r
}

func NewTypeRegistry() TypeRegistry { return NewDefaultTypeRegistry() }

func (r *DefaultTypeRegistry) RegisterClass(c *ClassType) error {
	if _, exists := r.classes[c.Name]; exists {
		return fmt.Errorf("type '%s' already registered", c.Name)
	}
	r.classes[c.Name] = c
	r.classOrder = append(r.classOrder, c.Name)
	return nil
}

func (r *DefaultTypeRegistry) RegisterInterface(i *InterfaceType) error {
	if _, exists := r.interfaces[i.Name]; exists {
		return fmt.Errorf("type '%s' already registered", i.Name)
	}
	r.interfaces[i.Name] = i
	return nil
}

func (r *DefaultTypeRegistry) GetClass(name string) (*ClassType, bool) {
	c, ok := r.classes[name]
	return c, ok
}

func (r *DefaultTypeRegistry) GetInterface(name string) (*InterfaceType, bool) {
	i, ok := r.interfaces[name]
	return i, ok
}

func (r *DefaultTypeRegistry) GetBuiltin(name string) (Type, bool) {
	t, ok := r.builtins[name]
	return t, ok
}

func (r *DefaultTypeRegistry) PointerTo(pointee Type) *PointerType {
	key := pointee.String()
	if p, ok := r.pointers[key]; ok {
		return p
	}
	p := &PointerType{Pointee: pointee}
	r.pointers[key] = p
	return p
}

func (r *DefaultTypeRegistry) ArrayOf(elem Type, size int) *ArrayType {
	key := fmt.Sprintf("%s[%d]", elem.String(), size)
	if a, ok := r.arrays[key]; ok {
		return a
	}
	a := &ArrayType{Element: elem, Size_: size}
	r.arrays[key] = a
	return a
}

func (r *DefaultTypeRegistry) AllClasses() []*ClassType {
	out := make([]*ClassType, 0, len(r.classOrder))
	for _, n := range r.classOrder {
		out = append(out, r.classes[n])
	}
	return out
}

// IsNumeric reports whether t is one of the numeric primitives (excludes
// boolean).
func IsNumeric(t Type) bool {
	p, ok := t.(*PrimitiveType)
	return ok && p.IsNumeric()
}

func numericRank(t Type) int {
	p, ok := t.(*PrimitiveType)
	if !ok {
		return -1
	}
	switch p.Kind {
	case Byte:
		return 0
	case Short:
		return 1
	case Int:
		return 2
	case Long:
		return 3
	case Float:
		return 4
	case Double:
		return 5
	}
	return -1
}

// WidenedNumeric returns the wider of two numeric types, per the byte <
// short < int < long < float < double order, or nil if either isn't numeric.
func WidenedNumeric(a, b Type) Type {
	ra, rb := numericRank(a), numericRank(b)
	if ra < 0 || rb < 0 {
		return nil
	}
	if ra >= rb {
		return a
	}
	return b
}

// IsCompatible reports whether a value of type value may flow into a slot
// of type target: equal types are
// compatible; null is compatible with any pointer; d_str is compatible
// with str; numeric types are mutually compatible via implicit widening; a
// subclass pointer is compatible with a superclass pointer via transitive
// parent-chain walk.
func IsCompatible(registry TypeRegistry, target, value Type) bool {
	if target.Equals(value) {
		return true
	}
	if _, ok := target.(*InvalidType); ok {
		return true
	}
	if _, ok := value.(*InvalidType); ok {
		return true
	}
	if _, isPtr := target.(*PointerType); isPtr {
		if _, isNull := value.(*NullType); isNull {
			return true
		}
	}
	if _, isStr := target.(*StringType); isStr {
		if _, isDStr := value.(*DStringType); isDStr {
			return true
		}
	}
	if IsNumeric(target) && IsNumeric(value) {
		return true
	}
	if ta, ok := target.(*ArrayType); ok {
		if va, ok := value.(*ArrayType); ok && ta.Element.Equals(va.Element) {
			if ta.Size_ < 0 || va.Size_ < 0 || ta.Size_ == va.Size_ {
				return true
			}
		}
	}
	tp, tok := target.(*PointerType)
	vp, vok := value.(*PointerType)
	if tok && vok {
		if tc, ok := tp.Pointee.(*ClassType); ok {
			if vc, ok := vp.Pointee.(*ClassType); ok {
				return isSubclassOf(registry, vc, tc.Name)
			}
		}
	}
	return false
}

func isSubclassOf(registry TypeRegistry, c *ClassType, ancestorName string) bool {
	for cur := c; cur != nil; {
		if cur.Name == ancestorName {
			return true
		}
		if cur.ParentName == "" {
			return false
		}
		parent, ok := registry.GetClass(cur.ParentName)
		if !ok {
			return false
		}
		cur = parent
	}
	return false
}
