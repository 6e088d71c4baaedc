package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointerAndArrayInterningIsIdempotent(t *testing.T) {
	reg := NewDefaultTypeRegistry()
	intType, _ := reg.GetBuiltin("int")

	p1 := reg.PointerTo(intType)
	p2 := reg.PointerTo(intType)
	assert.Same(t, p1, p2, "requesting the same pointer twice should return the same interned type")

	a1 := reg.ArrayOf(intType, 10)
	a2 := reg.ArrayOf(intType, 10)
	assert.Same(t, a1, a2)

	a3 := reg.ArrayOf(intType, 11)
	assert.NotSame(t, a1, a3)
}

func TestFieldOffsetAlignmentInvariant(t *testing.T) {
	reg := NewDefaultTypeRegistry()
	byteType, _ := reg.GetBuiltin("byte")
	longType, _ := reg.GetBuiltin("long")

	c := NewClassType("Widget")
	c.AddField(&FieldInfo{Name: "flag", FieldType: byteType})
	c.AddField(&FieldInfo{Name: "count", FieldType: longType})

	flag := c.Fields["flag"]
	count := c.Fields["count"]

	require.GreaterOrEqual(t, flag.Offset, 8, "offset 0 is reserved for the vtable pointer slot")
	assert.Zero(t, flag.Offset%flag.FieldType.Size())
	assert.GreaterOrEqual(t, count.Offset, flag.Offset+flag.FieldType.Size())
	assert.Zero(t, count.Offset%count.FieldType.Size())
}

func TestVtablePrefixInheritance(t *testing.T) {
	reg := NewDefaultTypeRegistry()
	intType, _ := reg.GetBuiltin("int")

	parent := NewClassType("A")
	parent.AddMethod(&MethodInfo{Name: "f", ReturnType: intType})
	require.NoError(t, reg.RegisterClass(parent))

	child := NewClassType("B")
	child.InheritFrom(parent)
	override := &MethodInfo{Name: "f", ReturnType: intType}
	child.OverrideMethod(override, parent.Methods["f"].VTableIndex)
	require.NoError(t, reg.RegisterClass(child))

	require.Len(t, child.Vtable, len(parent.Vtable))
	for i, m := range parent.Vtable {
		assert.Equal(t, m.Name, child.Vtable[i].Name)
	}
	assert.Same(t, override, child.Vtable[0])
}

func TestCompatibilityRules(t *testing.T) {
	reg := NewDefaultTypeRegistry()
	intType, _ := reg.GetBuiltin("int")
	longType, _ := reg.GetBuiltin("long")
	strType, _ := reg.GetBuiltin("str")
	dstrType, _ := reg.GetBuiltin("d_str")
	nullType, _ := reg.GetBuiltin("null")

	parent := NewClassType("A")
	child := NewClassType("B")
	child.InheritFrom(parent)
	require.NoError(t, reg.RegisterClass(parent))
	require.NoError(t, reg.RegisterClass(child))

	assert.True(t, IsCompatible(reg, intType, longType), "numeric types widen mutually")
	assert.True(t, IsCompatible(reg, strType, dstrType), "d_str is compatible with str")
	assert.True(t, IsCompatible(reg, reg.PointerTo(parent), nullType), "null is compatible with any pointer")
	assert.True(t, IsCompatible(reg, reg.PointerTo(parent), reg.PointerTo(child)),
		"subclass pointer is compatible with superclass pointer")
	assert.False(t, IsCompatible(reg, reg.PointerTo(child), reg.PointerTo(parent)),
		"superclass pointer is not compatible with subclass pointer")
}

func TestWidenedNumeric(t *testing.T) {
	reg := NewDefaultTypeRegistry()
	byteType, _ := reg.GetBuiltin("byte")
	doubleType, _ := reg.GetBuiltin("double")

	w := WidenedNumeric(byteType, doubleType)
	assert.True(t, w.Equals(doubleType))
}
