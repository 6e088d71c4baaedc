package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinterlang/sinterc/internal/domain"
	"github.com/sinterlang/sinterc/internal/interfaces"
)

func TestDeclareSymbolRejectsCollisionInSameScope(t *testing.T) {
	st := NewDefaultSymbolTable()
	_, err := st.DeclareSymbol("x", &domain.PrimitiveType{Kind: domain.Int}, interfaces.VariableSymbol, domain.SourceRange{})
	require.NoError(t, err)

	_, err = st.DeclareSymbol("x", &domain.PrimitiveType{Kind: domain.Int}, interfaces.VariableSymbol, domain.SourceRange{})
	assert.Error(t, err)
}

func TestLookupSymbolWalksOutward(t *testing.T) {
	st := NewDefaultSymbolTable()
	_, err := st.DeclareSymbol("outer", &domain.PrimitiveType{Kind: domain.Int}, interfaces.VariableSymbol, domain.SourceRange{})
	require.NoError(t, err)

	st.EnterScope("inner")
	_, found := st.LookupSymbol("outer")
	assert.True(t, found, "resolution should walk outward to the parent scope")

	st.ExitScope()
	_, found = st.LookupSymbol("outer")
	assert.True(t, found)
}

func TestShadowingIsAllowedAcrossScopes(t *testing.T) {
	st := NewDefaultSymbolTable()
	_, err := st.DeclareSymbol("x", &domain.PrimitiveType{Kind: domain.Int}, interfaces.VariableSymbol, domain.SourceRange{})
	require.NoError(t, err)

	st.EnterScope("inner")
	_, err = st.DeclareSymbol("x", &domain.PrimitiveType{Kind: domain.Long}, interfaces.VariableSymbol, domain.SourceRange{})
	assert.NoError(t, err, "shadowing an outer binding in a child scope is allowed")
}

func TestStringPoolInternsEachValueOnce(t *testing.T) {
	st := NewDefaultSymbolTable()
	n1 := st.InternString("hello")
	n2 := st.InternString("hello")
	n3 := st.InternString("world")

	assert.Equal(t, n1, n2, "the same literal value must intern to the same name")
	assert.NotEqual(t, n1, n3)
	assert.Len(t, st.StringPool(), 2)
}

func TestTempAndLabelCountersAreMonotone(t *testing.T) {
	st := NewDefaultSymbolTable()
	t1 := st.NextTemp()
	t2 := st.NextTemp()
	assert.NotEqual(t, t1, t2)

	l1 := st.NextLabel("if.then")
	l2 := st.NextLabel("if.then")
	assert.NotEqual(t, l1, l2)
}
