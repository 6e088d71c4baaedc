package infrastructure

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// interceptCommands replaces execCommand with one that records each
// invocation and runs "true" instead of the real tool.
func interceptCommands(t *testing.T) *[]string {
	t.Helper()
	var calls []string
	original := execCommand
	execCommand = func(name string, args ...string) *exec.Cmd {
		calls = append(calls, name+" "+strings.Join(args, " "))
		return original("true")
	}
	t.Cleanup(func() { execCommand = original })
	return &calls
}

func TestEmitAssemblyInvokesLLC(t *testing.T) {
	calls := interceptCommands(t)
	backend := NewLLVMBackend()

	require.NoError(t, backend.EmitAssembly("prog.ll", "prog.s"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "llc -filetype=asm -o prog.s prog.ll", (*calls)[0])
}

func TestEmitObjectInvokesLLC(t *testing.T) {
	calls := interceptCommands(t)
	backend := NewLLVMBackend()

	require.NoError(t, backend.EmitObject("prog.ll", "prog.o"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "llc -filetype=obj -o prog.o prog.ll", (*calls)[0])
}

func TestLinkExecutableInvokesClang(t *testing.T) {
	calls := interceptCommands(t)
	backend := NewLLVMBackend()

	require.NoError(t, backend.LinkExecutable("prog.o", "prog"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "clang -o prog prog.o", (*calls)[0])
}

func TestFailedToolSurfacesError(t *testing.T) {
	original := execCommand
	execCommand = func(name string, args ...string) *exec.Cmd {
		return original("false")
	}
	t.Cleanup(func() { execCommand = original })

	backend := NewLLVMBackend()
	err := backend.EmitObject("prog.ll", "prog.o")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llc failed")
}
