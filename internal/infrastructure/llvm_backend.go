package infrastructure

import (
	"fmt"
	"io"
	"os/exec"
)

// execCommand is swapped out by tests to observe tool invocations without
// requiring llc/clang on the machine running them.
var execCommand = exec.Command

// LLVMBackend lowers emitted IR text to assembly, object code, or a linked
// executable by driving the external llc and clang tools.
type LLVMBackend struct {
	LLCPath   string
	ClangPath string
	Verbose   bool
	Log       io.Writer
}

func NewLLVMBackend() *LLVMBackend {
	return &LLVMBackend{
		LLCPath:   "llc",
		ClangPath: "clang",
	}
}

// EmitAssembly runs llc on irPath, producing a .s file at asmPath.
func (b *LLVMBackend) EmitAssembly(irPath, asmPath string) error {
	return b.run(b.LLCPath, "-filetype=asm", "-o", asmPath, irPath)
}

// EmitObject runs llc on irPath, producing a .o file at objPath.
func (b *LLVMBackend) EmitObject(irPath, objPath string) error {
	return b.run(b.LLCPath, "-filetype=obj", "-o", objPath, irPath)
}

// LinkExecutable links objPath into an executable at exePath with clang,
// which also pulls in the C runtime the generated IR declares against.
func (b *LLVMBackend) LinkExecutable(objPath, exePath string) error {
	return b.run(b.ClangPath, "-o", exePath, objPath)
}

func (b *LLVMBackend) run(name string, args ...string) error {
	if b.Verbose && b.Log != nil {
		fmt.Fprintf(b.Log, "+ %s", name)
		for _, a := range args {
			fmt.Fprintf(b.Log, " %s", a)
		}
		fmt.Fprintln(b.Log)
	}
	cmd := execCommand(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 && b.Log != nil {
			b.Log.Write(out)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}
