package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// StackFrame contains all necessary information about a single line in a
// callstack.
type StackFrame struct {
	File           string
	LineNumber     int
	Name           string
	Package        string
	ProgramCounter uintptr
}

// NewStackFrame populates a stack frame object from the program counter.
func NewStackFrame(pc uintptr) StackFrame {
	frame := StackFrame{ProgramCounter: pc}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return frame
	}
	frame.Package, frame.Name = packageAndName(fn)

	// pc - 1 because the program counters we use are usually return addresses,
	// and we want the line that corresponds to the function call.
	frame.File, frame.LineNumber = fn.FileLine(pc - 1)
	return frame
}

// String returns the stack frame formatted in the same way as go does in
// runtime/debug.Stack().
func (frame *StackFrame) String() string {
	return fmt.Sprintf("%s:%d (0x%x)\n\t%s\n", frame.File, frame.LineNumber, frame.ProgramCounter, frame.Name)
}

func packageAndName(fn *runtime.Func) (string, string) {
	name := fn.Name()
	pkg := ""

	// The name includes the path name to the package, which is unnecessary
	// since the file name is already included. Plus, it has center dots.
	// That is, we see
	//	runtime/debug.*T·ptrmethod
	// and want
	//	*T.ptrmethod
	if lastSlash := strings.LastIndex(name, "/"); lastSlash >= 0 {
		pkg += name[:lastSlash] + "/"
		name = name[lastSlash+1:]
	}
	if period := strings.Index(name, "."); period >= 0 {
		pkg += name[:period]
		name = name[period+1:]
	}

	name = strings.ReplaceAll(name, "·", ".")
	return pkg, name
}
