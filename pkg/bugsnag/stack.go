// stack.go captures exception info and converts program counters to stack frames.

package bugsnag

import (
	"fmt"
	"path"
	"reflect"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

const maxStackDepth = 64

// ExcInfo is the (type, value, traceback) triple handed to exception hooks.
type ExcInfo struct {
	// Type is the dynamic type of the root cause when Value is an error,
	// otherwise the type of Value.
	Type reflect.Type

	// Value is the reported error or recovered panic value.
	Value any

	// Trace holds return program counters, innermost first.
	Trace []uintptr
}

// NewExcInfo builds an ExcInfo for value with a trace starting at the caller.
func NewExcInfo(value any) ExcInfo {
	return newExcInfo(value, callers(1))
}

func newExcInfo(value any, trace []uintptr) ExcInfo {
	typ := reflect.TypeOf(value)
	if err, ok := value.(error); ok && err != nil {
		typ = reflect.TypeOf(rootCause(err))
	}
	return ExcInfo{Type: typ, Value: value, Trace: trace}
}

// newPanicInfo builds an ExcInfo for a recovered panic value. It must be
// called from the deferred function that recovered.
func newPanicInfo(value any) ExcInfo {
	return newExcInfo(value, trimPanicFrames(callers(1)))
}

// Err returns Value as an error, wrapping non-error panic values.
func (i ExcInfo) Err() error {
	if err, ok := i.Value.(error); ok {
		return err
	}
	return fmt.Errorf("%v", i.Value)
}

// ErrorClass returns the class name reported for this exception.
// Non-error panic values are reported as "panic".
func (i ExcInfo) ErrorClass() string {
	if _, ok := i.Value.(error); ok && i.Type != nil {
		return i.Type.String()
	}
	return "panic"
}

// Message returns the human-readable message for Value.
func (i ExcInfo) Message() string {
	if i.Value == nil {
		return "<nil>"
	}
	if err, ok := i.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", i.Value)
}

// callers returns the program counters starting at the caller of the
// function that invoked callers, skipping skip additional frames.
func callers(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// trimPanicFrames drops the frames above and including runtime.gopanic so a
// trace captured in a deferred recover starts at the panicking function.
func trimPanicFrames(pcs []uintptr) []uintptr {
	start := -1
	for i, pc := range pcs {
		if fn := runtime.FuncForPC(pc - 1); fn != nil && fn.Name() == "runtime.gopanic" {
			start = i + 1
		}
	}
	if start < 0 {
		return pcs
	}
	for start < len(pcs) {
		fn := runtime.FuncForPC(pcs[start] - 1)
		if fn == nil {
			break
		}
		name := fn.Name()
		if !strings.HasPrefix(name, "runtime.panic") && name != "runtime.sigpanic" && !strings.HasPrefix(name, "runtime.goPanic") {
			break
		}
		start++
	}
	return pcs[start:]
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// rootCause unwraps err to its innermost cause.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// errorTrace returns the deepest stack recorded by github.com/pkg/errors in
// err's chain, or nil when none was recorded.
func errorTrace(err error) []uintptr {
	var pcs []uintptr
	for ; err != nil; err = errors.Unwrap(err) {
		tracer, ok := err.(stackTracer)
		if !ok {
			continue
		}
		st := tracer.StackTrace()
		pcs = make([]uintptr, len(st))
		for i, f := range st {
			pcs[i] = uintptr(f)
		}
	}
	return pcs
}

// stackFrames converts program counters to frames, marking frames that belong
// to projectPackages as in-project.
func stackFrames(pcs []uintptr, projectPackages []string) []StackFrame {
	if len(pcs) == 0 {
		return []StackFrame{}
	}

	frames := make([]StackFrame, 0, len(pcs))
	iter := runtime.CallersFrames(pcs)
	for {
		frame, more := iter.Next()
		if frame.Function != "" {
			frames = append(frames, StackFrame{
				File:       frame.File,
				LineNumber: frame.Line,
				Method:     frame.Function,
				InProject:  inProject(packageName(frame.Function), projectPackages),
			})
		}
		if !more {
			break
		}
	}
	return frames
}

// packageName extracts the import path from a fully qualified function name
// such as "github.com/org/repo/pkg.(*T).Method".
func packageName(function string) string {
	dir, name := "", function
	if i := strings.LastIndex(function, "/"); i >= 0 {
		dir, name = function[:i+1], function[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	return dir + name
}

func inProject(pkg string, patterns []string) bool {
	for _, pattern := range patterns {
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			if pkg == prefix || strings.HasPrefix(pkg, prefix+"/") {
				return true
			}
			continue
		}
		if matched, _ := path.Match(pattern, pkg); matched {
			return true
		}
	}
	return false
}
