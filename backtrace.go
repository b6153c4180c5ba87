package ttrace

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/go-stack/stack"
)

// Backtrace is a captured call stack, innermost call first.
type Backtrace []Call

// Call is a single frame of a backtrace.
type Call struct {
	Function string `json:"function"`
	FileLine string `json:"fileline"`
}

func (bt Backtrace) String() string {
	var sb strings.Builder
	for i, c := range bt {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(c.Function)
		sb.WriteString(" ")
		sb.WriteString(c.FileLine)
	}
	return sb.String()
}

// modulePath is the import path prefix of the packages whose frames are
// removed from captured backtraces.
const modulePath = "github.com/peterbourgon/ttrace"

// CaptureBacktrace returns the call stack of the calling goroutine. Runtime
// frames, and frames from the tracing packages themselves, are omitted, so the
// innermost call is the instrumented code that recorded the segment.
func CaptureBacktrace() Backtrace {
	var bt Backtrace
	for _, c := range stack.Trace().TrimRuntime() {
		fr := c.Frame()
		if isTracerFrame(&fr) {
			continue
		}
		bt = append(bt, Call{
			Function: funcNameOnly(fr.Function),
			FileLine: pkgFilePath(&fr) + ":" + strconv.Itoa(fr.Line),
		})
	}
	return bt
}

func isTracerFrame(fr *runtime.Frame) bool {
	if strings.HasSuffix(fr.File, "_test.go") {
		return false
	}
	rest, ok := strings.CutPrefix(fr.Function, modulePath)
	if !ok {
		return false
	}
	if strings.HasPrefix(rest, ".") {
		return true
	}
	// Subpackages, but not cmd/... or other modules sharing the prefix.
	return strings.HasPrefix(rest, "/tt") || strings.HasPrefix(rest, "/internal/")
}

func pkgFilePath(frame *runtime.Frame) string {
	pre := pkgPrefix(frame.Function)
	post := pathSuffix(frame.File)
	if pre == "" {
		return post
	}
	return pre + "/" + post
}

func pkgPrefix(funcName string) string {
	const pathSep = "/"
	end := strings.LastIndex(funcName, pathSep)
	if end == -1 {
		return ""
	}
	return funcName[:end]
}

func pathSuffix(path string) string {
	const pathSep = "/"
	lastSep := strings.LastIndex(path, pathSep)
	if lastSep == -1 {
		return path
	}
	return path[strings.LastIndex(path[:lastSep], pathSep)+1:]
}

func funcNameOnly(name string) string {
	const pathSep = "/"
	if i := strings.LastIndex(name, pathSep); i != -1 {
		name = name[i+len(pathSep):]
	}
	const pkgSep = "."
	if i := strings.Index(name, pkgSep); i != -1 {
		name = name[i+len(pkgSep):]
	}
	return name
}
