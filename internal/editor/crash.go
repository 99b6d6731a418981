package editor

import (
	"fmt"
	"strings"

	"github.com/chengdagong/ue-mcp-sub001/internal/logs"
)

// crashIndicators are log substrings that identify a crash regardless of
// the reported exit code. The editor sometimes exits 0 after writing a
// fatal error, so the log scan runs even on clean exit codes.
var crashIndicators = []string{
	"Fatal error:",
	"Fatal error!",
	"Access violation",
	"EXCEPTION_ACCESS_VIOLATION",
	"SIGSEGV",
	"SIGABRT",
	"LowLevelFatalError",
	"Assertion failed:",
	"Unhandled Exception",
	"=== Critical error: ===",
	"AppCrashed",
	"begin: stack for UAT",
}

// ntStatusNames maps Windows NTSTATUS crash codes, as seen in the signed
// 32-bit exit code the OS reports, to readable names.
var ntStatusNames = map[int64]string{
	-1073741819: "STATUS_ACCESS_VIOLATION",
	-1073741571: "STATUS_STACK_OVERFLOW",
	-1073741795: "STATUS_ILLEGAL_INSTRUCTION",
	-1073741676: "STATUS_INTEGER_DIVIDE_BY_ZERO",
	-1073740791: "STATUS_STACK_BUFFER_OVERRUN",
	-1073740940: "STATUS_HEAP_CORRUPTION",
	-1073741515: "STATUS_DLL_NOT_FOUND",
}

// logScanBytes bounds the crash scan to the end of the log; a long session
// log can reach hundreds of megabytes.
const logScanBytes = 100 * 1024

// ExitVerdict classifies one editor exit.
type ExitVerdict struct {
	Crashed   bool
	ExitCode  int
	Reason    string // human-readable classification
	Indicator string // matched log substring, "" when exit code alone decided
}

// ClassifyExit combines exit-code analysis with a log-tail scan. logPath
// may be "" when no log was recorded.
func ClassifyExit(exitCode int, logPath string) ExitVerdict {
	v := ExitVerdict{ExitCode: exitCode}

	if name, ok := ntStatusNames[int64(exitCode)]; ok {
		v.Crashed = true
		v.Reason = name
	} else if exitCode < 0 {
		// POSIX convention from os/exec: -N means killed by signal N.
		v.Crashed = true
		v.Reason = fmt.Sprintf("terminated by signal %d", -exitCode)
	}

	if logPath != "" {
		if ind, found := scanLogForCrash(logPath); found {
			v.Crashed = true
			v.Indicator = ind
			if v.Reason == "" {
				v.Reason = fmt.Sprintf("crash indicator in log: %q", ind)
			}
		}
	}

	if !v.Crashed && exitCode != 0 {
		v.Reason = fmt.Sprintf("non-zero exit code %d", exitCode)
	}
	return v
}

func scanLogForCrash(logPath string) (string, bool) {
	tail, err := logs.ReadTailBytes(logPath, logScanBytes)
	if err != nil {
		return "", false
	}
	return logs.ContainsAny(string(tail), crashIndicators)
}

// LineIndicatesCrash checks a single log line against the indicator list,
// for live detection while tailing.
func LineIndicatesCrash(line string) (string, bool) {
	for _, ind := range crashIndicators {
		if strings.Contains(line, ind) {
			return ind, true
		}
	}
	return "", false
}
