// Package infrastructure holds concrete implementations of the
// interfaces package's ports: symbol table, error reporting.
package infrastructure

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sinterlang/sinterc/internal/domain"
)

// ConsoleErrorReporter prints errors and warnings to an io.Writer as they
// are reported, with source-context highlighting when source text has been
// registered via SetSourceContent.
type ConsoleErrorReporter struct {
	errors      []domain.CompilerError
	warnings    []domain.CompilerError
	output      io.Writer
	sourceMap   map[string][]byte
	maxErrors   int
	maxWarnings int
}

func NewConsoleErrorReporter(output io.Writer) *ConsoleErrorReporter {
	if output == nil {
		output = os.Stderr
	}
	return &ConsoleErrorReporter{
		output:      output,
		sourceMap:   make(map[string][]byte),
		maxErrors:   100,
		maxWarnings: 50,
	}
}

func (er *ConsoleErrorReporter) SetSourceContent(filename string, content []byte) {
	er.sourceMap[filename] = content
}

func (er *ConsoleErrorReporter) SetMaxErrors(max int)   { er.maxErrors = max }
func (er *ConsoleErrorReporter) SetMaxWarnings(max int) { er.maxWarnings = max }

func (er *ConsoleErrorReporter) ReportError(err domain.CompilerError) {
	if len(er.errors) < er.maxErrors {
		er.errors = append(er.errors, err)
		er.printError(err, "error")
	}
}

func (er *ConsoleErrorReporter) ReportWarning(warning domain.CompilerError) {
	if len(er.warnings) < er.maxWarnings {
		er.warnings = append(er.warnings, warning)
		er.printError(warning, "warning")
	}
}

func (er *ConsoleErrorReporter) HasErrors() bool   { return len(er.errors) > 0 }
func (er *ConsoleErrorReporter) HasWarnings() bool { return len(er.warnings) > 0 }

func (er *ConsoleErrorReporter) GetErrors() []domain.CompilerError {
	out := make([]domain.CompilerError, len(er.errors))
	copy(out, er.errors)
	return out
}

func (er *ConsoleErrorReporter) GetWarnings() []domain.CompilerError {
	out := make([]domain.CompilerError, len(er.warnings))
	copy(out, er.warnings)
	return out
}

func (er *ConsoleErrorReporter) Clear() {
	er.errors = er.errors[:0]
	er.warnings = er.warnings[:0]
}

func (er *ConsoleErrorReporter) PrintSummary() {
	if !er.HasErrors() && !er.HasWarnings() {
		return
	}
	fmt.Fprintf(er.output, "\n")
	if er.HasErrors() {
		fmt.Fprintf(er.output, "Found %d error(s)\n", len(er.errors))
	}
	if er.HasWarnings() {
		fmt.Fprintf(er.output, "Found %d warning(s)\n", len(er.warnings))
	}
}

func (er *ConsoleErrorReporter) printError(err domain.CompilerError, severity string) {
	fmt.Fprintf(er.output, "%s: %s: %s\n", err.Location.String(), severity, err.Message)

	if content, exists := er.sourceMap[err.Location.Start.Filename]; exists {
		er.printSourceContext(content, err.Location)
	}
	if err.Context != "" {
		fmt.Fprintf(er.output, "  Context: %s\n", err.Context)
	}
	for _, hint := range err.Hints {
		fmt.Fprintf(er.output, "  Hint: %s\n", hint)
	}
	fmt.Fprintf(er.output, "\n")
}

func (er *ConsoleErrorReporter) printSourceContext(content []byte, location domain.SourceRange) {
	lines := strings.Split(string(content), "\n")

	startLine := location.Start.Line - 1
	endLine := location.End.Line - 1
	if startLine < 0 || startLine >= len(lines) {
		return
	}
	if endLine >= len(lines) {
		endLine = len(lines) - 1
	}

	contextStart := max(0, startLine-2)
	contextEnd := min(len(lines)-1, endLine+2)
	lineNumWidth := len(fmt.Sprintf("%d", contextEnd+1))

	for i := contextStart; i <= contextEnd; i++ {
		prefix := fmt.Sprintf("%*d | ", lineNumWidth, i+1)
		fmt.Fprintf(er.output, "%s%s\n", prefix, lines[i])
		if i == startLine {
			indicator := strings.Repeat(" ", len(prefix))
			if location.Start.Column > 0 {
				indicator += strings.Repeat(" ", location.Start.Column-1)
			}
			indicatorLength := 1
			if startLine == endLine && location.End.Column > location.Start.Column {
				indicatorLength = location.End.Column - location.Start.Column
			}
			indicator += strings.Repeat("^", indicatorLength)
			fmt.Fprintf(er.output, "%s\n", indicator)
		}
	}
}

// SortedErrorReporter buffers every report and flushes them to an
// underlying reporter sorted by source location, so multi-pass analysis
// (which may report out of source order) still prints in reading order.
type SortedErrorReporter struct {
	underlying domain.ErrorReporter
	errors     []domain.CompilerError
	warnings   []domain.CompilerError
}

func NewSortedErrorReporter(underlying domain.ErrorReporter) *SortedErrorReporter {
	return &SortedErrorReporter{underlying: underlying}
}

func (ser *SortedErrorReporter) ReportError(err domain.CompilerError) {
	ser.errors = append(ser.errors, err)
}

func (ser *SortedErrorReporter) ReportWarning(warning domain.CompilerError) {
	ser.warnings = append(ser.warnings, warning)
}

func (ser *SortedErrorReporter) HasErrors() bool   { return len(ser.errors) > 0 }
func (ser *SortedErrorReporter) HasWarnings() bool { return len(ser.warnings) > 0 }

func (ser *SortedErrorReporter) GetErrors() []domain.CompilerError {
	out := make([]domain.CompilerError, len(ser.errors))
	copy(out, ser.errors)
	return out
}

func (ser *SortedErrorReporter) GetWarnings() []domain.CompilerError {
	out := make([]domain.CompilerError, len(ser.warnings))
	copy(out, ser.warnings)
	return out
}

func (ser *SortedErrorReporter) Clear() {
	ser.errors = ser.errors[:0]
	ser.warnings = ser.warnings[:0]
}

func (ser *SortedErrorReporter) Flush() {
	sort.Slice(ser.errors, func(i, j int) bool {
		return compareSourceRanges(ser.errors[i].Location, ser.errors[j].Location)
	})
	sort.Slice(ser.warnings, func(i, j int) bool {
		return compareSourceRanges(ser.warnings[i].Location, ser.warnings[j].Location)
	})
	for _, err := range ser.errors {
		ser.underlying.ReportError(err)
	}
	for _, warning := range ser.warnings {
		ser.underlying.ReportWarning(warning)
	}
	ser.Clear()
}

func compareSourceRanges(a, b domain.SourceRange) bool {
	if a.Start.Filename != b.Start.Filename {
		return a.Start.Filename < b.Start.Filename
	}
	if a.Start.Line != b.Start.Line {
		return a.Start.Line < b.Start.Line
	}
	return a.Start.Column < b.Start.Column
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
