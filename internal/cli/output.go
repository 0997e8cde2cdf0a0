package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/shaiso/sasflow/internal/engine"
)

// Output formats CLI output. Data and status lines go to stdout, messages
// to stderr. Status lines may be printed from several goroutines.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
	mu       sync.Mutex

	green  *color.Color
	red    *color.Color
	yellow *color.Color
}

// NewOutput creates an Output on stdout/stderr. With jsonMode data is
// printed as JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo creates an Output on the given writers.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
		green:    color.New(color.FgGreen),
		red:      color.New(color.FgRed),
		yellow:   color.New(color.FgYellow),
	}
}

// Print prints a table or JSON depending on the mode.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table prints rows aligned with tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON prints v as indented JSON.
func (o *Output) JSON(v any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success prints a message to stderr.
func (o *Output) Success(msg string) {
	o.line(o.errW, o.green, msg)
}

// Warn prints a warning to stderr.
func (o *Output) Warn(msg string) {
	o.line(o.errW, o.yellow, msg)
}

// Error prints an error to stderr.
func (o *Output) Error(msg string) {
	o.line(o.errW, o.red, "Error: "+msg)
}

// --- status lines ---

// ExecutingFlow announces a run.
func (o *Output) ExecutingFlow(target, appLoc string) {
	o.status(nil, fmt.Sprintf("Executing flow for '%s' target with app location '%s':", target, appLoc))
}

// JobCompleted reports a job that settled.
func (o *Output) JobCompleted(flow, location string) {
	o.status(o.green, fmt.Sprintf("'%s' flow's job located at: '%s' completed.", flow, location))
}

// JobFailed reports a job whose submission failed.
func (o *Output) JobFailed(flow, location string, err error) {
	msg := fmt.Sprintf("An error has occurred when executing '%s' flow's job located at: '%s'.", flow, location)
	if err != nil {
		msg += "\n  " + err.Error()
	}
	o.status(o.red, msg)
}

// FlowSucceeded reports a flow whose jobs all succeeded.
func (o *Output) FlowSucceeded(flow string) {
	o.status(o.green, fmt.Sprintf("'%s' flow completed successfully!", flow))
}

// FlowFailed reports a flow with a failed job.
func (o *Output) FlowFailed(flow string) {
	o.status(o.red, fmt.Sprintf("'%s' flow failed!", flow))
}

// ValidationFailed reports a flow rejected before execution.
func (o *Output) ValidationFailed(issue *engine.ValidationError) {
	o.status(o.red, issue.Message)
}

// status prints a status line unless JSON mode is on.
func (o *Output) status(c *color.Color, msg string) {
	if o.jsonMode {
		return
	}
	o.line(o.w, c, msg)
}

func (o *Output) line(w io.Writer, c *color.Color, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if c == nil {
		fmt.Fprintln(w, msg)
		return
	}
	c.Fprintln(w, msg)
}
