// Package display implementation for terminal-based output.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"assetload/pkg/common"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const (
	ansiUpClear = "\x1b[1A\x1b[2K"
	textPreview = 2000
)

var (
	taskStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	kindStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	clearStyle = lipgloss.NewStyle().Faint(true)
	textStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// consoleDisplay handles terminal output.
// Mutable
type consoleDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	tasks   []*consoleTask
	// shown is the number of task lines currently on screen.
	shown int
}

// NewConsole creates a Display that writes to standard error.
func NewConsole() Display {
	return &consoleDisplay{
		out: os.Stderr,
	}
}

// NewWriterDisplay creates a Display that writes to the provided io.Writer.
func NewWriterDisplay(w io.Writer) Display {
	return &consoleDisplay{
		out: w,
	}
}

func (d *consoleDisplay) SetVerbose(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verbose = v
}

// Print writes a message directly to the output writer.
func (d *consoleDisplay) Print(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.above(msg)
}

func (d *consoleDisplay) Log(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.verbose {
		return
	}
	d.above(msg + "\n")
}

func (d *consoleDisplay) StartTask(name string) Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &consoleTask{d: d, name: name}
	d.tasks = append(d.tasks, t)
	d.redraw()
	return t
}

func (d *consoleDisplay) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearTasks()
	d.tasks = nil
}

// OnDisplay renders a loaded value.
func (d *consoleDisplay) OnDisplay(kind common.Kind, v common.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.above(describe(kind, v) + "\n")
}

// OnClear reports that the view for kind has been reset.
func (d *consoleDisplay) OnClear(kind common.Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var msg string
	switch kind {
	case common.KindImage:
		msg = "image view cleared"
	case common.KindAudio:
		msg = "audio stopped and cleared"
	case common.KindText:
		msg = "text view cleared"
	case common.KindModel:
		msg = "model instances destroyed"
	default:
		msg = kind.String() + " view cleared"
	}
	d.above(clearStyle.Render(msg) + "\n")
}

func describe(kind common.Kind, v common.Value) string {
	label := kindStyle.Render(strings.ToUpper(kind.String()))
	switch {
	case v.Image != nil:
		return fmt.Sprintf("%s %dx%d %s (%s)", label, v.Image.Width, v.Image.Height, v.Image.Format, humanize.Bytes(v.Size()))
	case v.Audio != nil:
		return fmt.Sprintf("%s playing %d ch @ %d Hz, %s (%s)", label, v.Audio.Channels, v.Audio.SampleRate, v.Audio.Duration().Round(1e6), humanize.Bytes(v.Size()))
	case v.Text != nil:
		body := v.Text.Text
		if len(body) > textPreview {
			body = body[:textPreview] + "…"
		}
		return fmt.Sprintf("%s %s (%s)\n%s", label, v.Text.MediaType, humanize.Bytes(v.Size()), textStyle.Render(body))
	}
	return label + " (empty)"
}

// RenderOutput displays structured data from an Output struct to the console.
func (d *consoleDisplay) RenderOutput(out *common.Output) {
	if out == nil {
		return
	}

	if out.Message != "" {
		d.Print(fmt.Sprintln(out.Message))
	}

	if len(out.KV) > 0 {
		for _, kv := range out.KV {
			d.Print(fmt.Sprintf("%-12s %s\n", kv.Key+":", kv.Value))
		}
	}

	if out.Table != nil {
		d.renderTable(out.Table)
	}
}

func (d *consoleDisplay) renderTable(t *common.Table) {
	if len(t.Header) == 0 {
		return
	}

	// Simple column width calculation
	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	for i, h := range t.Header {
		fmt.Fprintf(&sb, "%-*s  ", widths[i], h)
	}
	d.Print(strings.TrimRight(sb.String(), " ") + "\n")

	totalWidth := 0
	for _, w := range widths {
		totalWidth += w + 2
	}
	d.Print(strings.Repeat("-", totalWidth) + "\n")

	for _, row := range t.Rows {
		sb.Reset()
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&sb, "%-*s  ", widths[i], cell)
			}
		}
		d.Print(strings.TrimRight(sb.String(), " ") + "\n")
	}
}

// above prints msg above the task lines. Must be called with mu held.
func (d *consoleDisplay) above(msg string) {
	d.clearTasks()
	fmt.Fprint(d.out, msg)
	d.drawTasks()
}

// redraw repaints the task lines. Must be called with mu held.
func (d *consoleDisplay) redraw() {
	d.clearTasks()
	d.drawTasks()
}

func (d *consoleDisplay) clearTasks() {
	for i := 0; i < d.shown; i++ {
		fmt.Fprint(d.out, ansiUpClear)
	}
	d.shown = 0
}

func (d *consoleDisplay) drawTasks() {
	for _, t := range d.tasks {
		fmt.Fprintln(d.out, t.line())
	}
	d.shown = len(d.tasks)
}

func (d *consoleDisplay) remove(t *consoleTask) {
	for i, x := range d.tasks {
		if x == t {
			d.tasks = append(d.tasks[:i], d.tasks[i+1:]...)
			return
		}
	}
}

// consoleTask is guarded by its display's mutex.
// Mutable
type consoleTask struct {
	d       *consoleDisplay
	name    string
	stage   string
	target  string
	percent int
	message string
}

func (t *consoleTask) line() string {
	var sb strings.Builder
	sb.WriteString(taskStyle.Render("[" + t.name + "]"))
	if t.stage != "" {
		sb.WriteString(" " + t.stage)
	}
	if t.target != "" {
		sb.WriteString(" " + t.target)
	}
	if t.percent > 0 {
		fmt.Fprintf(&sb, " %d%%", t.percent)
	}
	if t.message != "" {
		sb.WriteString(" " + t.message)
	}
	return sb.String()
}

func (t *consoleTask) Log(msg string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if !t.d.verbose {
		return
	}
	t.d.above(fmt.Sprintf("[%s] %s\n", t.name, msg))
}

func (t *consoleTask) SetStage(name string, target string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.stage = name
	t.target = target
	t.d.redraw()
}

func (t *consoleTask) Progress(percent int, message string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.percent = percent
	t.message = message
	t.d.redraw()
}

func (t *consoleTask) Done() {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.clearTasks()
	t.d.remove(t)
	if t.d.verbose {
		fmt.Fprintf(t.d.out, "[%s] Done\n", t.name)
	}
	t.d.drawTasks()
}
