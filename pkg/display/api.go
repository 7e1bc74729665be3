// Package display renders progress, logs and loaded resources.
// It is the presentation side of the loader: the loader hands decoded values
// to a Presenter and reports fetch progress through Tasks.
package display

import "assetload/pkg/common"

// Task represents a unit of work that can be monitored.
type Task interface {
	// Log adds a log message associated with this task.
	Log(msg string)
	// SetStage updates the current stage of the task (e.g. "Fetch", "Decode")
	// and the target being worked on.
	SetStage(name string, target string)
	// Progress updates the completion percentage (0-100) and status message.
	Progress(percent int, message string)
	// Done marks the task as completed and removes it from the display.
	// It is the responsibility of the caller who created the task via StartTask.
	Done()
}

// Presenter shows decoded resources. It is the external "display"
// collaborator of the loader.
type Presenter interface {
	// OnDisplay shows a loaded value: draw the image, play the audio,
	// show the text. It runs while the loader's cache is locked and must
	// not call back into the loader; keep v only until the matching OnClear.
	OnDisplay(kind common.Kind, v common.Value)
	// OnClear resets the view for kind after its resource was released.
	OnClear(kind common.Kind)
}

// Display handles the visualization of tasks, logs and resources.
type Display interface {
	Presenter
	// StartTask creates and returns a new tracked Task.
	StartTask(name string) Task
	// Log adds a direct log message to the display. Only shown when verbose.
	Log(msg string)
	// Print adds a primary output message (e.g. table, info) to the display.
	Print(msg string)
	// RenderOutput prints structured command output.
	RenderOutput(out *common.Output)
	// SetVerbose enables or disables verbose logging.
	SetVerbose(v bool)
	// Close cleans up any resources and ensures final output is rendered.
	Close()
}

// NopTask is a Task that discards everything.
type NopTask struct{}

func (NopTask) Log(string)              {}
func (NopTask) SetStage(string, string) {}
func (NopTask) Progress(int, string)    {}
func (NopTask) Done()                   {}
