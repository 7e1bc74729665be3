// Package common provides shared types used across assetload.
// It includes the resource kinds and descriptors, the decoded value union
// handed to presenters, and execution results used for communication between
// the CLI and its handlers.
package common

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind is the media type of a resource. It selects both the fetch strategy
// and the decoder.
type Kind int

const (
	// KindModel is a 3D model. Models are delivered through bundles, never by URL.
	KindModel Kind = iota
	// KindImage is a raster image (png, jpeg, gif, bmp, webp).
	KindImage
	// KindAudio is an Ogg Vorbis audio clip.
	KindAudio
	// KindText is a text document.
	KindText
)

var kindNames = [...]string{"model", "image", "audio", "text"}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindModel, KindImage, KindAudio, KindText}
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind converts a kind name into a Kind. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "model":
		return KindModel, nil
	case "image", "texture":
		return KindImage, nil
	case "audio", "audioclip":
		return KindAudio, nil
	case "text":
		return KindText, nil
	default:
		return 0, fmt.Errorf("unknown resource kind: %q", s)
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("resource kind must be a string: %w", err)
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Descriptor describes a single catalog resource.
type Descriptor struct {
	// Key is the stable identifier of the resource, unique within a catalog.
	Key string `json:"key"`
	// Locator is the network address of the raw bytes.
	Locator string `json:"url"`
	// Kind decides how the resource is fetched and decoded.
	Kind Kind `json:"kind"`
}

// ImageBuffer is a decoded image in 8-bit RGBA, row-major, 4 bytes per pixel.
type ImageBuffer struct {
	Width  int
	Height int
	// Format is the name reported by the image decoder ("png", "jpeg", ...).
	Format string
	Pix    []byte

	released bool
}

// AudioBuffer holds decoded PCM samples, interleaved by channel.
type AudioBuffer struct {
	SampleRate int
	Channels   int
	Samples    []float32

	released bool
}

// Frames returns the number of sample frames (samples per channel).
func (a *AudioBuffer) Frames() int {
	if a.Channels == 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

// Duration returns the playback length of the buffer.
func (a *AudioBuffer) Duration() time.Duration {
	if a.SampleRate == 0 {
		return 0
	}
	return time.Duration(a.Frames()) * time.Second / time.Duration(a.SampleRate)
}

// TextBlob is a text document transcoded to UTF-8.
type TextBlob struct {
	Text string
	// MediaType is the media type reported by the source, without parameters.
	MediaType string
	// Charset is the source encoding the text was transcoded from.
	Charset string

	released bool
}

// Value is a decoded resource. Exactly one of Image, Audio and Text is set,
// matching Kind.
type Value struct {
	Kind  Kind
	Image *ImageBuffer
	Audio *AudioBuffer
	Text  *TextBlob
}

func ImageValue(img *ImageBuffer) Value { return Value{Kind: KindImage, Image: img} }
func AudioValue(a *AudioBuffer) Value   { return Value{Kind: KindAudio, Audio: a} }
func TextValue(t *TextBlob) Value       { return Value{Kind: KindText, Text: t} }

// Release destroys the buffer owned by the value. Any copy of the Value
// still points at the same buffer and observes it as released.
func (v Value) Release() {
	switch v.Kind {
	case KindImage:
		if v.Image != nil {
			v.Image.Pix = nil
			v.Image.Width, v.Image.Height = 0, 0
			v.Image.released = true
		}
	case KindAudio:
		if v.Audio != nil {
			v.Audio.Samples = nil
			v.Audio.released = true
		}
	case KindText:
		if v.Text != nil {
			v.Text.Text = ""
			v.Text.released = true
		}
	}
}

// Released reports whether the owned buffer has been destroyed. An empty
// but live buffer is not released.
func (v Value) Released() bool {
	switch v.Kind {
	case KindImage:
		return v.Image == nil || v.Image.released
	case KindAudio:
		return v.Audio == nil || v.Audio.released
	case KindText:
		return v.Text == nil || v.Text.released
	}
	return true
}

// Size returns the approximate number of bytes held by the value.
func (v Value) Size() uint64 {
	switch v.Kind {
	case KindImage:
		if v.Image != nil {
			return uint64(len(v.Image.Pix))
		}
	case KindAudio:
		if v.Audio != nil {
			return uint64(len(v.Audio.Samples)) * 4
		}
	case KindText:
		if v.Text != nil {
			return uint64(len(v.Text.Text))
		}
	}
	return 0
}

// ExecutionResult represents the outcome of a CLI command.
type ExecutionResult struct {
	// ExitCode is the status code the process should exit with.
	ExitCode int
	// Output is rendered by the display before exiting, if set.
	Output *Output
}

// Output is structured command output.
type Output struct {
	Message string
	KV      []KV
	Table   *Table
}

// KV is a single labelled value in an Output.
type KV struct {
	Key   string
	Value string
}

// Table is a simple header + rows table.
type Table struct {
	Header []string
	Rows   [][]string
}
