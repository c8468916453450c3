// Package replay provides an offline STT provider that plays back a scripted
// sequence of recognition events. It is used to rehearse passages without a
// microphone or network and to drive end-to-end tests.
//
// A script is a YAML document:
//
//	passage: "क ख ग"
//	language: hi-IN
//	segments:
//	  - events:
//	      - text: "क"
//	      - alternatives: ["ख", "खा"]
//	        delay: 200ms
//	      - error: no-speech
//	  - reject: language-not-supported
//	  - events:
//	      - text: "ग"
//
// Every StartStream call consumes the next segment. A segment with a
// "reject" code fails StartStream with that code instead of opening a
// stream.
package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidScript is returned when a script fails validation.
var ErrInvalidScript = errors.New("replay: invalid script")

// Script is a parsed replay document.
type Script struct {
	// Passage optionally carries the reference text the script was recorded
	// against.
	Passage string `yaml:"passage"`

	// Language optionally carries the recognition language.
	Language string `yaml:"language"`

	Segments []Segment `yaml:"segments"`
}

// Segment is the scripted content of one recognition stream.
type Segment struct {
	// Reject, when set, makes StartStream fail with this error code.
	Reject string `yaml:"reject"`

	Events []Event `yaml:"events"`
}

// Event is one scripted recognition event. Exactly one of Text,
// Alternatives, Error or End must be set.
type Event struct {
	// Delay is waited before the event is emitted.
	Delay time.Duration `yaml:"delay"`

	// Text is shorthand for a single alternative.
	Text         string   `yaml:"text"`
	Alternatives []string `yaml:"alternatives"`

	// Final defaults to true.
	Final *bool `yaml:"final"`

	Error   string `yaml:"error"`
	Message string `yaml:"message"`

	End bool `yaml:"end"`
}

// IsFinal reports whether a result event is final.
func (e Event) IsFinal() bool {
	return e.Final == nil || *e.Final
}

// Texts returns the ranked alternatives of a result event.
func (e Event) Texts() []string {
	if e.Text != "" {
		return append([]string{e.Text}, e.Alternatives...)
	}
	return e.Alternatives
}

func (e Event) kinds() int {
	n := 0
	if len(e.Texts()) > 0 {
		n++
	}
	if e.Error != "" {
		n++
	}
	if e.End {
		n++
	}
	return n
}

// Parse decodes and validates a script. Unknown fields are rejected.
func Parse(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("replay: decode script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open script: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Validate checks that every event is well formed.
func (s *Script) Validate() error {
	var errs []error
	if len(s.Segments) == 0 {
		errs = append(errs, fmt.Errorf("%w: no segments", ErrInvalidScript))
	}
	for i, seg := range s.Segments {
		if seg.Reject != "" && len(seg.Events) > 0 {
			errs = append(errs, fmt.Errorf("%w: segment %d: reject and events are mutually exclusive", ErrInvalidScript, i))
		}
		for j, ev := range seg.Events {
			if ev.kinds() != 1 {
				errs = append(errs, fmt.Errorf("%w: segment %d event %d: exactly one of text, alternatives, error or end must be set", ErrInvalidScript, i, j))
			}
			if ev.Delay < 0 {
				errs = append(errs, fmt.Errorf("%w: segment %d event %d: negative delay", ErrInvalidScript, i, j))
			}
		}
	}
	return errors.Join(errs...)
}
