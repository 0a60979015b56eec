package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by placement gestures until every page of
	// the document is rendered and its text runs are known.
	ErrNotReady = errors.New("document is still rendering")
	// ErrImagePending is returned when an image placement is requested
	// while another one still waits for its image.
	ErrImagePending = errors.New("an image request is already pending")
	ErrNoDocument   = errors.New("no document loaded")
	ErrInvalidPage  = errors.New("page out of range")
	ErrNoTextRun    = errors.New("no text run")
	// ErrSelectTool is returned by smart replace while a placement tool
	// is active.
	ErrSelectTool = errors.New("gesture requires the select tool")
	ErrLoad       = errors.New("document failed to load")
)

// LoadError reports a document that could not be rendered. The session
// holds no document after it.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.Name, e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }
