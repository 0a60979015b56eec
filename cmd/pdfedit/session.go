package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/wudi/pdfedit/annotation"
	"github.com/wudi/pdfedit/editor"
)

// event is one recorded editor gesture. Pointer coordinates are screen
// offsets from the page's top-left corner at the zoom in effect.
type event struct {
	Type  string  `json:"type"`
	Tool  string  `json:"tool,omitempty"`
	Page  int     `json:"page,omitempty"`
	ID    int     `json:"id,omitempty"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
	Zoom  float64 `json:"zoom,omitempty"`
	Text  string  `json:"text,omitempty"`
	Key   string  `json:"key,omitempty"`
	Shift bool    `json:"shift,omitempty"`
	Path  string  `json:"path,omitempty"`

	Patch *patch `json:"patch,omitempty"`
}

type patch struct {
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	Size        *float64 `json:"size,omitempty"`
	Color       string   `json:"color,omitempty"`
	FontFamily  *string  `json:"fontFamily,omitempty"`
	Fill        *bool    `json:"fill,omitempty"`
	StrokeWidth *float64 `json:"strokeWidth,omitempty"`
}

func (p *patch) toPatch() (annotation.Patch, error) {
	out := annotation.Patch{
		Width:       p.Width,
		Height:      p.Height,
		Size:        p.Size,
		FontFamily:  p.FontFamily,
		Fill:        p.Fill,
		StrokeWidth: p.StrokeWidth,
	}
	if p.Color != "" {
		c, err := annotation.ParseHex(p.Color)
		if err != nil {
			return annotation.Patch{}, err
		}
		out.Color = &c
	}
	return out, nil
}

func readSession(path string) ([]event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var events []event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return events, nil
}

// player feeds recorded events to a controller. Keys and picked images
// travel through bus the way a host delivers them; relative image paths
// resolve against dir.
type player struct {
	ctrl     *editor.Controller
	bus      *editor.Bus
	dir      string
	imageErr error
}

// imageFailed is installed as the controller's OnImageError.
func (p *player) imageFailed(_ int, err error) { p.imageErr = err }

func (p *player) replay(events []event) error {
	for i, ev := range events {
		if err := p.apply(ev); err != nil {
			return fmt.Errorf("event %d (%s): %w", i, ev.Type, err)
		}
	}
	return nil
}

func (p *player) apply(ev event) error {
	ctrl, bus := p.ctrl, p.bus
	switch ev.Type {
	case "tool":
		ctrl.SetTool(editor.Tool(ev.Tool))
	case "zoom":
		ctrl.SetZoom(ev.Zoom)
	case "click":
		return ctrl.PageClick(ev.Page, ev.X, ev.Y)
	case "down":
		ctrl.PointerDown(ev.ID, ev.X, ev.Y)
	case "move":
		return ctrl.PointerMove(ev.X, ev.Y)
	case "up":
		ctrl.PointerUp()
	case "dblclick":
		ctrl.DoubleClick(ev.ID)
	case "type":
		return ctrl.EditText(ev.Text)
	case "blur":
		ctrl.Blur()
	case "key":
		bus.PublishKey(editor.KeyEvent{Key: editor.Key(ev.Key), Shift: ev.Shift})
	case "replace":
		return ctrl.SmartReplaceAt(ev.Page, ev.X, ev.Y)
	case "delete":
		ctrl.Delete(ev.ID)
	case "update":
		if ev.Patch == nil {
			return fmt.Errorf("missing patch")
		}
		patch, err := ev.Patch.toPatch()
		if err != nil {
			return err
		}
		return ctrl.Update(ev.ID, patch)
	case "image":
		req, ok := ctrl.Pending()
		if !ok {
			return fmt.Errorf("no image request pending")
		}
		path := ev.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.dir, path)
		}
		data, err := os.ReadFile(path)
		bus.PublishImage(editor.ImageResult{
			Token:    req.Token,
			Data:     data,
			MIMEType: mime.TypeByExtension(filepath.Ext(path)),
			Err:      err,
		})
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if p.imageErr != nil {
			err, p.imageErr = p.imageErr, nil
			return err
		}
	case "cancel":
		if req, ok := ctrl.Pending(); ok {
			bus.PublishImage(editor.ImageResult{Token: req.Token, Cancelled: true})
		}
	default:
		return fmt.Errorf("unknown event type")
	}
	return nil
}
