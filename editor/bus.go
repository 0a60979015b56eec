package editor

import "sync"

// KeyEvent is a keyboard event delivered to the editor.
type KeyEvent struct {
	Key   Key
	Shift bool
	// InTextInput is set when focus is in a text field of the host UI,
	// where Delete and Backspace edit text instead of annotations.
	InTextInput bool
}

type Key string

const (
	KeyEnter     Key = "Enter"
	KeyEscape    Key = "Escape"
	KeyDelete    Key = "Delete"
	KeyBackspace Key = "Backspace"
)

// ImageResult completes the image request with the same token. Err or
// Cancelled withdraw the request.
type ImageResult struct {
	Token     int
	Data      []byte
	MIMEType  string
	Cancelled bool
	Err       error
}

// Bus carries host events to whichever editor is mounted on it. Handlers
// run synchronously on the publishing goroutine.
type Bus struct {
	mu     sync.Mutex
	next   int
	keys   map[int]func(KeyEvent)
	images map[int]func(ImageResult)
}

func NewBus() *Bus {
	return &Bus{keys: make(map[int]func(KeyEvent)), images: make(map[int]func(ImageResult))}
}

// OnKey subscribes fn to key events and returns its unsubscribe function.
func (b *Bus) OnKey(fn func(KeyEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.keys[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.keys, id)
	}
}

// OnImage subscribes fn to image results and returns its unsubscribe
// function.
func (b *Bus) OnImage(fn func(ImageResult)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.images[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.images, id)
	}
}

func (b *Bus) PublishKey(ev KeyEvent) {
	for _, fn := range snapshot(&b.mu, b.keys) {
		fn(ev)
	}
}

func (b *Bus) PublishImage(res ImageResult) {
	for _, fn := range snapshot(&b.mu, b.images) {
		fn(res)
	}
}

// snapshot copies the handlers so they may unsubscribe while running.
func snapshot[T any](mu *sync.Mutex, m map[int]T) []T {
	mu.Lock()
	defer mu.Unlock()
	out := make([]T, 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
