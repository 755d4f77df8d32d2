package mock

import (
	"fmt"
	"sync"

	"github.com/devicelab-dev/flowtest/pkg/jsengine"
)

// Element is the mock state of the elements matching one selector.
// The zero value is a single visible, empty element.
type Element struct {
	Text    string
	Hidden  bool
	Value   string
	Attrs   map[string]string
	Count   int // Number of matches; 0 means 1
	Checked bool
	Files   []string
}

// Page is an in-memory page model keyed by CSS selector. Handlers
// registered with OnClick and OnDrop mutate it to script page behavior.
type Page struct {
	mu       sync.Mutex
	history  []string
	pos      int
	elements map[string]Element
	onClick  map[string]func(*Page)
	onDrop   map[string]func(*Page)
	errors   map[string]error
	focused  string
	keys     []string
	calls    []string
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{
		pos:      -1,
		elements: make(map[string]Element),
		onClick:  make(map[string]func(*Page)),
		onDrop:   make(map[string]func(*Page)),
		errors:   make(map[string]error),
	}
}

// Set adds or replaces the element for selector.
func (p *Page) Set(selector string, el Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = el
}

// Remove detaches the element for selector.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// Element returns a copy of the element for selector.
func (p *Page) Element(selector string) (Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	return el, ok
}

// OnClick registers fn to run after selector is clicked.
func (p *Page) OnClick(selector string, fn func(*Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = fn
}

// OnDrop registers fn to run after a drag, keyed "source -> target".
func (p *Page) OnDrop(source, target string, fn func(*Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDrop[source+" -> "+target] = fn
}

// FailOn makes an operation return err. key is a method name ("navigate",
// "click") or a method and argument ("click #submit").
func (p *Page) FailOn(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors[key] = err
}

// URL returns the current URL, or "" before the first navigation.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos < 0 {
		return ""
	}
	return p.history[p.pos]
}

// Calls returns every recorded operation as "method arg".
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Keys returns the pressed keys in order.
func (p *Page) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// Focused returns the selector holding focus, or "".
func (p *Page) Focused() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focused
}

func (p *Page) record(method, arg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if arg == "" {
		p.calls = append(p.calls, method)
		return
	}
	p.calls = append(p.calls, method+" "+arg)
}

func (p *Page) injected(method, arg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errors[method+" "+arg]; ok {
		return err
	}
	return p.errors[method]
}

func (p *Page) navigate(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history[:p.pos+1], url)
	p.pos = len(p.history) - 1
}

func (p *Page) move(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.pos + delta
	if next >= 0 && next < len(p.history) {
		p.pos = next
	}
}

func (p *Page) press(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
}

func (p *Page) setFocus(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.focused = selector
}

func (p *Page) update(selector string, fn func(el *Element)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok {
		return notFound(selector)
	}
	fn(&el)
	p.elements[selector] = el
	return nil
}

// fire runs the handler for key without holding the page lock.
func (p *Page) fire(handlers map[string]func(*Page), key string) {
	p.mu.Lock()
	fn := handlers[key]
	p.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// pageScript defines the window object scripts see.
const pageScript = `
var window = {
	scrollX: 0,
	scrollY: 0,
	scrollTo: function(x, y) {
		if (typeof x === 'object') { this.scrollX = x.left || 0; this.scrollY = x.top || 0; return; }
		this.scrollX = x; this.scrollY = y;
	},
	scrollBy: function(x, y) { this.scrollX += x; this.scrollY += y; },
	get location() { return { href: __pageURL() }; }
};
`

func newPageScript(p *Page) (*jsengine.Engine, error) {
	js := jsengine.New()
	js.SetVariable("__pageURL", p.URL)
	if err := js.RunScript(pageScript); err != nil {
		return nil, fmt.Errorf("mock page script: %w", err)
	}
	return js, nil
}
