package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// FakeElement is one element in a FakePage's in-memory DOM, addressable by
// any of several selector kinds so resolver/executor tests can exercise the
// full tier pipeline without a real browser.
type FakeElement struct {
	TestID      string
	ID          string
	Name        string
	AriaLabel   string
	Placeholder string
	Role        string
	Text        string
	Tag         string
	Classes     []string
	Attributes  map[string]string
	Visible     bool
	Enabled     bool
	Value       string
	Checked     bool
	Box         BoundingBox
	Files       []string

	mu sync.Mutex
}

// FakePage is an in-memory stand-in for a real driver page, used by unit
// tests across resolver/executor/recovery/spa. Safe for concurrent use by
// the orchestrator's single execution goroutine plus test assertions.
type FakePage struct {
	mu            sync.Mutex
	url           string
	html          string
	elements      []*FakeElement
	navigations   []string
	screenshots   []string
	keyPresses    []string
	clock         time.Time
	evalResponses map[string]any
}

var (
	_ Page    = (*FakePage)(nil)
	_ Locator = (*fakeLocator)(nil)
)

// NewFakePage builds an empty fake page at the given URL.
func NewFakePage(url string) *FakePage {
	return &FakePage{
		url:           url,
		clock:         time.Unix(0, 0),
		evalResponses: map[string]any{},
	}
}

// AddElement registers an element in the fake DOM.
func (p *FakePage) AddElement(e *FakeElement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.Attributes == nil {
		e.Attributes = map[string]string{}
	}
	p.elements = append(p.elements, e)
}

// SetHTML sets the raw markup returned by Content, for heuristic-engine
// tests that parse real HTML rather than walking FakeElement structs.
func (p *FakePage) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// SetEvalResponse stubs the result of a specific page.evaluate(script) call,
// used by SPA-coordinator tests (framework detection, hydration probes).
func (p *FakePage) SetEvalResponse(script string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evalResponses[script] = value
}

// Navigations returns the recorded navigation history, for assertions.
func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *FakePage) Navigate(ctx context.Context, url string, waitUntil WaitUntil) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.navigations = append(p.navigations, url)
	return nil
}

func (p *FakePage) Locator(kind scoutmodel.SelectorKind, value string) Locator {
	return &fakeLocator{page: p, kind: kind, value: value}
}

func (p *FakePage) Evaluate(ctx context.Context, script string) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.evalResponses[script]; ok {
		return v, nil
	}
	return nil, nil
}

func (p *FakePage) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *FakePage) WaitForLoadState(ctx context.Context, state WaitUntil, timeout time.Duration) error {
	return ctx.Err()
}

func (p *FakePage) KeyboardPress(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyPresses = append(p.keyPresses, key)
	return nil
}

func (p *FakePage) Screenshot(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshots = append(p.screenshots, path)
	return nil
}

func (p *FakePage) find(kind scoutmodel.SelectorKind, value string) (*FakeElement, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.elements {
		if matches(e, kind, value) {
			return e, true
		}
	}
	return nil, false
}

func matches(e *FakeElement, kind scoutmodel.SelectorKind, value string) bool {
	switch kind {
	case scoutmodel.KindTestID:
		return e.TestID != "" && e.TestID == stripAttrSyntax(value)
	case scoutmodel.KindText:
		return e.Text != "" && strings.Contains(strings.ToLower(e.Text), strings.ToLower(stripAttrSyntax(value)))
	case scoutmodel.KindRole:
		return e.Role != "" && e.Role == stripAttrSyntax(value)
	case scoutmodel.KindPlaceholder:
		return e.Placeholder != "" && e.Placeholder == stripAttrSyntax(value)
	case scoutmodel.KindLabel:
		return e.AriaLabel != "" && e.AriaLabel == stripAttrSyntax(value)
	case scoutmodel.KindCSS:
		return matchesCSS(e, value)
	case scoutmodel.KindXPath:
		return matchesXPath(e, value)
	}
	return false
}

// stripAttrSyntax trims a framework's locator wrapper syntax, e.g.
// `[data-testid="login"]` -> `login`, so FakeElement fields can be compared
// against bare values regardless of which kind produced the selector.
func stripAttrSyntax(value string) string {
	v := value
	for _, cut := range []string{"[data-testid=", "[data-test=", "[aria-label=", "[placeholder=", "[name=", "]", "\"", "'", "#", "."} {
		v = strings.ReplaceAll(v, cut, "")
	}
	return strings.TrimSpace(v)
}

func matchesCSS(e *FakeElement, value string) bool {
	switch {
	case strings.HasPrefix(value, "#"):
		return e.ID == value[1:]
	case strings.HasPrefix(value, "."):
		target := value[1:]
		for _, c := range e.Classes {
			if c == target {
				return true
			}
		}
		return false
	case strings.Contains(value, "name="):
		return e.Name == stripAttrSyntax(value)
	case strings.Contains(value, "data-testid=") || strings.Contains(value, "data-test="):
		return e.TestID == stripAttrSyntax(value)
	default:
		return e.Tag != "" && value == e.Tag
	}
}

func matchesXPath(e *FakeElement, value string) bool {
	return strings.Contains(value, e.Tag) && e.Tag != ""
}

type fakeLocator struct {
	page  *FakePage
	kind  scoutmodel.SelectorKind
	value string
}

func (l *fakeLocator) element() (*FakeElement, error) {
	e, ok := l.page.find(l.kind, l.value)
	if !ok {
		return nil, &scoutmodel.DriverError{
			Kind:     scoutmodel.FailureElementNotFound,
			Selector: scoutmodel.Selector{Value: l.value, Kind: l.kind},
			Message:  "no element matched in fake DOM",
		}
	}
	return e, nil
}

func (l *fakeLocator) WaitFor(ctx context.Context, state LocatorState, timeout time.Duration) error {
	e, err := l.element()
	if err != nil {
		if state == StateDetached || state == StateHidden {
			return nil
		}
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch state {
	case StateVisible:
		if !e.Visible {
			return &scoutmodel.TimeoutError{Operation: "wait_for_visible", BudgetMS: timeout.Milliseconds()}
		}
	case StateHidden:
		if e.Visible {
			return &scoutmodel.TimeoutError{Operation: "wait_for_hidden", BudgetMS: timeout.Milliseconds()}
		}
	}
	return nil
}

func (l *fakeLocator) Click(ctx context.Context, force bool) error {
	e, err := l.element()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !force && !e.Visible {
		return &scoutmodel.DriverError{Kind: scoutmodel.FailureElementNotVisible, Selector: scoutmodel.Selector{Value: l.value, Kind: l.kind}, Message: "element not visible"}
	}
	if !e.Enabled {
		return &scoutmodel.DriverError{Kind: scoutmodel.FailureElementNotEnabled, Selector: scoutmodel.Selector{Value: l.value, Kind: l.kind}, Message: "element disabled"}
	}
	return nil
}

func (l *fakeLocator) Fill(ctx context.Context, text string) error {
	e, err := l.element()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.Enabled {
		return &scoutmodel.DriverError{Kind: scoutmodel.FailureElementNotEnabled, Selector: scoutmodel.Selector{Value: l.value, Kind: l.kind}, Message: "element disabled"}
	}
	e.Value = text
	return nil
}

func (l *fakeLocator) Type(ctx context.Context, text string, delay time.Duration) error {
	return l.Fill(ctx, text)
}

func (l *fakeLocator) PressKey(ctx context.Context, key string) error {
	_, err := l.element()
	return err
}

func (l *fakeLocator) Check(ctx context.Context) error {
	e, err := l.element()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Checked = true
	return nil
}

func (l *fakeLocator) Uncheck(ctx context.Context) error {
	e, err := l.element()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Checked = false
	return nil
}

func (l *fakeLocator) SelectOption(ctx context.Context, value, label string, index int) error {
	e, err := l.element()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case value != "":
		e.Value = value
	case label != "":
		e.Value = label
	default:
		e.Value = fmt.Sprintf("option_%d", index)
	}
	return nil
}

func (l *fakeLocator) Hover(ctx context.Context) error {
	_, err := l.element()
	return err
}

func (l *fakeLocator) ScrollIntoView(ctx context.Context) error {
	e, err := l.element()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.Visible = true
	e.mu.Unlock()
	return nil
}

func (l *fakeLocator) UploadFile(ctx context.Context, paths []string) error {
	e, err := l.element()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Files = append([]string(nil), paths...)
	return nil
}

func (l *fakeLocator) BoundingBox(ctx context.Context) (BoundingBox, error) {
	e, err := l.element()
	if err != nil {
		return BoundingBox{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Box, nil
}

func (l *fakeLocator) IsVisible(ctx context.Context) (bool, error) {
	e, err := l.element()
	if err != nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Visible, nil
}

func (l *fakeLocator) IsEnabled(ctx context.Context) (bool, error) {
	e, err := l.element()
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Enabled, nil
}

func (l *fakeLocator) InputValue(ctx context.Context) (string, error) {
	e, err := l.element()
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Value, nil
}

func (l *fakeLocator) TextContent(ctx context.Context) (string, error) {
	e, err := l.element()
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Text, nil
}

func (l *fakeLocator) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	e, err := l.element()
	if err != nil {
		return "", false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.Attributes[name]
	return v, ok, nil
}

func (l *fakeLocator) Evaluate(ctx context.Context, script string) (any, error) {
	_, err := l.element()
	if err != nil {
		return nil, err
	}
	return nil, nil
}
