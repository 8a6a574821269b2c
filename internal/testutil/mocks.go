package testutil

import (
	"context"
	"sync"

	"github.com/slickpay/epayrobot/internal/domain/captcha"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/stage"
)

// --- Browser Session Mock ---

// MockSession is a scripted stand-in for one browser tab. Selectors listed in
// Visible are present on the page; everything else never appears.
type MockSession struct {
	mu sync.Mutex

	CurrentURL   string
	PageTitle    string
	Statuses     map[string]int    // navigation status per URL, 200 when absent
	Visible      map[string]bool   // selectors present in the DOM
	Texts        map[string]string // inner text per selector
	ClickTargets map[string]string // clicking selector moves to URL
	Typed        map[string]string
	Clicks       []string
	Styles       []string
	Recaptchas   int
	CloseCount   int

	NavigateFunc        func(ctx context.Context, url string) (int, error)
	WaitVisibleFunc     func(ctx context.Context, selector string) error
	TypeFunc            func(ctx context.Context, selector, value string) error
	ClickFunc           func(ctx context.Context, selector string, mode stage.WaitMode) error
	TextFunc            func(ctx context.Context, selector string) (string, bool, error)
	ScreenshotFunc      func(ctx context.Context, selector string) ([]byte, error)
	PrintPDFFunc        func(ctx context.Context, opts stage.PDFOptions) ([]byte, error)
	SolveRecaptchasFunc func(ctx context.Context) error
}

func NewMockSession() *MockSession {
	return &MockSession{
		Statuses:     make(map[string]int),
		Visible:      make(map[string]bool),
		Texts:        make(map[string]string),
		ClickTargets: make(map[string]string),
		Typed:        make(map[string]string),
	}
}

// Show marks selectors as present.
func (m *MockSession) Show(selectors ...string) *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range selectors {
		m.Visible[s] = true
	}
	return m
}

// SetText makes selector present with the given inner text.
func (m *MockSession) SetText(selector, text string) *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Visible[selector] = true
	m.Texts[selector] = text
	return m
}

func (m *MockSession) Navigate(ctx context.Context, url string) (int, error) {
	if m.NavigateFunc != nil {
		return m.NavigateFunc(ctx, url)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentURL = url
	if status, ok := m.Statuses[url]; ok {
		return status, nil
	}
	return 200, nil
}

func (m *MockSession) WaitVisible(ctx context.Context, selector string) error {
	if m.WaitVisibleFunc != nil {
		return m.WaitVisibleFunc(ctx, selector)
	}
	m.mu.Lock()
	visible := m.Visible[selector]
	m.mu.Unlock()
	if visible {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockSession) Type(ctx context.Context, selector, value string) error {
	if m.TypeFunc != nil {
		return m.TypeFunc(ctx, selector, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Visible[selector] {
		return domainErrors.ErrElementNotFound
	}
	m.Typed[selector] = value
	return nil
}

func (m *MockSession) Click(ctx context.Context, selector string, mode stage.WaitMode) error {
	if m.ClickFunc != nil {
		return m.ClickFunc(ctx, selector, mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Visible[selector] {
		return domainErrors.ErrElementNotFound
	}
	m.Clicks = append(m.Clicks, selector)
	if target, ok := m.ClickTargets[selector]; ok {
		m.CurrentURL = target
	}
	return nil
}

func (m *MockSession) Text(ctx context.Context, selector string) (string, bool, error) {
	if m.TextFunc != nil {
		return m.TextFunc(ctx, selector)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Visible[selector] {
		return "", false, nil
	}
	return m.Texts[selector], true, nil
}

func (m *MockSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if m.ScreenshotFunc != nil {
		return m.ScreenshotFunc(ctx, selector)
	}
	return []byte("png:" + selector), nil
}

func (m *MockSession) Location(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentURL, nil
}

func (m *MockSession) Title(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PageTitle, nil
}

func (m *MockSession) AddStyle(ctx context.Context, css string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Styles = append(m.Styles, css)
	return nil
}

func (m *MockSession) PrintPDF(ctx context.Context, opts stage.PDFOptions) ([]byte, error) {
	if m.PrintPDFFunc != nil {
		return m.PrintPDFFunc(ctx, opts)
	}
	return []byte("%PDF-1.4"), nil
}

func (m *MockSession) SolveRecaptchas(ctx context.Context) error {
	if m.SolveRecaptchasFunc != nil {
		return m.SolveRecaptchasFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recaptchas++
	return nil
}

func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCount++
	return nil
}

// Closes returns how many times Close was called.
func (m *MockSession) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCount
}

// TypedValue returns the last value typed into selector.
func (m *MockSession) TypedValue(selector string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Typed[selector]
}

// ClickCount returns how many times selector was clicked.
func (m *MockSession) ClickCount(selector string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// --- Launcher Mock ---

// MockLauncher hands out Session on every Open and counts the calls.
type MockLauncher struct {
	mu        sync.Mutex
	Session   *MockSession
	OpenCount int

	OpenFunc func(ctx context.Context) (stage.Session, error)
}

func NewMockLauncher(session *MockSession) *MockLauncher {
	return &MockLauncher{Session: session}
}

func (m *MockLauncher) Open(ctx context.Context) (stage.Session, error) {
	m.mu.Lock()
	m.OpenCount++
	m.mu.Unlock()
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx)
	}
	return m.Session, nil
}

func (m *MockLauncher) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OpenCount
}

// --- Solver Mock ---

// MockSolver replays scripted responses in order. When a script runs out the
// last response is repeated.
type MockSolver struct {
	mu              sync.Mutex
	SubmitResponses []captcha.Response
	PollResponses   []captcha.Response
	Submissions     int
	Polls           int
	Images          [][]byte

	SubmitFunc func(ctx context.Context, image []byte) (captcha.Response, error)
	PollFunc   func(ctx context.Context, id string) (captcha.Response, error)
}

func (m *MockSolver) Submit(ctx context.Context, image []byte) (captcha.Response, error) {
	m.mu.Lock()
	n := m.Submissions
	m.Submissions++
	m.Images = append(m.Images, image)
	m.mu.Unlock()
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, image)
	}
	return pick(m.SubmitResponses, n, captcha.Response{Status: 1, Request: "1000"}), nil
}

func (m *MockSolver) Poll(ctx context.Context, id string) (captcha.Response, error) {
	m.mu.Lock()
	n := m.Polls
	m.Polls++
	m.mu.Unlock()
	if m.PollFunc != nil {
		return m.PollFunc(ctx, id)
	}
	return pick(m.PollResponses, n, captcha.Response{Request: string(captcha.CodeNotReady)}), nil
}

func (m *MockSolver) Counts() (submissions, polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Submissions, m.Polls
}

func pick(script []captcha.Response, n int, fallback captcha.Response) captcha.Response {
	if len(script) == 0 {
		return fallback
	}
	if n >= len(script) {
		return script[len(script)-1]
	}
	return script[n]
}

// --- Notifier Mock ---

type MockNotifier struct {
	mu         sync.Mutex
	InvoiceIDs []string
	Receipts   []transaction.Receipt

	NotifyFunc func(ctx context.Context, invoiceID string, receipt transaction.Receipt) error
}

func (m *MockNotifier) Notify(ctx context.Context, invoiceID string, receipt transaction.Receipt) error {
	m.mu.Lock()
	m.InvoiceIDs = append(m.InvoiceIDs, invoiceID)
	m.Receipts = append(m.Receipts, receipt)
	m.mu.Unlock()
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, invoiceID, receipt)
	}
	return nil
}

func (m *MockNotifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Receipts)
}

// --- Locker Mock ---

// MockLocker is an in-memory transaction lock.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool

	LockFunc func(ctx context.Context, key string) (func(context.Context) error, error)
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

func (m *MockLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domainErrors.ErrTransactionInProgress
	}
	m.held[key] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
		return nil
	}, nil
}

func (m *MockLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[key]
}
