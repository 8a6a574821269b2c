// Package stage performs single browser interactions under a time budget and
// turns their failures into the error taxonomy the flows report.
package stage

import (
	"context"
)

// WaitMode selects what ClickAndWait waits for after the click.
type WaitMode int

const (
	// NoWait returns as soon as the click was dispatched.
	NoWait WaitMode = iota
	// WaitNavigation waits for the next document load.
	WaitNavigation
	// WaitNetworkIdle waits until no request has been in flight for a short
	// while. Used for forms that re-render in place.
	WaitNetworkIdle
)

func (m WaitMode) String() string {
	switch m {
	case WaitNavigation:
		return "navigation"
	case WaitNetworkIdle:
		return "network_idle"
	default:
		return "none"
	}
}

// Page is the set of primitives a flow needs from one controlled tab.
// Implementations honor ctx deadlines on every call.
type Page interface {
	// Navigate loads url and returns the HTTP status of the main document.
	Navigate(ctx context.Context, url string) (int, error)
	WaitVisible(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string, mode WaitMode) error
	// Text returns the inner text of selector; ok is false when absent.
	Text(ctx context.Context, selector string) (text string, ok bool, err error)
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// AddStyle injects a stylesheet into the current document.
	AddStyle(ctx context.Context, css string) error
	PrintPDF(ctx context.Context, opts PDFOptions) ([]byte, error)
	// SolveRecaptchas solves and injects every embedded recaptcha widget.
	SolveRecaptchas(ctx context.Context) error
}

// Session is a Page bound to its own browser process.
type Session interface {
	Page
	// Close releases the browser. Calling it again is a no-op.
	Close() error
}

// PDFOptions describes a printed page. Sizes are in inches.
type PDFOptions struct {
	PaperWidth      float64
	PaperHeight     float64
	MarginTop       float64
	MarginRight     float64
	MarginBottom    float64
	MarginLeft      float64
	PrintBackground bool
}

// A4 with the margins used for receipts (100px vertical, 50px horizontal).
var ReceiptPDF = PDFOptions{
	PaperWidth:      8.27,
	PaperHeight:     11.69,
	MarginTop:       100.0 / 96,
	MarginRight:     50.0 / 96,
	MarginBottom:    100.0 / 96,
	MarginLeft:      50.0 / 96,
	PrintBackground: true,
}

// Launcher opens isolated sessions.
type Launcher interface {
	Open(ctx context.Context) (Session, error)
}
