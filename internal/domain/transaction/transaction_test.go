package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseService(t *testing.T) {
	tests := []struct {
		raw      string
		expected Service
		ok       bool
	}{
		{"", ServiceSATIM, true},
		{"billServiceA", ServiceBillA, true},
		{"billServiceB", ServiceBillB, true},
		{"sonelgaz", ServiceBillA, true},
		{"seaal", ServiceBillB, true},
		{"paypal", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s, ok := ParseService(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, s)
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "card_payment", KindCardPayment.String())
	assert.Equal(t, "otp_confirmation", KindOTPConfirmation.String())
	assert.Equal(t, "bill_query", KindBillQuery.String())
	assert.Equal(t, "code_confirmation", KindCodeConfirmation.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestFlexString_Unmarshal(t *testing.T) {
	var req BillQuery
	err := json.Unmarshal([]byte(`{"facture":"123","montant":12.5,"cle":null}`), &req)
	require.NoError(t, err)

	assert.Equal(t, "123", req.Invoice.String())
	assert.Equal(t, "123", req.Invoice.Value())
	assert.Equal(t, "12.5", req.Amount.String())
	assert.Equal(t, 12.5, req.Amount.Value())
	assert.False(t, req.Key.Present())
	assert.Nil(t, req.Key.Value())
}

func TestFlexString_UnsupportedType(t *testing.T) {
	var req BillQuery
	err := json.Unmarshal([]byte(`{"facture":true}`), &req)
	require.NoError(t, err)

	assert.True(t, req.Invoice.Present())
	assert.Equal(t, "", req.Invoice.String())
	assert.Equal(t, UnsupportedValue(true), req.Invoice.Value())
}

func TestFlexString_Marshal(t *testing.T) {
	out, err := json.Marshal(BillQuery{
		Invoice: NewFlexString("123"),
		Amount:  NewFlexNumber(9),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"facture":"123","montant":9,"cle":null}`, string(out))
}

func TestOTPConfirmation_InvoiceID(t *testing.T) {
	id := NewFlexNumber(4711)

	tests := []struct {
		name string
		req  OTPConfirmation
		want string
		ok   bool
	}{
		{"absent", OTPConfirmation{}, "", false},
		{"null", OTPConfirmation{Invoice: &FlexString{}}, "", false},
		{"number", OTPConfirmation{Invoice: &id}, "4711", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.req.InvoiceID()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeConfirmation_Parts(t *testing.T) {
	req := CodeConfirmation{Code: "12 345  678 9"}
	assert.Equal(t, []string{"12", "345", "678", "9"}, req.Parts())
}

func TestNormalizeDecimal(t *testing.T) {
	assert.Equal(t, "12.50", NormalizeDecimal("12,50"))
	assert.Equal(t, "12.50", NormalizeDecimal(" 12.50 "))
	assert.Equal(t, "7", NormalizeDecimal("7"))
}

func TestNormalizeDecimal_Idempotent(t *testing.T) {
	for _, in := range []string{"12,50", "1,2,3", "", "0,0", "100"} {
		once := NormalizeDecimal(in)
		assert.Equal(t, once, NormalizeDecimal(once), "input %q", in)
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:           "validation",
			err:            domainErrors.NewValidationError("otp", "required", "is required"),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "validation failed",
		},
		{
			name:           "upstream banner",
			err:            fmt.Errorf("submit: %w", &domainErrors.UpstreamRejection{Status: 400, Message: "Invalid key"}),
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "Invalid key",
		},
		{
			name:           "navigation status",
			err:            &domainErrors.UpstreamRejection{Status: 503, Message: "Service Unavailable"},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "Service Unavailable",
		},
		{
			name:           "solver terminal",
			err:            &domainErrors.SolverTerminalError{Code: "ERROR_ZERO_BALANCE"},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "2captcha error: ERROR_ZERO_BALANCE",
		},
		{
			name:           "timeout",
			err:            &domainErrors.AutomationTimeout{Stage: "wait", Selector: "#formprin"},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    `wait: waiting for "#formprin": timed out`,
		},
		{
			name:           "in progress",
			err:            domainErrors.ErrTransactionInProgress,
			expectedStatus: http.StatusConflict,
			expectedMsg:    "transaction already in progress",
		},
		{
			name:           "pool exhausted",
			err:            fmt.Errorf("open: %w", domainErrors.ErrSessionPoolFull),
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "browser session pool exhausted",
		},
		{
			name:           "unexpected",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "boom",
		},
		{
			name:           "nil",
			err:            nil,
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "Server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromError(tt.err)
			assert.False(t, r.Success)
			assert.Equal(t, tt.expectedStatus, r.Status)
			assert.Equal(t, tt.expectedMsg, r.Message)
		})
	}
}

func TestFromError_KeepsContextAndFields(t *testing.T) {
	r := FromError(&domainErrors.UpstreamRejection{
		Status:  400,
		Message: "Wrong password",
		Context: map[string]string{"url": "https://acs.example/auth"},
	})
	assert.Equal(t, "https://acs.example/auth", r.Context["url"])

	r = FromError(&domainErrors.ValidationError{Fields: []domainErrors.FieldError{{Path: "url"}, {Path: "otp"}}})
	assert.Len(t, r.Fields, 2)
}

func TestSucceeded(t *testing.T) {
	r := Succeeded("https://cib.satim.dz/pay")
	assert.True(t, r.Success)
	assert.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, "https://cib.satim.dz/pay", r.URL)

	r = SucceededWithFile("https://epayement.elit.dz/ok", "http://host/invoices/1.pdf")
	assert.Equal(t, "http://host/invoices/1.pdf", r.File)
}

func TestResult_Envelope(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := SucceededWithFile("https://cib.satim.dz/ok", "http://127.0.0.1:3000/invoices/1.pdf").Envelope()
		assert.Equal(t, Envelope{
			Success: 1,
			Status:  http.StatusOK,
			URL:     "https://cib.satim.dz/ok",
			File:    "http://127.0.0.1:3000/invoices/1.pdf",
		}, env)
	})

	t.Run("rejection carries resume url", func(t *testing.T) {
		r := FromError(&domainErrors.UpstreamRejection{
			Status:  http.StatusBadRequest,
			Message: "Wrong password",
			Context: map[string]string{"url": "https://acs.satim.dz/auth"},
		})
		env := r.Envelope()
		assert.Equal(t, 0, env.Success)
		assert.Equal(t, 1, env.Error)
		assert.Equal(t, http.StatusBadRequest, env.Status)
		assert.Equal(t, "Wrong password", env.Message)
		assert.Equal(t, "https://acs.satim.dz/auth", env.URL)
	})

	t.Run("validation lists fields", func(t *testing.T) {
		env := FromError(domainErrors.NewValidationError("otp", "required", "is required")).Envelope()
		assert.Equal(t, http.StatusUnprocessableEntity, env.Status)
		require.Len(t, env.Messages, 1)
		assert.Equal(t, "otp", env.Messages[0].Path)
	})

	t.Run("zero result is a server error", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, Result{}.Envelope().Status)
	})

	t.Run("forbidden", func(t *testing.T) {
		env := Forbidden().Envelope()
		assert.Equal(t, http.StatusForbidden, env.Status)
		assert.Equal(t, "403 Forbidden", env.Message)
	})
}
