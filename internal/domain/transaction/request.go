package transaction

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Service identifies the remote provider a payload targets. An absent
// service selects the SATIM card/OTP flows.
type Service string

const (
	ServiceSATIM Service = ""
	ServiceBillA Service = "billServiceA"
	ServiceBillB Service = "billServiceB"
)

// Legacy provider names still sent by older front-ends.
var serviceAliases = map[string]Service{
	"sonelgaz": ServiceBillA,
	"seaal":    ServiceBillB,
}

// ParseService resolves a raw service name, accepting legacy aliases.
func ParseService(raw string) (Service, bool) {
	switch s := Service(raw); s {
	case ServiceSATIM, ServiceBillA, ServiceBillB:
		return s, true
	}
	if s, ok := serviceAliases[raw]; ok {
		return s, true
	}
	return "", false
}

// Action selects a step of the SATIM flows.
type Action string

const (
	ActionCard Action = ""
	ActionOTP  Action = "otp"
)

// Kind is the closed set of flow variants a request can be routed to.
type Kind int

const (
	KindCardPayment Kind = iota + 1
	KindOTPConfirmation
	KindBillQuery
	KindCodeConfirmation
)

func (k Kind) String() string {
	switch k {
	case KindCardPayment:
		return "card_payment"
	case KindOTPConfirmation:
		return "otp_confirmation"
	case KindBillQuery:
		return "bill_query"
	case KindCodeConfirmation:
		return "code_confirmation"
	default:
		return "unknown"
	}
}

// Request is implemented by every payload variant.
type Request interface {
	Kind() Kind
	isRequest()
}

// CardPayment submits card details on a SATIM payment page.
type CardPayment struct {
	URL    string `json:"url" validate:"required,url"`
	PAN    string `json:"iPAN" validate:"required,min=12"`
	CVC    string `json:"iCVC" validate:"required,min=3"`
	Month  string `json:"month" validate:"required,len=2"`
	Year   string `json:"year" validate:"required,len=4"`
	Holder string `json:"iTEXT" validate:"required,min=3"`
}

// OTPConfirmation resumes a card payment with the one-time password.
type OTPConfirmation struct {
	URL     string      `json:"url" validate:"required,url"`
	OTP     string      `json:"otp" validate:"required,min=5"`
	Invoice *FlexString `json:"invoice,omitempty"`
}

// InvoiceID returns the caller-supplied invoice id, if any.
func (r OTPConfirmation) InvoiceID() (string, bool) {
	if r.Invoice == nil || !r.Invoice.Present() {
		return "", false
	}
	id := r.Invoice.String()
	return id, id != ""
}

// BillQuery looks up a utility bill behind an image captcha.
type BillQuery struct {
	Invoice FlexString `json:"facture" validate:"required,flexnum"`
	Amount  FlexString `json:"montant" validate:"required,flexnum"`
	Key     FlexString `json:"cle" validate:"required,flexnum"`
}

// CodeConfirmation submits a four-part client code behind a reCAPTCHA.
type CodeConfirmation struct {
	Code string `json:"code" validate:"required,fourpart"`
}

// Parts splits the code into its space separated groups.
func (r CodeConfirmation) Parts() []string {
	return strings.Fields(r.Code)
}

func (CardPayment) Kind() Kind      { return KindCardPayment }
func (OTPConfirmation) Kind() Kind  { return KindOTPConfirmation }
func (BillQuery) Kind() Kind        { return KindBillQuery }
func (CodeConfirmation) Kind() Kind { return KindCodeConfirmation }

func (CardPayment) isRequest()      {}
func (OTPConfirmation) isRequest()  {}
func (BillQuery) isRequest()        {}
func (CodeConfirmation) isRequest() {}

type flexKind int

const (
	flexAbsent flexKind = iota
	flexString
	flexNumber
	flexOther
)

// FlexString accepts either a JSON string or a JSON number.
type FlexString struct {
	kind   flexKind
	str    string
	number float64
}

// NewFlexString builds a string-valued FlexString.
func NewFlexString(s string) FlexString {
	return FlexString{kind: flexString, str: s}
}

// NewFlexNumber builds a number-valued FlexString.
func NewFlexNumber(n float64) FlexString {
	return FlexString{kind: flexNumber, number: n}
}

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = FlexString{}
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = NewFlexString(s)
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			*f = FlexString{kind: flexOther}
			return nil
		}
		*f = NewFlexNumber(n)
	}
	return nil
}

func (f FlexString) MarshalJSON() ([]byte, error) {
	switch f.kind {
	case flexString:
		return json.Marshal(f.str)
	case flexNumber:
		return json.Marshal(f.number)
	default:
		return []byte("null"), nil
	}
}

// Present reports whether the field was supplied with a non-null value.
func (f FlexString) Present() bool {
	return f.kind != flexAbsent
}

// UnsupportedValue is what Value reports for a JSON type other than string
// or number.
type UnsupportedValue bool

// Value exposes the decoded value for validation: nil when absent, a string,
// a float64, or UnsupportedValue.
func (f FlexString) Value() any {
	switch f.kind {
	case flexString:
		return f.str
	case flexNumber:
		return f.number
	case flexOther:
		return UnsupportedValue(true)
	default:
		return nil
	}
}

func (f FlexString) String() string {
	switch f.kind {
	case flexString:
		return f.str
	case flexNumber:
		return strconv.FormatFloat(f.number, 'f', -1, 64)
	default:
		return ""
	}
}
