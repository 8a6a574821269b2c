package testutil

import (
	"encoding/json"

	"github.com/slickpay/epayrobot/internal/domain/transaction"
)

// Payload builds a JSON request body from key/value pairs.
func Payload(fields map[string]any) []byte {
	b, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	return b
}

func CardPayload() map[string]any {
	return map[string]any{
		"url":   "https://cib.satim.dz/payment/merchants/SLICK/payment_fr.html?mdOrder=abc",
		"iPAN":  "6280581110000000",
		"iCVC":  "123",
		"month": "09",
		"year":  "2027",
		"iTEXT": "AMINE BENALI",
	}
}

func OTPPayload() map[string]any {
	return map[string]any{
		"action": "otp",
		"url":    "https://acs.satim.dz/acs/auth?id=42",
		"otp":    "123456",
	}
}

func BillAPayload() map[string]any {
	return map[string]any{
		"service": "billServiceA",
		"facture": "123",
		"montant": "12,50",
		"cle":     "9",
	}
}

func BillBPayload() map[string]any {
	return map[string]any{
		"service": "billServiceB",
		"code":    "1234 5678 9012 3456",
	}
}

func NewCardPayment() transaction.CardPayment {
	return transaction.CardPayment{
		URL:    "https://cib.satim.dz/payment/merchants/SLICK/payment_fr.html?mdOrder=abc",
		PAN:    "6280581110000000",
		CVC:    "123",
		Month:  "09",
		Year:   "2027",
		Holder: "AMINE BENALI",
	}
}

func NewOTPConfirmation(invoice string) transaction.OTPConfirmation {
	req := transaction.OTPConfirmation{
		URL: "https://acs.satim.dz/acs/auth?id=42",
		OTP: "123456",
	}
	if invoice != "" {
		id := transaction.NewFlexString(invoice)
		req.Invoice = &id
	}
	return req
}

func NewBillQuery() transaction.BillQuery {
	return transaction.BillQuery{
		Invoice: transaction.NewFlexString("123"),
		Amount:  transaction.NewFlexString("12,50"),
		Key:     transaction.NewFlexNumber(9),
	}
}
