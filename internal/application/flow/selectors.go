package flow

// SATIM card page.
const (
	cardForm        = "#formPayment"
	cardPAN         = "#iPAN"
	cardCVC         = "#iCVC"
	cardMonth       = "#month"
	cardYear        = "#year"
	cardHolder      = "#iTEXT"
	cardSubmit      = "#buttonPayment"
	paymentTable    = "#paymentDataTable"
	sendPasswordBtn = "#sendPasswordButton"
)

// OTP authentication page.
const (
	authForm           = "#authForm"
	otpVisibleInput    = "#pwdInputVisible"
	otpMaskedInput     = "#pwdInputMasked"
	otpSubmit          = "#submitPasswordButton"
	otpErrorBanner     = `[class="errorMessage"]`
	receiptLogo        = `[class="logo-text"]`
	receiptLogoKeyword = "Gaz"
	receiptHiddenStyle = "#form1 .form-group .col-sm-12 { display: none; }"
)

// Receipt table cells, in the order they are reported.
const (
	cellOperation   = `table[width="80%"] tr:nth-child(2) table[width="100%"] tr:nth-child(2) td:nth-child(1)`
	cellTransaction = `table[width="80%"] tr:nth-child(2) table[width="100%"] tr:nth-child(2) td:nth-child(2)`
	cellAuth        = `table[width="80%"] tr:nth-child(2) table tr:nth-child(2) td:nth-child(3)`
	cellInvoice     = `table[width="80%"] tr:nth-child(5) table tr:nth-child(2) td:nth-child(1)`
	cellAmount      = `table[width="80%"] tr:nth-child(5) table tr:nth-child(2) td:nth-child(2)`
	cellEBB         = `table[width="80%"] tr:nth-child(5) table tr:nth-child(2) td:nth-child(3)`
	cellDate        = `table[width="80%"] tr:nth-child(5) table tr:nth-child(2) td:nth-child(4)`
)

// Bill lookup with an image captcha.
const (
	billAForm        = "#formprin"
	billAInvoice     = `[id="formprin:facture"]`
	billAAmount      = `[id="formprin:montant"]`
	billAKey         = `[id="formprin:cle"]`
	billASubmit      = `.form-holder button[type="submit"]`
	billAErrorBanner = `[class="ui-messages-error-summary"]`
	billACaptchaImg  = "#faceletsExampleCaptcha_CaptchaImage"
	billAAccept      = `.modalite-check input[type="checkbox"]`
	billAAnswer      = `[id="formprin:id"]`
	billAConfirm     = ".ui-commandlink"
)

// Client code confirmation behind a reCAPTCHA.
const (
	billBForm          = "#myform"
	billBSubmit        = ".btndiv .center-div a:last-child"
	billBErrorBanner   = ".alert.alert-danger"
	billBErrorText     = ".alert.alert-danger strong"
	billBCheckbox      = "#checkbox"
	billBConfirmButton = ".button-group a:first-child"
)

var billBCodeFields = [4]string{
	`[id="code0"]`,
	`[id="code1"]`,
	`[id="code2"]`,
	`[id="code3"]`,
}
