package dispatch

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/application/flow"
	"github.com/slickpay/epayrobot/internal/application/resolution"
	"github.com/slickpay/epayrobot/internal/domain/captcha"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/infrastructure/artifacts"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	"github.com/slickpay/epayrobot/internal/stage"
	"github.com/slickpay/epayrobot/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nextStageURL = "https://cib.satim.dz/payment/merchants/SONELGAZ/payment_fr.html?mdOrder=xyz"

type runnerFunc func(ctx context.Context, req transaction.Request) transaction.Result

func (f runnerFunc) Run(ctx context.Context, req transaction.Request) transaction.Result {
	return f(ctx, req)
}

type fixture struct {
	dispatcher *Dispatcher
	page       *testutil.MockSession
	launcher   *testutil.MockLauncher
	notifier   *testutil.MockNotifier
	locker     *testutil.MockLocker
}

func newFixture(t *testing.T, page *testutil.MockSession) *fixture {
	t.Helper()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	store, err := artifacts.NewStore(afero.NewMemMapFs(), config.ArtifactsConfig{Dir: "/srv/epay"}, "http://127.0.0.1:3000")
	require.NoError(t, err)

	solver := &testutil.MockSolver{PollResponses: []captcha.Response{{Status: 1, Request: "x7k2pq"}}}
	loop := resolution.NewLoop(solver, store, resolution.Config{
		PollDelay:       time.Millisecond,
		NotReadyBackoff: time.Millisecond,
		SettleDelay:     time.Millisecond,
		MaxAttempts:     3,
	}, metrics, zerolog.Nop())

	f := &fixture{
		page:     page,
		launcher: testutil.NewMockLauncher(page),
		notifier: &testutil.MockNotifier{},
		locker:   testutil.NewMockLocker(),
	}
	engine := flow.NewEngine(f.launcher, loop, store, f.notifier, flow.Config{
		Timeouts: stage.Timeouts{Navigation: 100 * time.Millisecond, Stage: 30 * time.Millisecond},
		Services: config.ServicesConfig{
			BillAURL:       "https://epayement.elit.dz/payementFacture.xhtml",
			BillBURL:       "https://fatourati.seaal.dz",
			BillANextHost:  "cib.satim.dz",
			OTPVisibleHost: "epay.poste.dz",
			ReceiptHost:    "epayement.elit.dz",
		},
		OTPDelay: time.Millisecond,
	}, metrics, zerolog.Nop())

	f.dispatcher = New(engine, f.locker, Config{FlowTimeout: 5 * time.Second}, metrics, zerolog.Nop())
	return f
}

func billPage() *testutil.MockSession {
	page := testutil.NewMockSession().Show(
		"#formprin",
		`[id="formprin:facture"]`,
		`[id="formprin:montant"]`,
		`[id="formprin:cle"]`,
		`.form-holder button[type="submit"]`,
		"#faceletsExampleCaptcha_CaptchaImage",
		`.modalite-check input[type="checkbox"]`,
		`[id="formprin:id"]`,
		".ui-commandlink",
	)
	page.ClickTargets[".ui-commandlink"] = nextStageURL
	return page
}

func authPage() *testutil.MockSession {
	page := testutil.NewMockSession().Show("#authForm", "#pwdInputMasked", "#submitPasswordButton")
	page.ClickTargets["#submitPasswordButton"] = "https://shop.example.dz/return?orderId=abc"
	return page
}

func TestDispatch_InvalidPayloadNeverOpensSession(t *testing.T) {
	tests := []struct {
		name     string
		payload  func() map[string]any
		wantPath string
		wantCode string
	}{
		{
			name: "missing otp",
			payload: func() map[string]any {
				p := testutil.OTPPayload()
				delete(p, "otp")
				return p
			},
			wantPath: "otp",
			wantCode: "required",
		},
		{
			name: "short otp",
			payload: func() map[string]any {
				p := testutil.OTPPayload()
				p["otp"] = "123"
				return p
			},
			wantPath: "otp",
			wantCode: "min",
		},
		{
			name: "card url is not a url",
			payload: func() map[string]any {
				p := testutil.CardPayload()
				p["url"] = "not a url"
				return p
			},
			wantPath: "url",
			wantCode: "url",
		},
		{
			name: "month length",
			payload: func() map[string]any {
				p := testutil.CardPayload()
				p["month"] = "123"
				return p
			},
			wantPath: "month",
			wantCode: "len",
		},
		{
			name: "pan as number",
			payload: func() map[string]any {
				p := testutil.CardPayload()
				p["iPAN"] = 6280581110000000
				return p
			},
			wantPath: "iPAN",
			wantCode: "type",
		},
		{
			name: "missing bill amount",
			payload: func() map[string]any {
				p := testutil.BillAPayload()
				delete(p, "montant")
				return p
			},
			wantPath: "montant",
			wantCode: "required",
		},
		{
			name: "negative bill key",
			payload: func() map[string]any {
				p := testutil.BillAPayload()
				p["cle"] = -9
				return p
			},
			wantPath: "cle",
			wantCode: "flexnum",
		},
		{
			name: "bill invoice object",
			payload: func() map[string]any {
				p := testutil.BillAPayload()
				p["facture"] = map[string]any{"id": 1}
				return p
			},
			wantPath: "facture",
			wantCode: "flexnum",
		},
		{
			name: "three part code",
			payload: func() map[string]any {
				p := testutil.BillBPayload()
				p["code"] = "1234 5678 9012"
				return p
			},
			wantPath: "code",
			wantCode: "fourpart",
		},
		{
			name:     "unknown service",
			payload:  func() map[string]any { return map[string]any{"service": "water"} },
			wantPath: "service",
			wantCode: "enum",
		},
		{
			name:     "unknown action",
			payload:  func() map[string]any { return map[string]any{"action": "refund"} },
			wantPath: "action",
			wantCode: "enum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, authPage())

			res := f.dispatcher.Dispatch(context.Background(), testutil.Payload(tt.payload()))

			assert.False(t, res.Success)
			assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
			require.NotEmpty(t, res.Fields)
			assert.Equal(t, tt.wantPath, res.Fields[0].Path)
			assert.Equal(t, tt.wantCode, res.Fields[0].Code)
			assert.Zero(t, f.launcher.Opens())
		})
	}
}

func TestDispatch_MalformedJSON(t *testing.T) {
	f := newFixture(t, authPage())

	res := f.dispatcher.Dispatch(context.Background(), []byte(`{"service":`))

	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
	assert.Equal(t, "body", res.Fields[0].Path)
	assert.Zero(t, f.launcher.Opens())
}

func TestDecode_LegacyServiceNames(t *testing.T) {
	f := newFixture(t, authPage())

	p := testutil.BillAPayload()
	p["service"] = "sonelgaz"
	req, err := f.dispatcher.Decode(testutil.Payload(p))
	require.NoError(t, err)
	assert.Equal(t, transaction.KindBillQuery, req.Kind())

	p = testutil.BillBPayload()
	p["service"] = "seaal"
	req, err = f.dispatcher.Decode(testutil.Payload(p))
	require.NoError(t, err)
	assert.Equal(t, transaction.KindCodeConfirmation, req.Kind())
}

func TestDecode_NumericBillFields(t *testing.T) {
	f := newFixture(t, authPage())

	req, err := f.dispatcher.Decode([]byte(`{"service":"billServiceA","facture":123,"montant":12.5,"cle":"9"}`))
	require.NoError(t, err)

	bill, ok := req.(transaction.BillQuery)
	require.True(t, ok)
	assert.Equal(t, "123", bill.Invoice.String())
	assert.Equal(t, "12.5", bill.Amount.String())
}

func TestDispatch_BillScenarioSuccess(t *testing.T) {
	f := newFixture(t, billPage())

	res := f.dispatcher.Dispatch(context.Background(), testutil.Payload(testutil.BillAPayload()))

	assert.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, nextStageURL, res.URL)
	assert.Equal(t, "12.50", f.page.TypedValue(`[id="formprin:montant"]`))
	assert.Equal(t, f.launcher.Opens(), f.page.Closes())
}

func TestDispatch_BillScenarioBanner(t *testing.T) {
	page := billPage()
	page.SetText(`[class="ui-messages-error-summary"]`, "Invalid key")
	f := newFixture(t, page)

	res := f.dispatcher.Dispatch(context.Background(), testutil.Payload(testutil.BillAPayload()))

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "Invalid key", res.Message)
	assert.Empty(t, f.page.TypedValue(`[id="formprin:id"]`))
	assert.Equal(t, 1, f.page.Closes())
}

func TestDispatch_OTPScenarioWithoutInvoice(t *testing.T) {
	f := newFixture(t, authPage())

	res := f.dispatcher.Dispatch(context.Background(), testutil.Payload(testutil.OTPPayload()))

	assert.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "https://shop.example.dz/return?orderId=abc", res.URL)
	assert.Zero(t, f.notifier.Calls())
	assert.Equal(t, 1, f.page.Closes())
}

func TestDispatch_DuplicateSubmissionIsRejected(t *testing.T) {
	f := newFixture(t, authPage())
	payload := testutil.OTPPayload()

	release, err := f.locker.Lock(context.Background(), payload["url"].(string))
	require.NoError(t, err)

	res := f.dispatcher.Dispatch(context.Background(), testutil.Payload(payload))
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.Zero(t, f.launcher.Opens())

	require.NoError(t, release(context.Background()))
	res = f.dispatcher.Dispatch(context.Background(), testutil.Payload(payload))
	assert.True(t, res.Success)
	assert.False(t, f.locker.Held(payload["url"].(string)))
}

func TestDispatch_FlowOutlivesCaller(t *testing.T) {
	var flowErr error
	d := New(runnerFunc(func(ctx context.Context, req transaction.Request) transaction.Result {
		flowErr = ctx.Err()
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return transaction.Succeeded("https://done.example")
	}), nil, Config{FlowTimeout: time.Minute}, observability.NewMetrics("test", prometheus.NewRegistry()), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Dispatch(ctx, testutil.Payload(testutil.CardPayload()))
	assert.True(t, res.Success)
	assert.NoError(t, flowErr)
}

func TestDispatch_RecoversRunnerPanic(t *testing.T) {
	d := New(runnerFunc(func(ctx context.Context, req transaction.Request) transaction.Result {
		panic("boom")
	}), nil, Config{}, observability.NewMetrics("test", prometheus.NewRegistry()), zerolog.Nop())

	res := d.Dispatch(context.Background(), testutil.Payload(testutil.CardPayload()))
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Contains(t, res.Message, "boom")
}
