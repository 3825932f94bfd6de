package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-cli/internal/chat"
	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/relevance"
	"github.com/sells-group/risk-cli/internal/resilience"
	"github.com/sells-group/risk-cli/internal/scorer"
	"github.com/sells-group/risk-cli/internal/store"
	"github.com/sells-group/risk-cli/pkg/anthropic"
)

const arCSV = `CustomerID,Name,Email,PhoneNumber,InvoiceAmount,InvoiceDate,DueDate,PaymentDate,AvgOrders60Days,RemindersCount,CreditLimit,CreditUsed
C-1,Acme Corp,ap@acme.com,555-0100,1500,2023-12-01,2024-01-01,,2,3,10000,9000
C-2,Globex,billing@globex.com,555-0101,2500.50,2024-03-01,2024-03-31,2024-03-15,14,0,10000,1000
C-3,Initech,ar@initech.com,555-0102,1000,2024-01-01,2024-02-01,,14,2,10000,5000
`

var fixedNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

type fakeResponder struct {
	chunks []string
	err    error
}

func (f fakeResponder) Ask(_ context.Context, _ []anthropic.Message, _ string, _ []model.ClientRecord, onToken func(string) error) (string, error) {
	for _, c := range f.chunks {
		if err := onToken(c); err != nil {
			return "", err
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return strings.Join(f.chunks, ""), nil
}

func newTestServer(t *testing.T, responder chat.Responder, opts Options) (*Server, http.Handler) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	s := New(st, responder, fetcher.New(fetcher.Options{RatePerSec: 100}), relevance.Filterer{}, opts)
	s.now = func() time.Time { return fixedNow }
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func createBatch(t *testing.T, h http.Handler) model.Batch {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/v1/batches?now=2024-04-01", arCSV)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[model.Batch](t, rr)
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rr)["error"]
}

func TestHealth(t *testing.T) {
	s, h := newTestServer(t, nil, Options{})
	breakers := resilience.NewBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	breakers.Get("erp.example.com")
	s.WithBreakers(breakers)

	rr := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	body := decode[map[string]any](t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"erp.example.com": "closed"}, body["breakers"])
}

func TestCORS(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFoundIsJSON(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	rr := do(t, h, http.MethodGet, "/v2/nothing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not found", errorBody(t, rr))
}

func TestCreateBatch_FromBody(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, UploadSource, b.Source)
	assert.Equal(t, 3, b.Count)
	assert.Equal(t, scorer.ConfigHash(), b.ConfigHash)
	assert.True(t, b.ScoredAt.Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, b.Records)
}

func TestCreateBatch_Named(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	rr := do(t, h, http.MethodPost, "/v1/batches?name=march-ar.csv", arCSV)
	require.Equal(t, http.StatusCreated, rr.Code)
	b := decode[model.Batch](t, rr)
	assert.Equal(t, "march-ar.csv", b.Source)
	assert.True(t, b.ScoredAt.Equal(fixedNow))
}

func TestCreateBatch_InvalidNow(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	rr := do(t, h, http.MethodPost, "/v1/batches?now=yesterday", arCSV)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, errorBody(t, rr), "invalid now")
}

func TestCreateBatch_TooLarge(t *testing.T) {
	_, h := newTestServer(t, nil, Options{MaxUploadBytes: 16})
	rr := do(t, h, http.MethodPost, "/v1/batches", arCSV)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestCreateBatch_RejectsLocalSource(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	rr := do(t, h, http.MethodPost, "/v1/batches?source=/etc/passwd", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "source must be an http, https or ftp URL", errorBody(t, rr))
}

func TestCreateBatch_RemoteSource(t *testing.T) {
	erp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exports/ar.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(arCSV))
	}))
	defer erp.Close()

	_, h := newTestServer(t, nil, Options{})
	src := erp.URL + "/exports/ar.csv"
	rr := do(t, h, http.MethodPost, "/v1/batches?now=2024-04-01&source="+src, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	b := decode[model.Batch](t, rr)
	assert.Equal(t, src, b.Source)
	assert.Equal(t, 3, b.Count)

	rr = do(t, h, http.MethodPost, "/v1/batches?source="+erp.URL+"/missing.csv", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "failed to load source", errorBody(t, rr))
}

func TestListBatches(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})

	rr := do(t, h, http.MethodGet, "/v1/batches", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"batches":[]}`, rr.Body.String())

	created := createBatch(t, h)
	rr = do(t, h, http.MethodGet, "/v1/batches?limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Batches []model.Batch `json:"batches"`
	}](t, rr)
	require.Len(t, body.Batches, 1)
	assert.Equal(t, created.ID, body.Batches[0].ID)
	assert.Empty(t, body.Batches[0].Records)

	rr = do(t, h, http.MethodGet, "/v1/batches?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

type batchBody struct {
	ID      string               `json:"id"`
	Count   int                  `json:"record_count"`
	Records []model.ClientRecord `json:"records"`
	Matched int                  `json:"matched"`
}

func TestGetBatch(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodGet, "/v1/batches/"+b.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[batchBody](t, rr)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, 3, got.Matched)
	require.Len(t, got.Records, 3)
	assert.Equal(t, "C-1", got.Records[0].ID)
	assert.Equal(t, 91, got.Records[0].DaysPastDue)
	assert.Equal(t, model.RiskHigh, got.Records[0].RiskCategory)
}

func TestGetBatch_Filters(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	tests := []struct {
		query string
		ids   []string
	}{
		{"category=high", []string{"C-1"}},
		{"category=All", []string{"C-1", "C-2", "C-3"}},
		{"search=GLOBEX", []string{"C-2"}},
		{"search=555-0102", []string{"C-3"}},
		{"dpd_min=30&dpd_max=90", []string{"C-3"}},
		{"util_min=40", []string{"C-1", "C-3"}},
		{"due_from=2024-02-01&due_to=2024-03-31", []string{"C-2", "C-3"}},
		{"search=nobody", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, "/v1/batches/"+b.ID+"?"+tt.query, "")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			got := decode[batchBody](t, rr)
			ids := []string{}
			for _, r := range got.Records {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.ids, ids)
			assert.Equal(t, len(tt.ids), got.Matched)
			assert.Equal(t, 3, got.Count)
		})
	}
}

func TestGetBatch_BadFilter(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	for _, q := range []string{"dpd_min=x", "category=severe", "due_to=someday"} {
		rr := do(t, h, http.MethodGet, "/v1/batches/"+b.ID+"?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestGetBatch_NotFound(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	rr := do(t, h, http.MethodGet, "/v1/batches/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "batch not found", errorBody(t, rr))
}

func TestDeleteBatch(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodDelete, "/v1/batches/"+b.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodDelete, "/v1/batches/"+b.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, h, http.MethodGet, "/v1/batches/"+b.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSummary(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodGet, "/v1/batches/"+b.ID+"/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Summary struct {
			TotalClients int    `json:"total_clients"`
			TotalAR      string `json:"total_ar"`
			Overdue90    int    `json:"overdue_90"`
			Overdue60    int    `json:"overdue_60"`
		} `json:"summary"`
		Alerts          []model.ClientRecord `json:"alerts"`
		CollectionQueue []model.ClientRecord `json:"collection_queue"`
		TopPerformers   []model.ClientRecord `json:"top_performers"`
	}](t, rr)

	assert.Equal(t, 3, body.Summary.TotalClients)
	assert.Equal(t, "5000.5", body.Summary.TotalAR)
	assert.Equal(t, 1, body.Summary.Overdue90)
	assert.Equal(t, 1, body.Summary.Overdue60)
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, "C-1", body.Alerts[0].ID)
	require.Len(t, body.TopPerformers, 1)
	assert.Equal(t, "C-2", body.TopPerformers[0].ID)
}

func TestQuery(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodPost, "/v1/batches/"+b.ID+"/query", `{"question":"tell me about initech"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[relevance.Result](t, rr)
	assert.Equal(t, relevance.RuleName, res.Rule)
	require.Len(t, res.Clients, 1)
	assert.Equal(t, "C-3", res.Clients[0].ID)

	rr = do(t, h, http.MethodPost, "/v1/batches/"+b.ID+"/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuery_EmptyQuestionUsesDefaultRule(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	for _, body := range []string{`{"question":""}`, `{"question":"  "}`, `{}`} {
		rr := do(t, h, http.MethodPost, "/v1/batches/"+b.ID+"/query", body)
		require.Equal(t, http.StatusOK, rr.Code, body)
		res := decode[relevance.Result](t, rr)
		assert.Equal(t, relevance.RuleDefault, res.Rule, body)
		require.Len(t, res.Clients, 3, body)
		assert.Equal(t, "C-1", res.Clients[0].ID, body)
	}
}

func TestChat_StreamsEvents(t *testing.T) {
	_, h := newTestServer(t, chat.LocalResponder{}, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodPost, "/v1/batches/"+b.ID+"/chat",
		`{"messages":[{"role":"assistant","content":"Hi!"},{"role":"user","content":"Show me high risk clients"}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	body := rr.Body.String()
	assert.True(t, strings.HasPrefix(body, `data: {"text":"You have 1 high-risk clients`), body)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"), body)
}

func TestChat_MultipleChunks(t *testing.T) {
	_, h := newTestServer(t, fakeResponder{chunks: []string{"Acme ", "is late."}}, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodPost, "/v1/batches/"+b.ID+"/chat", `{"messages":[{"role":"user","content":"acme?"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "data: {\"text\":\"Acme \"}\n\ndata: {\"text\":\"is late.\"}\n\ndata: [DONE]\n\n", rr.Body.String())
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{chat.ErrRateLimited, http.StatusTooManyRequests, MsgRateLimited},
		{chat.ErrUsageLimit, http.StatusPaymentRequired, MsgUsageLimit},
		{resilience.ErrCircuitOpen, http.StatusServiceUnavailable, MsgUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, MsgUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			_, h := newTestServer(t, fakeResponder{err: tt.err}, Options{})
			b := createBatch(t, h)
			rr := do(t, h, http.MethodPost, "/v1/batches/"+b.ID+"/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
			assert.Equal(t, tt.msg, errorBody(t, rr))
		})
	}
}

func TestChat_ErrorMidStream(t *testing.T) {
	_, h := newTestServer(t, fakeResponder{chunks: []string{"partial"}, err: errors.New("reset")}, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodPost, "/v1/batches/"+b.ID+"/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `data: {"text":"partial"}`)
	assert.Contains(t, rr.Body.String(), `data: {"error":"AI service temporarily unavailable"}`)
	assert.NotContains(t, rr.Body.String(), "[DONE]")
}

func TestChat_BadRequests(t *testing.T) {
	_, h := newTestServer(t, chat.LocalResponder{}, Options{})
	b := createBatch(t, h)

	for _, body := range []string{
		`{"messages":[]}`,
		`{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`,
		`{"messages":[{"role":"user","content":"   "}]}`,
		`[]`,
	} {
		rr := do(t, h, http.MethodPost, "/v1/batches/"+b.ID+"/chat", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}

	rr := do(t, h, http.MethodPost, "/v1/batches/missing/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestChat_Disabled(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)
	rr := do(t, h, http.MethodPost, "/v1/batches/"+b.ID+"/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestExport(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodGet, "/v1/batches/"+b.ID+"/export?columns=id,name,risk_category&category=low", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="credit_risk_export_2024-04-01.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "Customer ID,Name,Risk Category\nC-2,Globex,Low\n", rr.Body.String())
}

func TestExport_AllColumns(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodGet, "/v1/batches/"+b.ID+"/export", "")
	require.Equal(t, http.StatusOK, rr.Code)
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Customer ID,Name,Email,"))
}

// overLimitCSV holds a client at 150% utilization and one 456 days past
// due at 2024-04-01, both outside the default filter ranges.
const overLimitCSV = `CustomerID,Name,Email,PhoneNumber,InvoiceAmount,InvoiceDate,DueDate,PaymentDate,AvgOrders60Days,RemindersCount,CreditLimit,CreditUsed
O-1,Overdrawn LLC,ap@overdrawn.com,555-0200,4000,2024-02-01,2024-03-01,,3,4,10000,15000
O-2,Ancient Debt Co,ap@ancient.com,555-0201,900,2022-12-01,2023-01-01,,1,6,10000,2000
O-3,Healthy Inc,ap@healthy.com,555-0202,300,2024-03-01,2024-03-31,2024-03-20,20,0,10000,500
`

func TestBatchViewAndExport_KeepRecordsOutsideDefaultRanges(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	rr := do(t, h, http.MethodPost, "/v1/batches?now=2024-04-01", overLimitCSV)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	b := decode[model.Batch](t, rr)

	rr = do(t, h, http.MethodGet, "/v1/batches/"+b.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[batchBody](t, rr)
	assert.Equal(t, 3, got.Matched)
	require.Len(t, got.Records, 3)
	assert.Equal(t, 150, got.Records[0].CreditUtilization)
	assert.Equal(t, 456, got.Records[1].DaysPastDue)

	rr = do(t, h, http.MethodGet, "/v1/batches/"+b.ID+"/export?columns=id", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Customer ID\nO-1\nO-2\nO-3\n", rr.Body.String())

	// Explicit ranges still filter.
	rr = do(t, h, http.MethodGet, "/v1/batches/"+b.ID+"/export?columns=id&util_max=100&dpd_max=180", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Customer ID\nO-3\n", rr.Body.String())
}

func TestExport_UnknownColumn(t *testing.T) {
	_, h := newTestServer(t, nil, Options{})
	b := createBatch(t, h)

	rr := do(t, h, http.MethodGet, "/v1/batches/"+b.ID+"/export?columns=id,shoe_size", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, errorBody(t, rr), "shoe_size")
}
