package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/ingest"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/portfolio"
	"github.com/sells-group/risk-cli/internal/scorer"
	"github.com/sells-group/risk-cli/internal/store"
)

// UploadSource is the batch source recorded for request-body uploads
// without a name parameter.
const UploadSource = "upload"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.breakers != nil {
		resp["breakers"] = s.breakers.States()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	now := s.now()
	if v := q.Get("now"); v != "" {
		t, ok := scorer.ParseDate(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid now: expected YYYY-MM-DD")
			return
		}
		now = t
	}

	var (
		records []model.ClientRecord
		source  string
		err     error
	)
	if src := strings.TrimSpace(q.Get("source")); src != "" {
		records, err = s.loadRemote(r, src, now)
		if err != nil {
			var he *httpError
			if errors.As(err, &he) {
				writeError(w, he.status, he.msg)
				return
			}
			zap.L().Error("server: load source", zap.String("source", src), zap.Error(err))
			writeError(w, http.StatusBadGateway, "failed to load source")
			return
		}
		source = src
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("upload exceeds %d MB", s.opts.MaxUploadBytes>>20))
				return
			}
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		records, err = ingest.ParseReader(r.Context(), bytes.NewReader(body), now)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid csv")
			return
		}
		source = q.Get("name")
		if source == "" {
			source = UploadSource
		}
	}

	b := &model.Batch{
		Source:     source,
		ScoredAt:   now,
		ConfigHash: scorer.ConfigHash(),
		Records:    records,
	}
	if err := s.store.SaveBatch(r.Context(), b); err != nil {
		zap.L().Error("server: save batch", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save batch")
		return
	}

	zap.L().Info("batch scored",
		zap.String("batch_id", b.ID),
		zap.String("source", source),
		zap.Int("records", b.Count),
	)
	writeJSON(w, http.StatusCreated, b.BatchMeta())
}

type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func (s *Server) loadRemote(r *http.Request, src string, now time.Time) ([]model.ClientRecord, error) {
	if s.source == nil {
		return nil, &httpError{http.StatusBadRequest, "remote sources are disabled"}
	}
	if fetcher.KindOf(src) == fetcher.KindLocal {
		return nil, &httpError{http.StatusBadRequest, "source must be an http, https or ftp URL"}
	}
	sheet := 0
	if v := r.URL.Query().Get("sheet"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &httpError{http.StatusBadRequest, "invalid sheet"}
		}
		sheet = n
	}
	return ingest.LoadSource(r.Context(), s.source, src, sheet, now)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BatchFilter{Source: q.Get("source")}
	var err error
	if filter.Limit, err = intParam(q, "limit", 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = intParam(q, "offset", 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batches, err := s.store.ListBatches(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list batches", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}
	if batches == nil {
		batches = []model.Batch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

// loadBatch fetches the batch named by the {id} route parameter, writing
// an error response and returning false if it cannot.
func (s *Server) loadBatch(w http.ResponseWriter, r *http.Request) (*model.Batch, bool) {
	id := chi.URLParam(r, "id")
	b, err := s.store.GetBatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return nil, false
	}
	if err != nil {
		zap.L().Error("server: get batch", zap.String("batch_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return nil, false
	}
	return b, true
}

type batchResponse struct {
	model.Batch
	Records []model.ClientRecord `json:"records"`
	Matched int                  `json:"matched"`
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	crit, err := criteriaFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, ok := s.loadBatch(w, r)
	if !ok {
		return
	}
	matched := nonNil(applyCriteria(b.Records, crit))
	writeJSON(w, http.StatusOK, batchResponse{Batch: b.BatchMeta(), Records: matched, Matched: len(matched)})
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.store.DeleteBatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		zap.L().Error("server: delete batch", zap.String("batch_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete batch")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type summaryResponse struct {
	Summary         portfolio.Summary    `json:"summary"`
	Alerts          []model.ClientRecord `json:"alerts"`
	CollectionQueue []model.ClientRecord `json:"collection_queue"`
	TopPerformers   []model.ClientRecord `json:"top_performers"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Summary:         portfolio.Summarize(b.Records),
		Alerts:          nonNil(portfolio.Alerts(b.Records, portfolio.DefaultAlertsLimit)),
		CollectionQueue: nonNil(portfolio.CollectionQueue(b.Records, portfolio.DefaultPanelListSize)),
		TopPerformers:   nonNil(portfolio.Performers(b.Records, portfolio.DefaultPanelListSize)),
	})
}

// applyCriteria filters only when a query parameter changed the defaults,
// so over-limit and long-overdue records are listed unless asked otherwise.
func applyCriteria(records []model.ClientRecord, crit portfolio.Criteria) []model.ClientRecord {
	if !crit.Active() {
		return records
	}
	return portfolio.Apply(records, crit)
}

func nonNil(records []model.ClientRecord) []model.ClientRecord {
	if records == nil {
		return []model.ClientRecord{}
	}
	return records
}

type queryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	b, ok := s.loadBatch(w, r)
	if !ok {
		return
	}

	res := s.filter.Filter(req.Question, b.Records)
	if res.Clients == nil {
		res.Clients = []model.ClientRecord{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keys := ingest.ColumnKeys()
	if v := strings.TrimSpace(q.Get("columns")); v != "" {
		keys = splitList(v)
	}
	crit, err := criteriaFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, ok := s.loadBatch(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := ingest.WriteCSV(&buf, applyCriteria(b.Records, crit), keys); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ingest.ExportFilename(s.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, eris.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func dateParam(q url.Values, name string) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	t, ok := scorer.ParseDate(v)
	if !ok {
		return nil, eris.Errorf("invalid %s: %q", name, v)
	}
	return &t, nil
}

// criteriaFromQuery builds a filter from search, category, dpd_min,
// dpd_max, util_min, util_max, due_from and due_to. Absent parameters keep
// their defaults.
func criteriaFromQuery(q url.Values) (portfolio.Criteria, error) {
	c := portfolio.DefaultCriteria()
	c.Search = strings.TrimSpace(q.Get("search"))

	if v := strings.TrimSpace(q.Get("category")); v != "" && !strings.EqualFold(v, portfolio.CategoryAll) {
		cat, ok := model.ParseRiskCategory(v)
		if !ok {
			return c, eris.Errorf("invalid category: %q", v)
		}
		c.Category = string(cat)
	}

	var err error
	if c.DaysPastDueMin, err = intParam(q, "dpd_min", c.DaysPastDueMin); err != nil {
		return c, err
	}
	if c.DaysPastDueMax, err = intParam(q, "dpd_max", c.DaysPastDueMax); err != nil {
		return c, err
	}
	if c.UtilizationMin, err = intParam(q, "util_min", c.UtilizationMin); err != nil {
		return c, err
	}
	if c.UtilizationMax, err = intParam(q, "util_max", c.UtilizationMax); err != nil {
		return c, err
	}
	if c.DueFrom, err = dateParam(q, "due_from"); err != nil {
		return c, err
	}
	if c.DueTo, err = dateParam(q, "due_to"); err != nil {
		return c, err
	}
	return c, nil
}
