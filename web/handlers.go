package web

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/nyaruka/gocommon/dbutil"
	"github.com/nyaruka/partition"
	"github.com/pkg/errors"
	validator "gopkg.in/go-playground/validator.v9"
)

const maxRequestBytes int64 = 1048576

var validate = validator.New()

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

type listForm struct {
	Limit   int      `schema:"limit"    validate:"gte=0,lte=1000"`
	OrderBy []string `schema:"order_by"`
}

// query params which aren't column filters
var listParams = map[string]bool{"limit": true, "order_by": true}

type resolveResponse struct {
	Model string `json:"model"`
	Table string `json:"table"`
}

type createResponse struct {
	ID any `json:"id"`
}

type countResponse struct {
	Rows int64 `json:"rows"`
}

type listResponse struct {
	Table   string       `json:"table"`
	Results []recordJSON `json:"results"`
}

// POST /models/{model}/resolve with a record body, returns the partition table the record belongs in
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	m, rec, err := s.readModelAndRecord(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	table, err := m.Resolve(rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &resolveResponse{Model: m.Name(), Table: table.String()})
}

// POST /models/{model}/records with a record body, inserts it into its partition
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	m, rec, err := s.readModelAndRecord(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.rt.Router.Create(r.Context(), m, rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, &createResponse{ID: id})
}

// PATCH /models/{model}/records with a body like {"current": {...}, "changes": {...}}
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	m, err := s.rt.Models.Get(chi.URLParam(r, "model"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	current, err := readRecordAt(body, "current")
	if err != nil {
		s.writeError(w, r, &requestError{err})
		return
	}
	changes, err := readRecordAt(body, "changes")
	if err != nil {
		s.writeError(w, r, &requestError{err})
		return
	}

	n, err := s.rt.Router.Update(r.Context(), m, current, changes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &countResponse{Rows: n})
}

// DELETE /models/{model}/records with the loaded record as the body
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	m, rec, err := s.readModelAndRecord(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	n, err := s.rt.Router.Delete(r.Context(), m, rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &countResponse{Rows: n})
}

// GET /models/{model}/records?region=us&date=2024-01-15&order_by=-id&limit=10, other params are equality filters
// which must include the partition keys. Ordering is by model columns, descending if prefixed with -.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	m, err := s.rt.Models.Get(chi.URLParam(r, "model"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	form := &listForm{}
	query := r.URL.Query()
	if err := decoder.Decode(form, query); err != nil {
		s.writeError(w, r, &requestError{errors.Wrap(err, "invalid query")})
		return
	}
	if err := validate.Struct(form); err != nil {
		s.writeError(w, r, err)
		return
	}

	keys := make([]string, 0, len(query))
	for key := range query {
		if !listParams[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	filters := make(partition.Record, 0, len(keys))
	for _, key := range keys {
		filters = filters.With(key, query.Get(key))
	}

	rel, err := s.rt.Router.Scope(m, filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	for _, col := range filters {
		rel = rel.Where(col.Name, col.Value)
	}
	for _, o := range form.OrderBy {
		column, desc := strings.CutPrefix(o, "-")
		rel = rel.Sort(column, desc)
	}
	if form.Limit > 0 {
		rel = rel.Limit(form.Limit)
	}

	rows, err := rel.All(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results := make([]recordJSON, len(rows))
	for i, row := range rows {
		results[i] = recordJSON(row)
	}

	writeJSON(w, http.StatusOK, &listResponse{Table: rel.Table().String(), Results: results})
}

func (s *Server) readModelAndRecord(r *http.Request) (*partition.Model, partition.Record, error) {
	m, err := s.rt.Models.Get(chi.URLParam(r, "model"))
	if err != nil {
		return nil, nil, err
	}

	body, err := readBody(r)
	if err != nil {
		return nil, nil, err
	}

	rec, err := readRecord(body)
	if err != nil {
		return nil, nil, &requestError{err}
	}
	return m, rec, nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return nil, &requestError{errors.Wrap(err, "unable to read request body")}
	}
	return body, nil
}

// an error caused by a malformed request
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func isRequestError(err error) bool {
	var rErr *requestError
	return errors.As(err, &rErr)
}

// writes an error response with a status code which depends on the kind of error
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var vErrs validator.ValidationErrors

	switch {
	case errors.Is(err, partition.ErrUnknownModel), errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	case errors.Is(err, partition.ErrPrefetchFailed):
		status = http.StatusServiceUnavailable
	case dbutil.IsUniqueViolation(err):
		status = http.StatusConflict
	case errors.As(err, &vErrs),
		errors.Is(err, partition.ErrMissingPartitionKey),
		errors.Is(err, partition.ErrInvalidPartitionValue),
		errors.Is(err, partition.ErrMissingPrimaryKey),
		errors.Is(err, partition.ErrPartitionChanged),
		errors.Is(err, partition.ErrUnknownColumn),
		isRequestError(err):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}

	log := slog.With("comp", "server", "url", r.URL.String(), "method", r.Method, "resp_status", status)
	if status >= 500 {
		log.Error("error handling request", "error", err)
	} else {
		log.Debug("request rejected", "error", err)
	}

	writeJSON(w, status, &errorResponse{Error: err.Error()})
}
