package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/device-services/dsc/internal/record"
)

// recordView is the wire representation of a record.
type recordView struct {
	ID       string            `json:"id"`
	Fields   map[string]string `json:"fields"`
	Dirty    bool              `json:"dirty"`
	Modified []string          `json:"modified,omitempty"`
}

func viewOf(rec *record.Record) recordView {
	return recordView{
		ID:       rec.ID(),
		Fields:   rec.Fields(),
		Dirty:    rec.Dirty(),
		Modified: rec.Modified(),
	}
}

// sourceCollection resolves the {source} path variable; unknown sources are
// a 404.
func (s *Server) sourceCollection(w http.ResponseWriter, r *http.Request) (*record.Collection, bool) {
	source := mux.Vars(r)["source"]
	if !s.records.Has(source) {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown source", nil)
		return nil, false
	}
	return s.records.Source(source), true
}

// handleListSources handles GET /sources
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]interface{}{"sources": s.records.Sources()})
}

// handleListRecords handles GET /sources/{source}/records
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	col, ok := s.sourceCollection(w, r)
	if !ok {
		return
	}

	all := col.All()
	views := make([]recordView, 0, len(all))
	for _, rec := range all {
		views = append(views, viewOf(rec))
	}

	WriteSuccess(w, map[string]interface{}{"records": views})
}

// handleCreateRecord handles POST /sources/{source}/records
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	col, ok := s.sourceCollection(w, r)
	if !ok {
		return
	}

	var req struct {
		Fields map[string]string `json:"fields"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	rec := col.Create(req.Fields)
	WriteCreated(w, viewOf(rec))
}

// handleGetRecord handles GET /sources/{source}/records/{id}
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	col, ok := s.sourceCollection(w, r)
	if !ok {
		return
	}

	rec, ok := col.Get(mux.Vars(r)["id"])
	if !ok {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
		return
	}

	WriteSuccess(w, viewOf(rec))
}

// handleUpdateRecord handles PUT /sources/{source}/records/{id}
//
// Fields present in the request are set; fields listed in unset are removed.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	col, ok := s.sourceCollection(w, r)
	if !ok {
		return
	}

	var req struct {
		Fields map[string]string `json:"fields"`
		Unset  []string          `json:"unset"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	rec, err := col.Update(id, req.Fields)
	if err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
		return
	}
	for _, name := range req.Unset {
		rec.Unset(name)
	}

	WriteSuccess(w, viewOf(rec))
}

// handleDeleteRecord handles DELETE /sources/{source}/records/{id}
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	col, ok := s.sourceCollection(w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if err := col.Delete(id); err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
		return
	}

	WriteSuccess(w, map[string]interface{}{"deleted": id})
}

// handleCommitSource handles POST /sources/{source}/commit
//
// Without a body the whole source is committed; with {"recordId": "..."}
// only that record.
func (s *Server) handleCommitSource(w http.ResponseWriter, r *http.Request) {
	col, ok := s.sourceCollection(w, r)
	if !ok {
		return
	}

	recordID, ok := optionalRecordID(w, r)
	if !ok {
		return
	}

	if recordID == "" {
		col.CommitAll()
		WriteSuccess(w, map[string]interface{}{"committed": "all"})
		return
	}

	if err := col.Commit(recordID); err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
		return
	}
	WriteSuccess(w, map[string]interface{}{"committed": recordID})
}

// handleRejectSource handles POST /sources/{source}/reject
func (s *Server) handleRejectSource(w http.ResponseWriter, r *http.Request) {
	col, ok := s.sourceCollection(w, r)
	if !ok {
		return
	}

	recordID, ok := optionalRecordID(w, r)
	if !ok {
		return
	}

	if recordID == "" {
		col.RejectAll()
		WriteSuccess(w, map[string]interface{}{"rejected": "all"})
		return
	}

	if err := col.Reject(recordID); err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
		return
	}
	WriteSuccess(w, map[string]interface{}{"rejected": recordID})
}

// handleSyncSource handles POST /sources/{source}/sync
func (s *Server) handleSyncSource(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]
	if !s.records.Has(source) {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown source", nil)
		return
	}

	if s.sync == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Sync is not configured", nil)
		return
	}

	stats, err := s.sync.SyncSource(r.Context(), source)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "SYNC_FAILED", err.Error(), nil)
		return
	}

	WriteSuccess(w, stats)
}

// optionalRecordID reads an optional {"recordId": "..."} body. An empty body
// is allowed and yields "".
func optionalRecordID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		RecordID string `json:"recordId"`
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			return "", true
		}
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return "", false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return "", false
	}
	return req.RecordID, true
}

// decodeJSONBody decodes a request body with strict JSON rules: unknown
// fields and trailing data are rejected.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return false
	}
	return true
}

func badParam(name string) error {
	return fmt.Errorf("invalid %s parameter", name)
}
