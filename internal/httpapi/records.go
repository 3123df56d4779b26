package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"recordstore/internal/app"
	"recordstore/internal/app/records"
	"recordstore/internal/store"
)

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in records.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, app.InvalidInputErr("malformed JSON body"))
		return
	}

	rec, err := s.records.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var in records.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, app.InvalidInputErr("malformed JSON body"))
		return
	}

	rec, err := s.records.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.records.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := records.ListFilter{
		Query:    query.Get("q"),
		Artist:   query.Get("artist"),
		Album:    query.Get("album"),
		Format:   store.RecordFormat(query.Get("format")),
		Category: store.RecordCategory(query.Get("category")),
	}

	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			writeError(w, app.InvalidInputErr("page: must be a positive integer"))
			return
		}
		filter.Page = page
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, app.InvalidInputErr("limit: must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	result, err := s.records.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
