package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pjk0007/salesflow-sub000/internal/models"
	"github.com/pjk0007/salesflow-sub000/internal/trigger"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recordRequest struct {
	OrgID       string         `json:"org_id"`
	PartitionID string         `json:"partition_id"`
	Data        map[string]any `json:"data"`
}

type recordResponse struct {
	Record  *models.Record           `json:"record"`
	Intents []trigger.DispatchIntent `json:"intents,omitempty"`
}

// handleRecordCreate commits the record, then runs the trigger engine
// synchronously: enrollment completes before the response so the
// "submitted" semantics stay honest.
func (s *Server) handleRecordCreate(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrgID == "" || req.PartitionID == "" {
		writeError(w, http.StatusBadRequest, "org_id and partition_id are required")
		return
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}

	rec := &models.Record{
		OrgID:       req.OrgID,
		PartitionID: req.PartitionID,
		Data:        req.Data,
	}
	if err := s.records.Create(rec); err != nil {
		s.logger.Error("failed to create record", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create record")
		return
	}

	intents, err := s.engine.OnRecordMutated(r.Context(), rec, trigger.MutationCreate, nil)
	if err != nil {
		// The record is committed; trigger evaluation failing is not a
		// client error.
		s.logger.Error("trigger evaluation failed", "record_id", rec.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, recordResponse{Record: rec, Intents: intents})
}

func (s *Server) handleRecordList(w http.ResponseWriter, r *http.Request) {
	partitionID := r.URL.Query().Get("partition_id")
	if partitionID == "" {
		writeError(w, http.StatusBadRequest, "partition_id is required")
		return
	}

	records, err := s.records.ListByPartition(partitionID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleRecordGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecordUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Data == nil {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}

	previous, err := s.records.UpdateData(id, req.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error("failed to update record", "record_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update record")
		return
	}

	rec, err := s.records.GetByID(id)
	if err != nil || rec == nil {
		writeError(w, http.StatusInternalServerError, "failed to reload record")
		return
	}

	intents, err := s.engine.OnRecordMutated(r.Context(), rec, trigger.MutationUpdate, previous)
	if err != nil {
		s.logger.Error("trigger evaluation failed", "record_id", rec.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, recordResponse{Record: rec, Intents: intents})
}

func (s *Server) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecordAutomations shows whether a record is currently scheduled
// for repeats. Claim internals stay hidden: processing is reported as
// pending.
func (s *Server) handleRecordAutomations(w http.ResponseWriter, r *http.Request) {
	entries, err := s.queue.ListByRecord(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load automations")
		return
	}
	for i := range entries {
		if entries[i].Status == models.QueueStatusProcessing {
			entries[i].Status = models.QueueStatusPending
		}
		entries[i].ClaimedAt = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": entries})
}

func (s *Server) handleAutomationCancel(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.queue.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel automation")
		return
	}
	if !cancelled {
		writeError(w, http.StatusConflict, "automation is not pending")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLinkCreate(w http.ResponseWriter, r *http.Request) {
	var link models.TemplateLink
	if err := json.NewDecoder(r.Body).Decode(&link); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.links.Create(&link); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (s *Server) handleLinkList(w http.ResponseWriter, r *http.Request) {
	filter := models.TemplateLinkFilter{
		PartitionID: r.URL.Query().Get("partition_id"),
		TriggerType: models.TriggerType(r.URL.Query().Get("trigger_type")),
		ActiveOnly:  r.URL.Query().Get("active") == "true",
		Limit:       queryInt(r, "limit"),
		Offset:      queryInt(r, "offset"),
	}

	links, err := s.links.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list template links")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"template_links": links})
}

func (s *Server) handleLinkGet(w http.ResponseWriter, r *http.Request) {
	link, err := s.links.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load template link")
		return
	}
	if link == nil {
		writeError(w, http.StatusNotFound, "template link not found")
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *Server) handleLinkUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.links.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load template link")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "template link not found")
		return
	}

	var link models.TemplateLink
	if err := json.NewDecoder(r.Body).Decode(&link); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	link.ID = id
	link.OrgID = existing.OrgID
	link.PartitionID = existing.PartitionID
	link.CreatedAt = existing.CreatedAt

	if err := s.links.Update(&link); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *Server) handleLinkDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.links.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete template link")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLinkStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sendLog.Stats(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleManualSend dispatches one message for a manual-trigger link.
func (s *Server) handleManualSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordID string `json:"record_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecordID == "" {
		writeError(w, http.StatusBadRequest, "record_id is required")
		return
	}

	link, err := s.links.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load template link")
		return
	}
	if link == nil {
		writeError(w, http.StatusNotFound, "template link not found")
		return
	}

	rec, err := s.records.GetByID(req.RecordID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}

	entry, err := s.engine.ManualSend(r.Context(), link, rec)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleSendLogList(w http.ResponseWriter, r *http.Request) {
	filter := models.SendLogFilter{
		RecordID:       r.URL.Query().Get("record_id"),
		TemplateLinkID: r.URL.Query().Get("template_link_id"),
		Status:         r.URL.Query().Get("status"),
		Limit:          queryInt(r, "limit"),
		Offset:         queryInt(r, "offset"),
	}
	if filter.Limit == 0 {
		filter.Limit = 50
	}

	entries, total, err := s.sendLog.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list send log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": total})
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
