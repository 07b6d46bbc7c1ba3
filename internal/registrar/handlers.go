package registrar

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/registrar/internal/catalog"
	"github.com/zombor/registrar/internal/codec"
	"github.com/zombor/registrar/internal/export"
	"github.com/zombor/registrar/internal/extraction"
	"github.com/zombor/registrar/internal/record"
)

// maxFormSize bounds multipart uploads (high-resolution phone photos).
const maxFormSize = int64(50 << 20)

type extractRequest struct {
	Text      string   `json:"text"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type editRequest struct {
	Value string `json:"value"`
}

type recordResponse struct {
	State   State                 `json:"state"`
	Record  json.RawMessage       `json:"record,omitempty"`
	Entries []record.DisplayEntry `json:"entries"`
}

type exportResult struct {
	Image string `json:"image"`
	Key   string `json:"key,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type exportResponse struct {
	RecordID string         `json:"record_id,omitempty"`
	Results  []exportResult `json:"results"`
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps a service error onto a status code and writes it as JSON
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var fieldErr *record.FieldError
	switch {
	case errors.As(err, &fieldErr), errors.Is(err, extraction.ErrEmptyInput), errors.Is(err, extraction.ErrInvalidProvenance):
		code = http.StatusBadRequest
	case errors.Is(err, ErrNoActiveRecord), errors.Is(err, catalog.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrSuperseded):
		code = http.StatusConflict
	case errors.Is(err, extraction.ErrBackendFailed):
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeRecord writes the session state and, when present, the active record
func (s *Server) writeRecord(w http.ResponseWriter, code int) {
	resp := recordResponse{State: s.service.State(), Entries: []record.DisplayEntry{}}

	active, err := s.service.Active()
	if err == nil {
		data, encErr := codec.Encode(active)
		if encErr != nil {
			writeError(w, encErr)
			return
		}
		resp.Record = data
		resp.Entries = active.Entries()
	} else if !errors.Is(err, ErrNoActiveRecord) {
		writeError(w, err)
		return
	}

	writeJSON(w, code, resp)
}

// handleExtract extracts a new active record from label text
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	var position *record.GeoPoint
	switch {
	case req.Latitude != nil && req.Longitude != nil:
		position = &record.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if !position.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Position out of range"})
			return
		}
	case req.Latitude != nil || req.Longitude != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Latitude and longitude must be given together"})
		return
	}

	if _, err := s.service.Extract(r.Context(), req.Text, position); err != nil {
		writeError(w, err)
		return
	}
	s.writeRecord(w, http.StatusCreated)
}

// handleGetActive returns the session state and the active record
func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.Active(); err != nil && s.service.State() != StateExtracting {
		writeError(w, err)
		return
	}
	s.writeRecord(w, http.StatusOK)
}

// handleEditField applies one correction to the active record
func (s *Server) handleEditField(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if _, err := s.service.Edit(r.PathValue("field"), req.Value); err != nil {
		writeError(w, err)
		return
	}
	s.writeRecord(w, http.StatusOK)
}

// handleReset discards the active record
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.service.Reset()
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleExport embeds the active record into the uploaded images
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var images []export.ImageAsset
	if r.ContentLength != 0 {
		if err := r.ParseMultipartForm(maxFormSize); err != nil {
			slog.Error("Error parsing multipart form", "error", err)
			errorMsg := "Error parsing form"
			if err.Error() == "http: request body too large" {
				errorMsg = "Upload is too large. Maximum size is 50MB."
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": errorMsg})
			return
		}

		for _, header := range r.MultipartForm.File["images"] {
			f, err := header.Open()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Error reading upload"})
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				slog.Error("Error reading file data", "error", err, "filename", header.Filename)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error reading file. Please try again."})
				return
			}
			images = append(images, export.ImageAsset{
				Name:        header.Filename,
				ContentType: contentTypeFor(header.Header.Get("Content-Type"), header.Filename),
				Data:        data,
			})
		}
	}

	report, err := s.service.Export(r.Context(), images)
	if err != nil && report == nil {
		writeError(w, err)
		return
	}

	resp := exportResponse{
		RecordID: report.RecordID,
		Results:  make([]exportResult, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		out := exportResult{Image: res.Image, OK: res.OK()}
		if res.OK() {
			out.Key = res.Key
		} else {
			out.Error = res.Err.Error()
		}
		resp.Results = append(resp.Results, out)
	}
	if err != nil {
		slog.Error("Error archiving record", "error", err)
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// contentTypeFor falls back to the file extension for uploads without a type
func contentTypeFor(contentType, filename string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// handleListRecords returns every archived record
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListRecords()
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*catalog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetRecord returns one archived record
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.GetRecord(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleDeleteRecord deletes an archived record and its images
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecord(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleSpreadsheet downloads the archive as XLSX
func (s *Server) handleSpreadsheet(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.ExportSpreadsheet(&buf); err != nil {
		writeError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="records.xlsx"`)
	w.Write(buf.Bytes())
}

// handleGetImage returns a stored image
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetImage(r.Context(), r.PathValue("key"))
	if err != nil {
		setCORSHeaders(w)
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}
