package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zombor/snapsort/internal/intake"
	"github.com/zombor/snapsort/internal/records"
	"github.com/zombor/snapsort/internal/session"
)

// maxUploadSize bounds the multipart body of an upload
const maxUploadSize = int64(50 << 20)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// sessionStatus maps a session error to an HTTP status
func sessionStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, intake.ErrUnsupportedType),
		errors.Is(err, session.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNothingToCommit),
		errors.Is(err, session.ErrCommitUnavailable),
		errors.Is(err, session.ErrNotReviewing),
		errors.Is(err, session.ErrNothingStaged):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleGetSession returns the current staged upload
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot()
	if err != nil {
		writeError(w, sessionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleUpload stages a new image and starts analyzing it
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose an image to upload.")
		return
	}
	defer f.Close()

	snap, err := s.session.UploadFrom(header.Filename, f)
	if err != nil {
		slog.Error("Error saving upload", "filename", header.Filename, "error", err)
		status := sessionStatus(err)
		if status == http.StatusInternalServerError {
			// anything else that goes wrong while copying the file is an intake failure
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// handleEditField replaces one staged field value
func (s *Server) handleEditField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := s.session.EditField(req.Name, req.Value)
	if err != nil {
		writeError(w, sessionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSetMemo sets the memo of the staged upload
func (s *Server) handleSetMemo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Memo string `json:"memo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := s.session.SetMemo(req.Memo)
	if err != nil {
		writeError(w, sessionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleCommit saves the staged result
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Commit(r.Context())
	if err != nil {
		slog.Error("Error saving record", "error", err)
		writeError(w, sessionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleDiscard drops the staged upload
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Discard()
	if err != nil {
		writeError(w, sessionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handlePreview returns a scaled JPEG of the staged image
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot()
	if err != nil {
		writeError(w, sessionStatus(err), err.Error())
		return
	}
	if snap.ImagePath == "" {
		writeError(w, http.StatusNotFound, "No image uploaded")
		return
	}

	var buf bytes.Buffer
	if err := s.previewer.WritePreview(snap.ImagePath, &buf); err != nil {
		slog.Error("Error rendering preview", "image", snap.ImagePath, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "Could not render preview")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// handleListReceipts returns saved receipts, newest first
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.store.ListReceipts(r.Context())
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Ensure we always return an array, not nil
	if receipts == nil {
		receipts = []records.ReceiptRecord{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleListBusinessCards returns saved business cards, newest first
func (s *Server) handleListBusinessCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.store.ListBusinessCards(r.Context())
	if err != nil {
		slog.Error("Error listing business cards", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if cards == nil {
		cards = []records.BusinessCardRecord{}
	}
	writeJSON(w, http.StatusOK, cards)
}

// handleExport downloads the whole history as an Excel workbook
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := records.ExportXLSX(r.Context(), s.store, &buf); err != nil {
		slog.Error("Error exporting records", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="snapsort-records.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}
