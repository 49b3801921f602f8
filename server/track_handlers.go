package server

import (
	"errors"
	"io"
	"net/http"

	"Tunedrop/backend"
	"Tunedrop/logger"
	"Tunedrop/model"
	"Tunedrop/schema"

	"github.com/gorilla/mux"
)

// memory cap for multipart parsing; larger parts spill to temp files
const multipartMemory = 32 << 20

// SearchHandler handles POST /tracks/search.
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var req schema.SongSearch
	if !decodeBody(w, r, &req) {
		return
	}

	songs, err := h.backend.SearchSongs(r.Context(), *req.SearchQuery, req.Tags)
	if errors.Is(err, backend.ErrSearchQueryMissing) {
		// this failure carries no success flag
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err})
		return
	}
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "songs": songs})
}

// GetTrackHandler handles GET /tracks/{trackId}.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["trackId"]
	track, err := h.backend.GetSong(r.Context(), trackID)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "track": track})
}

// GetTrackAudioHandler handles GET /tracks/{trackId}/audio.
func (h *APIHandler) GetTrackAudioHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["trackId"]
	url, err := h.backend.GetSongAudio(r.Context(), trackID)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "audioUrl": url})
}

// UploadDetailsHandler handles POST /tracks/upload/details.
func (h *APIHandler) UploadDetailsHandler(w http.ResponseWriter, r *http.Request) {
	var req schema.SongTempUpload
	if !decodeBody(w, r, &req) {
		return
	}
	user, _ := UserFromContext(r.Context())

	id, err := h.backend.UploadSongDetails(r.Context(), user, req)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}

// UploadAudioHandler handles POST /tracks/upload/audio (multipart: id, audio).
func (h *APIHandler) UploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	id, file, ok := h.readUpload(w, r, "audio")
	if !ok {
		return
	}
	if err := h.backend.UploadTrackAudio(r.Context(), id, file); err != nil {
		writeFailure(w, http.StatusBadRequest, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// UploadCoverHandler handles POST /tracks/upload/cover (multipart: id, cover).
func (h *APIHandler) UploadCoverHandler(w http.ResponseWriter, r *http.Request) {
	id, file, ok := h.readUpload(w, r, "cover")
	if !ok {
		return
	}
	if err := h.backend.UploadTrackCoverImage(r.Context(), id, file); err != nil {
		writeFailure(w, http.StatusBadRequest, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// FinalizeHandler handles POST /tracks/upload/finalize.
func (h *APIHandler) FinalizeHandler(w http.ResponseWriter, r *http.Request) {
	var req schema.TrackFinalize
	if !decodeBody(w, r, &req) {
		return
	}
	user, _ := UserFromContext(r.Context())

	id, err := h.backend.FinalizeTrackUpload(r.Context(), user, req.ID)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}

type fileError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// readUpload parses the multipart body and buffers the named file field.
// It answers the request itself and returns false when the file is missing.
func (h *APIHandler) readUpload(w http.ResponseWriter, r *http.Request, field string) (string, *model.UploadedFile, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, failure{Error: fileError{Message: "File is too large!", Code: http.StatusRequestEntityTooLarge}})
			return "", nil, false
		}
		logger.Debug("[Upload] unreadable multipart body", logger.String("field", field), logger.ErrorField(err))
		writeJSON(w, http.StatusBadRequest, failure{Error: fileError{Message: "File not found!", Code: http.StatusBadRequest}})
		return "", nil, false
	}
	defer r.MultipartForm.RemoveAll()

	part, header, err := r.FormFile(field)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Error: fileError{Message: "File not found!", Code: http.StatusBadRequest}})
		return "", nil, false
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		logger.Error("[Upload] failed to read file", logger.String("field", field), logger.ErrorField(err))
		writeJSON(w, http.StatusBadRequest, failure{Error: fileError{Message: "File not found!", Code: http.StatusBadRequest}})
		return "", nil, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return r.FormValue("id"), &model.UploadedFile{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	}, true
}
