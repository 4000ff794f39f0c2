package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jmalhotra98/intervue/backend/models"
	"github.com/jmalhotra98/intervue/backend/repository"
	"github.com/jmalhotra98/intervue/backend/storage"
)

// maxUploadBytes bounds one multipart recording upload.
const maxUploadBytes = 32 << 20

type AudioEndpoints struct {
	repo  *repository.Repository
	blobs storage.BlobStore
	cfg   *Config
}

func NewAudioEndpoints(repo *repository.Repository, blobs storage.BlobStore, cfg *Config) *AudioEndpoints {
	return &AudioEndpoints{repo: repo, blobs: blobs, cfg: cfg}
}

func (e *AudioEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/audio", func(r chi.Router) {
		r.Post("/upload", e.UploadHandler)
		r.Get("/{interviewId}/{recordingId}", e.SignedURLHandler)
		r.Post("/refresh-url", e.RefreshURLHandler)
	})
}

type UploadResponse struct {
	RecordingID string `json:"recordingId"`
	BlobKey     string `json:"blobKey"`
}

func (e *AudioEndpoints) UploadHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, r, E(KindValidation, "invalid multipart form", err))
		return
	}

	interviewID := r.FormValue("interviewId")
	if interviewID == "" {
		WriteError(w, r, E(KindValidation, "interviewId is required", nil))
		return
	}
	historyID := r.FormValue("historyId")
	questionIndex := -1
	if historyID == "" {
		qi, err := strconv.Atoi(r.FormValue("questionIndex"))
		if err != nil || qi < 1 {
			WriteError(w, r, E(KindValidation, "historyId or a positive questionIndex is required", err))
			return
		}
		questionIndex = qi
	}
	duration, _ := strconv.ParseFloat(r.FormValue("durationSeconds"), 64)

	iv, err := e.repo.GetInterview(r.Context(), interviewID, p.UserID, p.IsAdmin)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		WriteError(w, r, E(KindValidation, "audio file is required", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, r, E(KindValidation, "failed to read audio", err))
		return
	}
	if len(data) == 0 {
		WriteError(w, r, E(KindValidation, "audio file is empty", nil))
		return
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/webm"
	}

	key := fmt.Sprintf("audio/%s/%s", iv.ID, uuid.NewString())
	if err := e.blobs.Put(r.Context(), key, data, mime); err != nil {
		WriteError(w, r, E(KindUpstreamUnavailable, "audio store unavailable", err))
		return
	}

	rec := &models.AudioRecording{
		QuestionIndex:   questionIndex,
		BlobKey:         key,
		MIMEType:        mime,
		DurationSeconds: duration,
	}
	if historyID != "" {
		err = e.repo.AttachAudio(r.Context(), iv.ID, historyID, rec)
	} else {
		err = e.repo.AttachAudioByQuestionIndex(r.Context(), iv.ID, questionIndex, rec)
	}
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, UploadResponse{RecordingID: rec.ID, BlobKey: key})
}

type SignedURLResponse struct {
	AudioURL  string `json:"audioUrl"`
	BlobKey   string `json:"blobKey"`
	ExpiresIn int    `json:"expiresInSeconds"`
}

func (e *AudioEndpoints) SignedURLHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	interviewID := chi.URLParam(r, "interviewId")
	recordingID := chi.URLParam(r, "recordingId")

	if _, err := e.repo.GetInterview(r.Context(), interviewID, p.UserID, p.IsAdmin); err != nil {
		WriteError(w, r, err)
		return
	}
	rec, err := e.repo.GetRecording(r.Context(), interviewID, recordingID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	url, err := e.blobs.Sign(r.Context(), rec.BlobKey, e.cfg.Blob.SignTTL())
	if err != nil {
		WriteError(w, r, E(KindUpstreamUnavailable, "failed to sign url", err))
		return
	}
	WriteJSON(w, http.StatusOK, SignedURLResponse{
		AudioURL:  url,
		BlobKey:   rec.BlobKey,
		ExpiresIn: e.cfg.Blob.SignTTLSeconds,
	})
}

type RefreshURLRequest struct {
	InterviewID string `json:"interviewId"`
	BlobKey     string `json:"blobKey"`
}

func (e *AudioEndpoints) RefreshURLHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	var req RefreshURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, E(KindValidation, "invalid request body", err))
		return
	}
	if req.InterviewID == "" || req.BlobKey == "" {
		WriteError(w, r, E(KindValidation, "interviewId and blobKey are required", nil))
		return
	}

	if _, err := e.repo.GetInterview(r.Context(), req.InterviewID, p.UserID, p.IsAdmin); err != nil {
		WriteError(w, r, err)
		return
	}
	// A key belongs to the interview whose id prefixes it.
	if !keyBelongsTo(req.BlobKey, req.InterviewID) {
		WriteError(w, r, E(KindForbidden, "blob does not belong to this interview", nil))
		return
	}

	url, err := e.blobs.Sign(r.Context(), req.BlobKey, e.cfg.Blob.SignTTL())
	if err != nil {
		WriteError(w, r, E(KindUpstreamUnavailable, "failed to sign url", err))
		return
	}
	WriteJSON(w, http.StatusOK, SignedURLResponse{
		AudioURL:  url,
		BlobKey:   req.BlobKey,
		ExpiresIn: e.cfg.Blob.SignTTLSeconds,
	})
}

func keyBelongsTo(blobKey, interviewID string) bool {
	prefix := "audio/" + interviewID + "/"
	return len(blobKey) > len(prefix) && strings.HasPrefix(blobKey, prefix)
}
