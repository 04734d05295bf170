package internal

import (
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"chatroom/internal/storage"
)

type historyResponse struct {
	Messages []storage.Message `json:"messages"`
}

type uploadResponse struct {
	OK      bool            `json:"ok"`
	URL     string          `json:"url"`
	Message storage.Message `json:"message"`
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Version  string `json:"version"`
}

// multipart framing on top of the file itself
const uploadOverhead = 1 << 20

func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("limit must be an integer"))
			return
		}
		limit = min(max(parsed, 1), storage.MaxRecentLimit)
	}
	messages, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("load history")
		writeError(w, http.StatusInternalServerError, errors.New("history unavailable"))
		return
	}
	if messages == nil {
		messages = []storage.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: messages})
}

// HandleUpload stores an image and posts it to the room as an image message.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.media.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+uploadOverhead)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrMediaTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, errors.New("multipart form with a file field required"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("no file provided"))
		return
	}
	defer file.Close()
	if header.Size > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, ErrMediaTooLarge)
		return
	}

	ref, err := s.media.Save(file, header.Header.Get("Content-Type"))
	switch {
	case errors.Is(err, ErrUnsupportedMedia):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, ErrMediaTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("save upload")
		writeError(w, http.StatusInternalServerError, errors.New("upload failed"))
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		username = r.FormValue("username")
	}
	message, err := s.publish(r.Context(), NormalizeUsername(username), storage.KindImage, ref)
	if err != nil {
		if removeErr := s.media.Remove(ref); removeErr != nil {
			s.logger.Warn().Err(removeErr).Str("ref", ref).Msg("remove orphaned upload")
		}
		writeError(w, http.StatusInternalServerError, errors.New("upload failed"))
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{OK: true, URL: ref, Message: message})
}

func (s *Server) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if ok, retryAfter := s.loginLimiter.Allow(clientIP(r)); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("password is required"))
		return
	}
	if !s.password.Match(req.Password) {
		s.metrics.AdminAuthFailed()
		writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	token, err := s.tokens.Issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresIn: int64(s.tokens.MaxAge().Seconds())})
}

func (s *Server) HandleAdminClear(w http.ResponseWriter, r *http.Request) {
	err := s.moderation.ClearAll(r.Context(), bearerToken(r))
	switch {
	case errors.Is(err, ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, errors.New("clear failed"))
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Sessions: s.registry.Len(), Version: Version}
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("health check")
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
