package main

import (
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/fpang/photo-booth/internal/booth"
	"github.com/fpang/photo-booth/internal/filehandler"
	"github.com/rs/zerolog/log"
)

// maxCaptionLength is in characters.
const maxCaptionLength = 40

// server serves one kiosk session.
type server struct {
	session   *booth.Session
	exportDir string
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("GET /api/session", s.handleStatus)
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/countdown", s.handleCountdown)
	mux.HandleFunc("POST /api/session/retake", s.handleRetake)
	mux.HandleFunc("POST /api/session/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/session/reset", s.handleReset)
	mux.HandleFunc("PUT /api/session/caption", s.handleCaption)
	mux.HandleFunc("PUT /api/session/style", s.handleStyle)
	mux.HandleFunc("POST /api/session/apply", s.handleApply)
	mux.HandleFunc("GET /api/session/frame", s.handleFrame)
	mux.HandleFunc("GET /api/session/slots/{slot}", s.handleSlot)
	mux.HandleFunc("GET /api/session/collage", s.handleCollage)
	mux.HandleFunc("POST /api/session/export", s.handleExport)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

// GET /api/health
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": s.session.ID()})
}

// GET /api/styles
func (s *server) handleStyles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.session.Catalog())
}

// GET /api/session
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.session.Status())
}

// POST /api/session/start
func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.session.Status())
}

// POST /api/session/countdown
func (s *server) handleCountdown(w http.ResponseWriter, r *http.Request) {
	if err := s.session.StartCountdown(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.session.Status())
}

// POST /api/session/retake  {"slot": n}, slot optional
func (s *server) handleRetake(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slot *int `json:"slot"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.session.Retake(r.Context(), body.Slot); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.session.Status())
}

// POST /api/session/advance
func (s *server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Advance(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.session.Status())
}

// POST /api/session/reset
func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	respondJSON(w, http.StatusOK, s.session.Status())
}

// PUT /api/session/caption  {"caption": "..."}
func (s *server) handleCaption(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caption string `json:"caption"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if utf8.RuneCountInString(body.Caption) > maxCaptionLength {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("caption is limited to %d characters", maxCaptionLength))
		return
	}
	s.session.SetCaption(body.Caption)
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/session/style  {"background": "...", "subject": "..."}
//
// Only the fields present are changed; an empty string clears that style.
func (s *server) handleStyle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Background *string `json:"background"`
		Subject    *string `json:"subject"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Background != nil {
		if err := s.session.SetBackgroundStyle(*body.Background); err != nil {
			respondError(w, err)
			return
		}
	}
	if body.Subject != nil {
		if err := s.session.SetSubjectStyle(*body.Subject); err != nil {
			respondError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, s.session.Selection())
}

// POST /api/session/apply
func (s *server) handleApply(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Apply(); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.session.Status())
}

// GET /api/session/frame
func (s *server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := s.session.Frame()
	if err != nil {
		respondError(w, err)
		return
	}
	data, err := filehandler.EncodeJPEG(filehandler.Downscale(frame, filehandler.DefaultPreviewMaxDimension), 80)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode live frame")
		httpError(w, http.StatusInternalServerError, "frame encoding failed")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// GET /api/session/slots/{slot}?variant=raw|styled
func (s *server) handleSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "slot must be a number")
		return
	}
	img, err := s.session.SlotImage(slot, r.URL.Query().Get("variant"))
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := filehandler.WritePNG(w, img); err != nil {
		log.Warn().Err(err).Int("slot", slot).Msg("Failed to write slot image")
	}
}

// GET /api/session/collage
func (s *server) handleCollage(w http.ResponseWriter, r *http.Request) {
	res := s.session.Current()
	if res == nil {
		respondError(w, booth.ErrNoCollage)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := res.EncodePNG(w); err != nil {
		log.Warn().Err(err).Msg("Failed to write collage")
	}
}

// POST /api/session/export
func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	path, err := s.session.Export(s.exportDir)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"path": path})
}
