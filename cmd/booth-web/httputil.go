package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fpang/photo-booth/internal/booth"
	"github.com/fpang/photo-booth/internal/camera"
	"github.com/fpang/photo-booth/internal/capture"
	"github.com/fpang/photo-booth/internal/style"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondError maps a session error onto a status code. Guest-facing errors
// carry their kiosk message.
func respondError(w http.ResponseWriter, err error) {
	msg := booth.UserMessage(err)
	if msg == "" {
		msg = err.Error()
	}
	httpError(w, statusFor(err), msg)
}

func statusFor(err error) int {
	var ce *camera.Error
	switch {
	case errors.Is(err, capture.ErrInvalidState), errors.Is(err, booth.ErrSessionIncomplete):
		return http.StatusConflict
	case errors.Is(err, style.ErrUnknownStyle), errors.Is(err, booth.ErrInvalidSlot):
		return http.StatusBadRequest
	case errors.Is(err, booth.ErrNoCollage), errors.Is(err, style.ErrSlotEmpty):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusServiceUnavailable
	case errors.Is(err, booth.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads an optional JSON body. An empty body leaves v unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
