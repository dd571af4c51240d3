package booth

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/fpang/photo-booth/internal/camera"
	"github.com/fpang/photo-booth/internal/generation"
	"github.com/fpang/photo-booth/internal/style"
)

var (
	// ErrSessionIncomplete is returned when styling is requested before all
	// four photos are taken.
	ErrSessionIncomplete = errors.New("session is not complete")
	// ErrNoCollage is returned when there is no collage to serve or export.
	ErrNoCollage = errors.New("no collage has been rendered")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
	// ErrInvalidSlot is returned for a slot index outside 0-3.
	ErrInvalidSlot = errors.New("invalid slot")
)

const backgroundFailedMessage = "The background could not be generated. Your photos were kept."

// UserMessage turns err into text for the kiosk screen. Errors that are not
// meant for guests, such as composition failures, yield "".
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var failed []int
	var msgs []string
	collectMessages(err, &failed, &msgs)

	if len(failed) > 0 {
		slices.Sort(failed)
		nums := make([]string, len(failed))
		for i, n := range failed {
			nums[i] = strconv.Itoa(n)
		}
		noun := "photo"
		if len(failed) > 1 {
			noun = "photos"
		}
		msgs = append([]string{fmt.Sprintf("Styling failed for %s %s.", noun, strings.Join(nums, ", "))}, msgs...)
	}
	return strings.Join(slices.Compact(msgs), " ")
}

func collectMessages(err error, failed *[]int, msgs *[]string) {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		children := multi.Unwrap()
		for _, c := range children {
			if c == style.ErrBackgroundGenerationFailed {
				*msgs = append(*msgs, backgroundFailedMessage)
				return
			}
		}
		for _, c := range children {
			collectMessages(c, failed, msgs)
		}
		return
	}

	var sf *style.StylizeFailedError
	var ce *camera.Error
	var ge *generation.Error
	switch {
	case errors.As(err, &sf):
		*failed = append(*failed, sf.Slot+1)
	case errors.As(err, &ce):
		*msgs = append(*msgs, ce.UserMessage())
	case errors.Is(err, style.ErrBackgroundGenerationFailed):
		*msgs = append(*msgs, backgroundFailedMessage)
	case errors.Is(err, style.ErrUnknownStyle):
		*msgs = append(*msgs, "That style is not available.")
	case errors.Is(err, ErrSessionIncomplete):
		*msgs = append(*msgs, "Take all four photos first.")
	case errors.As(err, &ge):
		*msgs = append(*msgs, ge.UserMessage())
	}
}
