package cli

import (
	"fmt"
	"time"

	"github.com/fpang/photo-booth/internal/booth"
)

// FormatElapsed formats a run's duration. Style passes take seconds, so
// short runs keep a tenth of a second; anything from a minute up is M:SS.
func FormatElapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	totalSeconds := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// RunSummary is the line printed after a collage is written, e.g.
// "Wrote collage.png in 12.4s (styled, 4/4 photos styled)".
func RunSummary(path string, elapsed time.Duration, st booth.Status) string {
	if st.Collage == nil || !st.Collage.Styled {
		return fmt.Sprintf("Wrote %s in %s (preview)", path, FormatElapsed(elapsed))
	}
	styled := 0
	for _, slot := range st.Slots {
		if slot.Styled {
			styled++
		}
	}
	return fmt.Sprintf("Wrote %s in %s (styled, %d/%d photos styled)", path, FormatElapsed(elapsed), styled, len(st.Slots))
}
