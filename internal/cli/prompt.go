package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fpang/photo-booth/internal/style"
	"github.com/rs/zerolog/log"
)

// PromptForStyle lists styles on out and reads a choice from in. The answer
// may be a number from the list or a style ID. An empty answer, or 0,
// chooses no style.
func PromptForStyle(in io.Reader, out io.Writer, label string, styles []style.Style) string {
	fmt.Fprintf(out, "%s:\n  0) none\n", label)
	for i, s := range styles {
		fmt.Fprintf(out, "  %d) %s\n", i+1, s.Label)
	}
	fmt.Fprint(out, "Choice [0]: ")

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("Failed to read input, using no style")
		return ""
	}
	return parseStyleChoice(strings.TrimSpace(input), styles)
}

func parseStyleChoice(input string, styles []style.Style) string {
	if input == "" {
		return ""
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(styles) {
			return styles[n-1].ID
		}
		return ""
	}
	return input
}
