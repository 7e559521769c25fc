package outwriter

import (
	"os"

	"github.com/seanfarley/fromcvs/internal/contract"
	"golang.org/x/term"
)

// getMaxTablePathWidth calculates the maximum width for member paths in the
// changeset table based on terminal width.
func getMaxTablePathWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 {
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			termWidth = 80 // conservative default for narrow terminals and CI
		} else {
			termWidth = detectedWidth
		}
	}

	// #, Date, Author, Branch, Files and Flags with borders/padding
	baseWidth := 75

	available := termWidth - baseWidth
	if available < 20 {
		return 20
	}
	if available > 80 {
		return 80
	}
	return available
}
