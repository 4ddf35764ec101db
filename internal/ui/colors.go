package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/quantmind-br/pkglife/internal/core"
)

// Color scheme for pkglife
var (
	Success = color.New(color.FgGreen)
	Error   = color.New(color.FgRed, color.Bold)
	Warning = color.New(color.FgYellow)
	Info    = color.New(color.FgCyan)

	Highlight = color.New(color.FgHiCyan, color.Bold)
	Muted     = color.New(color.Faint)
	Bold      = color.New(color.Bold)

	CheckMark = color.GreenString("✓")
	CrossMark = color.RedString("✗")
	SkipMark  = color.HiBlackString("-")
	Arrow     = color.CyanString("→")
	Bullet    = color.HiBlackString("•")

	// Package format colors
	FormatRPM  = color.New(color.FgRed)
	FormatDeb  = color.New(color.FgMagenta)
	FormatArch = color.New(color.FgBlue)
)

// InitColors applies the logging.color setting ("auto", "always" or "never")
// on top of the environment (NO_COLOR, TERM=dumb)
func InitColors(setting string) {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		color.NoColor = true
	}

	switch setting {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	}
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Fprintf(os.Stdout, "%s %s\n", CheckMark, fmt.Sprintf(format, args...))
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "%s Error: %s\n", CrossMark, fmt.Sprintf(format, args...))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Fprintf(os.Stderr, "Warning: %s\n", fmt.Sprintf(format, args...))
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Fprintf(os.Stdout, "%s %s\n", Arrow, fmt.Sprintf(format, args...))
}

// PrintKeyValue prints a key-value pair with color
func PrintKeyValue(key, value string) {
	Bold.Fprintf(os.Stdout, "%s: ", key)
	fmt.Fprintln(os.Stdout, value)
}

// PrintHeader prints a section header
func PrintHeader(text string) {
	fmt.Fprintln(os.Stdout)
	Bold.Fprintln(os.Stdout, text)
	Muted.Fprintln(os.Stdout, "────────────────────────────────────────")
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Fprintf(os.Stdout, "  %s %s\n", Bullet, item)
	}
}

// ColorizeFormat returns a colored format tag
func ColorizeFormat(format core.FormatTag) string {
	switch format {
	case core.FormatRPM:
		return FormatRPM.Sprint(format)
	case core.FormatDeb:
		return FormatDeb.Sprint(format)
	case core.FormatArch:
		return FormatArch.Sprint(format)
	default:
		return string(format)
	}
}

// StatusMark returns the mark shown next to an invocation result
func StatusMark(status string) string {
	switch status {
	case "ok":
		return CheckMark
	case "failed":
		return CrossMark
	default:
		return SkipMark
	}
}

// ColorizeAction returns a colored transaction action
func ColorizeAction(action core.Action) string {
	switch action {
	case core.ActionInstall:
		return Success.Sprint(action)
	case core.ActionUpgrade:
		return Info.Sprint(action)
	case core.ActionRemove:
		return Warning.Sprint(action)
	default:
		return string(action)
	}
}

// DisableColors disables all color output
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output
func EnableColors() {
	color.NoColor = false
}
