package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Banner is printed at the start of interactive commands
const Banner = `
  ┌─────────────────────────────────────┐
  │  tumblr-backup · local blog archive │
  └─────────────────────────────────────┘
`

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	noColor bool
)

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		mu.Lock()
		plain := noColor
		mu.Unlock()
		if plain {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// SetOutput redirects all Print helpers; nil restores stdout
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	out = w
}

// SetNoColor disables ANSI escapes
func SetNoColor(disabled bool) {
	mu.Lock()
	defer mu.Unlock()
	noColor = disabled
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// PrintBanner prints the banner in cyan
func PrintBanner() {
	fmt.Fprint(writer(), Cyan(Banner))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(writer(), Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(writer(), Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(writer(), Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	fmt.Fprintf(writer(), "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(writer(), Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(writer(), Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(writer(), Magenta(msg))
}

// Println writes plain text
func Println(a ...interface{}) {
	fmt.Fprintln(writer(), a...)
}
