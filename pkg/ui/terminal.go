package ui

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// ASCIILogo is printed by the interactive commands
const ASCIILogo = `
    ┌─────────────────────────────────────────────────────────┐
    │  ╔═╗╔╦╗╦═╗╔═╗╔═╗╔╦╗  ╦  ╦╦╔═╗╦ ╦  ╔╦╗╦                  │
    │  ╚═╗ ║ ╠╦╝║╣ ║╣  ║   ╚╗╔╝║║╣ ║║║   ║║║                  │
    │  ╚═╝ ╩ ╩╚═╚═╝╚═╝ ╩    ╚╝ ╩╚═╝╚╩╝  ═╩╝╩═╝                │
    │        road network → panoramas → images                │
    └─────────────────────────────────────────────────────────┘
`

// colors are off when NO_COLOR is set or stdout is redirected
var colorEnabled = os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd()))

// SetColor turns ANSI colors on or off
func SetColor(on bool) {
	colorEnabled = on
}

// ANSI color wrappers
var (
	Cyan    = paint("36")
	Yellow  = paint("33")
	Red     = paint("31")
	Green   = paint("32")
	Magenta = paint("35")
	Dim     = paint("2")
)

func paint(code string) func(string) string {
	return func(text string) string {
		if !colorEnabled {
			return text
		}
		return "\033[" + code + "m" + text + "\033[0m"
	}
}

func withDetail(msg string, detail []interface{}) string {
	if len(detail) == 0 || detail[0] == "" {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, detail[0])
}

// PrintLogo prints the ASCII logo
func PrintLogo() {
	fmt.Print(Cyan(ASCIILogo))
}

// PrintError prints a message and an optional detail in red on stderr
func PrintError(msg string, detail ...interface{}) {
	fmt.Fprintln(os.Stderr, Red(withDetail(msg, detail)))
}

// PrintSuccess prints a message in green
func PrintSuccess(msg string) {
	fmt.Println(Green(msg))
}

// PrintInfo prints a label and value pair
func PrintInfo(label string, value string) {
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a message and an optional detail in yellow on stderr
func PrintWarning(msg string, detail ...interface{}) {
	fmt.Fprintln(os.Stderr, Yellow(withDetail(msg, detail)))
}
