package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// useColor is false when stdout is redirected, so logs stay free of escapes.
var useColor = term.IsTerminal(int(os.Stdout.Fd()))

func colorPrintf(code, format string, a ...interface{}) {
	if useColor {
		fmt.Print(code)
		defer fmt.Print("\033[0m")
	}
	fmt.Printf(format, a...)
}

func debugPrintf(enabled bool, format string, a ...interface{}) {
	if enabled {
		colorPrintf("\033[33m", "[DEBUG] "+format, a...)
	}
}

func greenPrintf(format string, a ...interface{}) {
	colorPrintf("\033[92m", format, a...)
}

func warningPrintf(format string, a ...interface{}) {
	colorPrintf("\033[93m", format, a...)
}

func clearScreen() {
	if useColor {
		fmt.Print("\033[2J\033[1;1H")
	}
}
