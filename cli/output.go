package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
	passColor    = color.New(color.FgGreen, color.Bold).SprintFunc()
	failColor    = color.New(color.FgRed, color.Bold).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
)

// alertBanner is printed before the samples of a wake-up that raised the alert.
const alertBanner = ">>> THRESHOLD ALERT CROSSED <<<"

// printf prints a message with a newline.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, warningColor("Warning: ")+format+"\n", a...)
}

// Errorf prints a message prefixed with a red "Error: ".
func Errorf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, errorColor("Error: ")+format+"\n", a...)
}
