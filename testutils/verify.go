// Package testutils holds helpers shared by the package tests.
package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs the package tests and fails them if goroutines outlive the run, such as a
// config watcher loop or a wait that was never woken.
func VerifyTestMain(m goleak.TestingM) {
	goleak.VerifyTestMain(m)
}
