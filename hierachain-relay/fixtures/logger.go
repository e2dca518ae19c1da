// Package fixtures holds helpers shared by the package tests.
package fixtures

import (
	"fmt"
	"os"

	"github.com/bitmark-inc/logger"
)

// LogCategory names the test log file.
const LogCategory = "testing"

var dir string

// SetupTestLogger starts the logger in a temporary directory with console
// output off. Call TeardownTestLogger when done.
func SetupTestLogger() {
	var err error
	dir, err = os.MkdirTemp("", "hierachain-relay-log")
	if nil != err {
		panic(err)
	}

	logging := logger.Configuration{
		Directory: dir,
		File:      fmt.Sprintf("%s.log", LogCategory),
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	}

	// start logging
	if err := logger.Initialise(logging); nil != err {
		panic(err)
	}
}

// TeardownTestLogger stops the logger and removes its files.
func TeardownTestLogger() {
	logger.Finalise()
	if err := os.RemoveAll(dir); nil != err {
		fmt.Println("remove dir with error: ", err)
	}
}
