// Package thunks contains pointers to functions that might be replaced in
// tests.
package thunks

import (
	"os"
)

// UserHomeDir is an alias for os.UserHomeDir
var UserHomeDir func() (string, error) = os.UserHomeDir

// SetUpTest points UserHomeDir at home.
func SetUpTest(home string) (restore func()) {
	old := UserHomeDir
	UserHomeDir = func() (string, error) {
		return home, nil
	}
	return func() { UserHomeDir = old }
}
