// Package must wraps calls that cannot reasonably fail so that they panic
// instead of returning an error.
package must

import (
	"crypto/rand"
	"io"

	"github.com/sirupsen/logrus"
)

// Random is the source ReadRandom draws from.
var Random io.Reader = rand.Reader

// ReadRandom fills b from Random. It panics on failure.
func ReadRandom(b []byte) {
	if _, err := io.ReadFull(Random, b); err != nil {
		logrus.Panicf("unable to read from random: %s", err)
	}
}

// Do returns v, panicking if err is non-nil.
//
//	addr := must.Do(core.ParseNetAddr("127.0.0.1:3232", 0))
func Do[T any](v T, err error) T {
	if err != nil {
		logrus.Panicf("expected nil error, got %s", err)
	}
	return v
}
