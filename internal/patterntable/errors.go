package patterntable

import "errors"

// ErrFingerprintCollision is wrapped into a ConfigError-classified error
// when two distinct patterns hash to the same 64-bit fingerprint.
var ErrFingerprintCollision = errors.New("pattern fingerprint collision")
