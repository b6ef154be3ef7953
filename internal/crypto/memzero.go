package crypto

import "runtime"

// Wipe zeroes key material in place: private keys, seeds, chain heads and
// message keys once they have been used. The buffer is kept alive past the
// write so the store is not dropped as dead.
//
//go:noinline
func Wipe(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}
