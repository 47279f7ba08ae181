package broker

import "math/rand"

// secretAlphabet is lifted verbatim from the original bridge's
// Util::generateRandomString so generated secrets keep the same
// observable shape. Not a cryptographic alphabet and not meant to be
// one: spec §9's open question on secret generation explicitly asks
// implementers to keep an ordinary PRNG rather than silently upgrade to
// a CSPRNG.
const secretAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz+-*/()[]{}"

const secretLength = 12

// generateSecret returns a fresh length-12 secret drawn from
// secretAlphabet using math/rand, matching the non-cryptographic
// generator the bridge has always used.
func generateSecret() string {
	b := make([]byte, secretLength)
	for i := range b {
		b[i] = secretAlphabet[rand.Intn(len(secretAlphabet))]
	}
	return string(b)
}
