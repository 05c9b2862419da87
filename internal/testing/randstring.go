package testing

import "math/rand"

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandString returns a short random name safe to use as a username or
// channel name in tests sharing one database.
func RandString() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = nameAlphabet[rand.Intn(len(nameAlphabet))]
	}
	return string(b)
}
