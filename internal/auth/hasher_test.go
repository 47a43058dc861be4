package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testHashParams keeps the unit tests fast; production cost lives in
// DefaultHashParams.
func testHashParams() HashParams {
	return HashParams{
		Time:    1,
		Memory:  8 * 1024,
		Threads: 1,
		KeyLen:  32,
		SaltLen: 16,
	}
}

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(testHashParams())

	t.Run("round trip", func(t *testing.T) {
		encoded, err := h.Hash("correct horse battery staple")
		require.NoError(t, err)
		require.True(t, h.Verify(encoded, "correct horse battery staple"))
		require.False(t, h.Verify(encoded, "wrong password"))
	})

	t.Run("salt randomness", func(t *testing.T) {
		first, err := h.Hash("secret")
		require.NoError(t, err)
		second, err := h.Hash("secret")
		require.NoError(t, err)

		require.NotEqual(t, first, second)
		require.True(t, h.Verify(first, "secret"))
		require.True(t, h.Verify(second, "secret"))
	})

	t.Run("output is self describing", func(t *testing.T) {
		encoded, err := h.Hash("secret")
		require.NoError(t, err)

		// A hasher with different cost parameters still verifies, using the
		// parameters embedded in the encoded hash.
		other := NewHasher(DefaultHashParams())
		require.True(t, other.Verify(encoded, "secret"))
	})
}

func TestHasher_VerifyMalformed(t *testing.T) {
	h := NewHasher(testHashParams())

	cases := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"garbage", "not-a-hash"},
		{"wrong algorithm", "$bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$m=x,t=y,p=z$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA"},
		{"bad hash encoding", "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$!!!"},
		{"missing segments", "$argon2id$v=19$m=8192,t=1,p=1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Never panics, always false.
			require.False(t, h.Verify(tc.encoded, "secret"))
		})
	}
}
