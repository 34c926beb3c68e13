package codec

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const canisterId = "0x00000000003000f10101"

func mustWord(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := ParseWord(s)
	require.NoError(t, err)
	return v
}

func TestSplitUint256(t *testing.T) {
	high, low, err := SplitUint256("d0379be15bb6f33737b756e512dad1e71226b31fa648da57811f930badf6c163")
	require.NoError(t, err)
	require.Equal(t, "276768161078691357748506014484008718823", high.String())
	require.Equal(t, "24127044263607486132772889641222586723", low.String())

	withPrefix, _, err := SplitUint256("0xd0379be15bb6f33737b756e512dad1e71226b31fa648da57811f930badf6c163")
	require.NoError(t, err)
	require.Equal(t, high, withPrefix)
}

func TestSplitUint256_InvalidLength(t *testing.T) {
	for _, n := range []int{0, 31, 33} {
		_, _, err := SplitUint256(strings.Repeat("ab", n))
		require.ErrorIs(t, err, ErrInvalidLength, "length %d", n)
	}

	_, _, err := SplitUint256("zz")
	require.Error(t, err)
}

func TestSplitJoinRoundTrip(t *testing.T) {
	inputs := []string{
		"d0379be15bb6f33737b756e512dad1e71226b31fa648da57811f930badf6c163",
		"bc979e70fa8f9743ae0515d2bc10fed93108a80a1c84450c4e79a3e83825fc45",
		strings.Repeat("00", 32),
		strings.Repeat("ff", 32),
		"00000000000000000000000000000001" + "00000000000000000000000000000000",
	}

	for _, in := range inputs {
		high, low, err := SplitUint256(in)
		require.NoError(t, err)
		out, err := JoinUint256(high, low)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func TestJoinUint256_Overflow(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 128)
	_, err := JoinUint256(tooBig, big.NewInt(0))
	require.ErrorIs(t, err, ErrHalfOverflow)

	_, err = JoinUint256(big.NewInt(0), big.NewInt(-1))
	require.ErrorIs(t, err, ErrHalfOverflow)
}

func TestCommitmentHash(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		to       string
		nonce    string
		payload  []string
		expected string
	}{
		{
			name:     "deposit",
			from:     "0x1b864e1CA9189CFbD8A14a53A02E26B00AB5e91a",
			to:       canisterId,
			payload:  []string{"0xced2c72d7506fa87cd9c9d5e7e08e3614221272516ba4c152047ead802", "69000000"},
			expected: "0xbc979e70fa8f9743ae0515d2bc10fed93108a80a1c84450c4e79a3e83825fc45",
		},
		{
			name:     "withdrawal",
			from:     canisterId,
			to:       "0x60DC1a1FD50F1cdA1D44dFf69Cec3E5C065417e8",
			payload:  []string{"0xfd82d7abAbC1461798deB5a5d9812603fdd650cc", "1000000"},
			expected: "0x3c478b7a95e4b23fc1af0c5367296ec78f4d4b47382e7e3e2a37b46ad73fbaee",
		},
		{
			name:     "outgoing canister message",
			from:     canisterId,
			to:       "0xFa7FC33D0D5984d33e33AF5d3f504E33a251d52a",
			payload:  []string{"0xfd82d7abAbC1461798deB5a5d9812603fdd650cc", "1000000"},
			expected: "0xd0379be15bb6f33737b756e512dad1e71226b31fa648da57811f930badf6c163",
		},
		{
			name:     "with nonce",
			from:     canisterId,
			to:       "0xFa7FC33D0D5984d33e33AF5d3f504E33a251d52a",
			nonce:    "7",
			payload:  []string{"0xfd82d7abAbC1461798deB5a5d9812603fdd650cc", "1000000"},
			expected: "0xcf2db86211620c6bdfa5930f2185d88ac462f023183229e0658e5af9056f8b03",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nonce *big.Int
			if tt.nonce != "" {
				nonce = mustWord(t, tt.nonce)
			}
			payload := make([]*big.Int, 0, len(tt.payload))
			for _, p := range tt.payload {
				payload = append(payload, mustWord(t, p))
			}

			hash, err := CommitmentHash(mustWord(t, tt.from), mustWord(t, tt.to), nonce, payload)
			require.NoError(t, err)
			require.Equal(t, tt.expected, hash.Hex())
		})
	}
}

func TestCommitmentHash_Overflow(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err := CommitmentHash(big.NewInt(1), big.NewInt(2), nil, []*big.Int{tooBig})
	require.ErrorIs(t, err, ErrWordOverflow)

	_, err = CommitmentHash(big.NewInt(-1), big.NewInt(2), nil, nil)
	require.ErrorIs(t, err, ErrWordOverflow)
}
