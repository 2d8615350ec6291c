package wallet

import (
	"encoding/hex"
	"strings"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Keccak tests ---

func TestKeccak256_Empty(t *testing.T) {
	got := hex.EncodeToString(Keccak256(nil))
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", got)
}

func TestKeccak256_Concatenates(t *testing.T) {
	assert.Equal(t, Keccak256([]byte("hello world")), Keccak256([]byte("hello "), []byte("world")))
}

// --- Address tests ---

func TestParseAddress_CaseInsensitive(t *testing.T) {
	lower, err := ParseAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	mixed, err := ParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)
	upper, err := ParseAddress("0X5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED")
	require.NoError(t, err)

	assert.Equal(t, lower, mixed)
	assert.Equal(t, lower, upper)
	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", mixed.String())
}

func TestParseAddress_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no prefix", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
		{"short", "0x5aaeb6053f3e94c9"},
		{"long", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed00"},
		{"non-hex", "0xzzaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}

func TestAddress_Checksum(t *testing.T) {
	// EIP-55 reference vectors.
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for _, v := range vectors {
		t.Run(v, func(t *testing.T) {
			a := MustParseAddress(strings.ToLower(v))
			assert.Equal(t, v, a.Checksum())
		})
	}
}

func TestAddress_TextRoundTrip(t *testing.T) {
	a := MustParseAddress("0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb")
	text, err := a.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0xd1220a0cf47c7b9be7a2e6ba89f429762e7b9adb", string(text))

	var b Address
	require.NoError(t, b.UnmarshalText(text))
	assert.Equal(t, a, b)
}

func TestAddressFromBytes_TakesLast20(t *testing.T) {
	word := make([]byte, 32)
	word[12] = 0xab
	word[31] = 0x01
	a := AddressFromBytes(word)
	assert.Equal(t, "0xab00000000000000000000000000000000000001", a.String())
}

// --- Key tests ---

func TestPubKeyToAddress_KnownKeys(t *testing.T) {
	tests := []struct {
		priv string
		addr string
	}{
		{"0000000000000000000000000000000000000000000000000000000000000001", "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"},
		{"0000000000000000000000000000000000000000000000000000000000000002", "0x2B5AD5c4795c026514f8317c7a215E218DcCD6cF"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			s, err := SignerFromHex(tt.priv)
			require.NoError(t, err)
			assert.Equal(t, tt.addr, s.Address().Checksum())
		})
	}
}

func TestPrivateKeyFromHex_Invalid(t *testing.T) {
	_, err := PrivateKeyFromHex("0x1234")
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)

	_, err = PrivateKeyFromHex("not-hex")
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

// --- Signature tests ---

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	return NewSigner(priv)
}

func TestSignMessage_RecoverRoundTrip(t *testing.T) {
	s := newTestSigner(t)
	msg := []byte("3f2a9c0d11e4b7a8")

	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, SignatureSize)
	assert.Contains(t, []byte{27, 28}, sig[64])

	got, err := RecoverMessage(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
}

func TestRecoverMessage_AcceptsZeroBasedV(t *testing.T) {
	s := newTestSigner(t)
	msg := []byte("nonce")
	sig, err := s.SignMessage(msg)
	require.NoError(t, err)

	sig[64] -= 27
	got, err := RecoverMessage(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
}

func TestRecoverMessage_DifferentMessageYieldsDifferentSigner(t *testing.T) {
	s := newTestSigner(t)
	sig, err := s.SignMessage([]byte("n1"))
	require.NoError(t, err)

	got, err := RecoverMessage([]byte("n2"), sig)
	if err == nil {
		assert.NotEqual(t, s.Address(), got)
	}
}

func TestRecoverHash_BadInput(t *testing.T) {
	hash := MessageHash([]byte("x"))

	_, err := RecoverHash(hash, make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	sig := make([]byte, SignatureSize)
	sig[64] = 5
	_, err = RecoverHash(hash, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSignHash_RejectsShortHash(t *testing.T) {
	s := newTestSigner(t)
	_, err := s.SignHash([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrSigningFailed)
}

func TestSignHash_Deterministic(t *testing.T) {
	s := newTestSigner(t)
	h := Keccak256([]byte("payload"))
	a, err := s.SignHash(h)
	require.NoError(t, err)
	b, err := s.SignHash(h)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeSignature(t *testing.T) {
	s := newTestSigner(t)
	sig, err := s.SignMessage([]byte("abc"))
	require.NoError(t, err)

	decoded, err := DecodeSignature(EncodeSignature(sig))
	require.NoError(t, err)
	assert.Equal(t, sig, decoded)

	_, err = DecodeSignature("0x1234")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = DecodeSignature("0xgg")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

// --- Network tests ---

func TestGetNetwork(t *testing.T) {
	n, err := GetNetwork("localhost")
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), n.ChainID)
	assert.Equal(t, "http://127.0.0.1:8545", n.RPCURL)

	_, err = GetNetwork("devnet")
	assert.ErrorIs(t, err, ErrInvalidNetwork)
}

func TestNetworkNames(t *testing.T) {
	assert.Equal(t, []string{"localhost", "mainnet", "sepolia"}, NetworkNames())
	for _, name := range NetworkNames() {
		n, err := GetNetwork(name)
		require.NoError(t, err)
		assert.Equal(t, name, n.Name)
		assert.NotZero(t, n.ChainID)
	}
}
