package secret

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMasterKey  = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	otherMasterKey = "1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(testMasterKey)
	require.NoError(t, err)
	return codec
}

func TestNewCodec_InvalidMasterKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "too short", key: "abcd"},
		{name: "not hex", key: strings.Repeat("g", 64)},
		{name: "too long", key: testMasterKey + "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodec(tt.key)
			assert.ErrorIs(t, err, ErrInvalidMasterKey)
		})
	}
}

func TestNewSalt(t *testing.T) {
	codec := newTestCodec(t)

	salt, err := codec.NewSalt()
	require.NoError(t, err)
	raw, err := hex.DecodeString(salt)
	require.NoError(t, err)
	assert.Len(t, raw, SaltSize)

	other, err := codec.NewSalt()
	require.NoError(t, err)
	assert.NotEqual(t, salt, other)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	salt, err := codec.NewSalt()
	require.NoError(t, err)

	for _, plaintext := range []string{"", "hunter2", "비밀번호 🔑 with: colons", strings.Repeat("x", 4096)} {
		token, err := codec.Encrypt(plaintext, salt)
		require.NoError(t, err)

		parts := strings.Split(token, ":")
		require.Len(t, parts, 3)
		assert.Len(t, parts[0], NonceSize*2)
		assert.Len(t, parts[1], TagSize*2)

		got, err := codec.Decrypt(token, salt)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncrypt_InvalidSalt(t *testing.T) {
	codec := newTestCodec(t)

	for _, salt := range []string{"", "abcd", strings.Repeat("zz", 16), strings.Repeat("ab", 17)} {
		_, err := codec.Encrypt("secret", salt)
		assert.ErrorIs(t, err, ErrInvalidSalt, salt)
	}
}

func TestDecrypt_Failures(t *testing.T) {
	codec := newTestCodec(t)
	salt, err := codec.NewSalt()
	require.NoError(t, err)
	token, err := codec.Encrypt("correct horse battery staple", salt)
	require.NoError(t, err)
	parts := strings.Split(token, ":")

	flip := func(hexStr string) string {
		raw, _ := hex.DecodeString(hexStr)
		raw[0] ^= 0x01
		return hex.EncodeToString(raw)
	}

	otherSalt, err := codec.NewSalt()
	require.NoError(t, err)
	otherCodec, err := NewCodec(otherMasterKey)
	require.NoError(t, err)

	tests := []struct {
		name    string
		codec   *Codec
		token   string
		salt    string
		wantErr error
	}{
		{name: "tampered ciphertext", codec: codec, token: parts[0] + ":" + parts[1] + ":" + flip(parts[2]), salt: salt, wantErr: ErrDecryption},
		{name: "tampered tag", codec: codec, token: parts[0] + ":" + flip(parts[1]) + ":" + parts[2], salt: salt, wantErr: ErrDecryption},
		{name: "tampered nonce", codec: codec, token: flip(parts[0]) + ":" + parts[1] + ":" + parts[2], salt: salt, wantErr: ErrDecryption},
		{name: "wrong salt", codec: codec, token: token, salt: otherSalt, wantErr: ErrDecryption},
		{name: "wrong master key", codec: otherCodec, token: token, salt: salt, wantErr: ErrDecryption},
		{name: "short nonce", codec: codec, token: parts[0][:20] + ":" + parts[1] + ":" + parts[2], salt: salt, wantErr: ErrMalformedToken},
		{name: "short tag", codec: codec, token: parts[0] + ":" + parts[1][:30] + ":" + parts[2], salt: salt, wantErr: ErrMalformedToken},
		{name: "missing field", codec: codec, token: parts[0] + ":" + parts[2], salt: salt, wantErr: ErrMalformedToken},
		{name: "not hex", codec: codec, token: "zz:" + parts[1] + ":" + parts[2], salt: salt, wantErr: ErrMalformedToken},
		{name: "invalid salt", codec: codec, token: token, salt: "abcd", wantErr: ErrInvalidSalt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.codec.Decrypt(tt.token, tt.salt)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, got)
		})
	}
}
