package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, tokenHash, tokenPrefix, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Len(t, tokenHash, 64)
	assert.Equal(t, HashToken(token), tokenHash)
	assert.Len(t, tokenPrefix, len(TokenPrefix)+8)
	assert.True(t, strings.HasPrefix(token, tokenPrefix))
	assert.NoError(t, ValidateTokenFormat(token))
}

func TestGenerateToken_Uniqueness(t *testing.T) {
	tokens := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, _, _, err := GenerateToken()
		require.NoError(t, err)
		assert.False(t, tokens[token], "duplicate token %s", token)
		tokens[token] = true
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashToken("tg_abc"), HashToken("tg_abc"))
	assert.NotEqual(t, HashToken("tg_abc"), HashToken("tg_abd"))
}

func TestValidateTokenFormat(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"wrong prefix", "sk_abcdef", true},
		{"prefix only", "tg_", true},
		{"bad encoding", "tg_!!!", true},
		{"valid", "tg_c2VjcmV0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTokenFormat(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"bearer tg_x", "", false},
		{"Bearer tg_x", "tg_x", true},
		{"Bearer  tg_x ", "tg_x", true},
	}

	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.token, token, "header %q", tt.header)
	}
}
