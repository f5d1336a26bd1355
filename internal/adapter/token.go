package adapter

// Token represents a venue API credential pair.
type Token struct {
	Key    string
	Secret string
}

// NewToken creates a API token
func NewToken(key, secret string) Token {
	return Token{Key: key, Secret: secret}
}

// Valid reports whether both halves are present.
func (t Token) Valid() bool {
	return len(t.Key) != 0 && len(t.Secret) != 0
}

// String never prints the secret.
func (t Token) String() string {
	if len(t.Key) <= 4 {
		return "****"
	}

	return t.Key[:4] + "****"
}
