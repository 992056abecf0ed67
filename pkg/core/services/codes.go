package services

import (
	"crypto/rand"
	"math/big"
	"net/url"
	"strings"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
)

const (
	charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	GeneratedCodeLength = 6
	MinCodeLength       = 6
	MaxCodeLength       = 8
	maxURLLength        = 2048
)

// CodeGenerator produces candidate short codes. Candidates are not unique by
// construction; the store decides.
type CodeGenerator interface {
	NewCode() (string, error)
}

// RandomGenerator draws codes uniformly from the alphanumeric charset.
type RandomGenerator struct {
	Length int
}

func (g RandomGenerator) NewCode() (string, error) {
	length := g.Length
	if length <= 0 {
		length = GeneratedCodeLength
	}
	return generateShortCode(length)
}

func generateShortCode(length int) (string, error) {
	b := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range b {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}

// ValidateCode checks the length bounds and the case-sensitive alphanumeric alphabet.
func ValidateCode(field, code string) error {
	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return &domain.ValidationError{Field: field, Reason: "must be 6 to 8 characters long"}
	}
	for i := 0; i < len(code); i++ {
		if !isAlphanumeric(code[i]) {
			return &domain.ValidationError{Field: field, Reason: "must contain only letters and digits"}
		}
	}
	return nil
}

func isAlphanumeric(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// NormalizeURL trims raw and requires an absolute http(s) URL with a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &domain.ValidationError{Field: "long_url", Reason: "is required"}
	}
	if len(raw) > maxURLLength {
		return "", &domain.ValidationError{Field: "long_url", Reason: "is longer than 2048 characters"}
	}
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return "", &domain.ValidationError{Field: "long_url", Reason: "must be an absolute URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", &domain.ValidationError{Field: "long_url", Reason: "scheme must be http or https"}
	}
	return raw, nil
}
