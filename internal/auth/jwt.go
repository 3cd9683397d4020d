package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// token is a compact JWS split into its parts.
type token struct {
	alg, kid string
	claims   map[string]any
	signed   []byte
	sig      []byte
}

func parseToken(raw string) (token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return token{}, fmt.Errorf("%w: malformed jwt", ErrInvalidToken)
	}
	var hdr struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := decodeSegment(parts[0], &hdr); err != nil {
		return token{}, fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}
	t := token{alg: hdr.Alg, kid: hdr.Kid, signed: []byte(parts[0] + "." + parts[1])}
	if err := decodeSegment(parts[1], &t.claims); err != nil {
		return token{}, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return token{}, fmt.Errorf("%w: signature: %v", ErrInvalidToken, err)
	}
	t.sig = sig
	return t, nil
}

func decodeSegment(seg string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (t token) expired(now time.Time) bool {
	exp, ok := t.claims["exp"].(float64)
	return ok && now.Unix() >= int64(exp)
}

// claim reads a string or numeric claim as text.
func (t token) claim(name string) string {
	switch c := t.claims[name].(type) {
	case string:
		return c
	case float64:
		return big.NewFloat(c).Text('f', -1)
	}
	return ""
}
