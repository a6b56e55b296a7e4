package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Challenge is a parsed WWW-Authenticate header (RFC 6750 section 3).
type Challenge struct {
	Scheme           string
	Realm            string
	Scope            string
	Error            string
	ErrorDescription string
}

// InvalidToken reports whether the server rejected the presented token itself
// rather than the request.
func (c *Challenge) InvalidToken() bool {
	return c != nil && c.Error == "invalid_token"
}

var authParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ParseWWWAuthenticate parses a WWW-Authenticate header value such as
//
//	Bearer realm="launchpad", error="invalid_token", error_description="expired"
func ParseWWWAuthenticate(header string) (*Challenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	parts := strings.SplitN(header, " ", 2)
	challenge := &Challenge{Scheme: parts[0]}
	if len(parts) == 1 {
		return challenge, nil
	}

	params := make(map[string]string)
	for _, match := range authParamRegex.FindAllStringSubmatch(parts[1], -1) {
		params[strings.ToLower(match[1])] = match[2]
	}

	challenge.Realm = params["realm"]
	challenge.Scope = params["scope"]
	challenge.Error = params["error"]
	challenge.ErrorDescription = params["error_description"]
	return challenge, nil
}

// ChallengeFromResponse extracts the challenge from a 401 or 403 response.
// Returns nil if the status does not match or no usable header is present.
func ChallengeFromResponse(resp *http.Response) *Challenge {
	if resp == nil {
		return nil
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return nil
	}
	challenge, err := ParseWWWAuthenticate(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil
	}
	return challenge
}
