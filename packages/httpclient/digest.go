package httpclient

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// digestAuthorization answers an RFC 7616 challenge with an MD5 digest
// Authorization header value.
func digestAuthorization(user, pass, method, rawURL, challenge string) (string, error) {
	params := parseChallenge(challenge)

	uri := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		uri = u.RequestURI()
	}

	qop := params["qop"]
	if strings.Contains(qop, "auth") {
		qop = "auth"
	}

	ha1 := md5Hash(fmt.Sprintf("%s:%s:%s", user, params["realm"], pass))
	ha2 := md5Hash(fmt.Sprintf("%s:%s", method, uri))

	var response, nc, cnonce string
	if qop != "" {
		nc = "00000001"
		var err error
		cnonce, err = generateCnonce()
		if err != nil {
			return "", err
		}
		response = md5Hash(fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, params["nonce"], nc, cnonce, qop, ha2))
	} else {
		response = md5Hash(fmt.Sprintf("%s:%s:%s", ha1, params["nonce"], ha2))
	}

	parts := []string{
		fmt.Sprintf(`username="%s"`, user),
		fmt.Sprintf(`realm="%s"`, params["realm"]),
		fmt.Sprintf(`nonce="%s"`, params["nonce"]),
		fmt.Sprintf(`uri="%s"`, uri),
		fmt.Sprintf(`response="%s"`, response),
	}
	if qop != "" {
		parts = append(parts, "qop="+qop, "nc="+nc, fmt.Sprintf(`cnonce="%s"`, cnonce))
	}
	if opaque := params["opaque"]; opaque != "" {
		parts = append(parts, fmt.Sprintf(`opaque="%s"`, opaque))
	}
	return "Digest " + strings.Join(parts, ", "), nil
}

func parseChallenge(header string) map[string]string {
	result := make(map[string]string)
	header = strings.TrimPrefix(header, "Digest ")
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if idx := strings.Index(part, "="); idx != -1 {
			key := strings.TrimSpace(part[:idx])
			value := strings.Trim(strings.TrimSpace(part[idx+1:]), `"`)
			result[key] = value
		}
	}
	return result
}

func md5Hash(s string) string {
	h := md5.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

func generateCnonce() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
