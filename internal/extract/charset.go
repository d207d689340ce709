package extract

import (
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// DecodeBody converts body to UTF-8 using the charset parameter of the
// Content-Type header. Missing, unknown, or already-UTF-8 charsets return
// the body unchanged; decoding is best effort and never fails the fetch.
func DecodeBody(body []byte, contentType string) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	name := strings.ToLower(strings.TrimSpace(params["charset"]))
	if name == "" || name == "utf-8" || name == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(name)
	if err != nil || enc == nil {
		return body
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return body
	}
	return decoded
}
