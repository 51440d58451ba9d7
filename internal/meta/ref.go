package meta

import (
	"net/url"
	"strings"
)

// ImageRoute is the path of the image endpoint referenced by PointRecord.ImgURL.
const ImageRoute = "/get_image"

// ImageQueryParam carries the encoded reference on ImageRoute.
const ImageQueryParam = "path"

const upperhex = "0123456789ABCDEF"

// EncodeRef percent-encodes every byte of path outside the unreserved set
// (A-Z a-z 0-9 - . _ ~), including '/', so the token is safe in any URL position.
func EncodeRef(path string) string {
	var b strings.Builder
	b.Grow(len(path) * 3)
	for i := 0; i < len(path); i++ {
		c := path[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// DecodeRef reverses EncodeRef. '+' is kept literally. A '%' not followed by
// two hex digits is an error rather than a literal, so a hand-written token such
// as "100%.jpg" does not resolve; tokens produced by EncodeRef never contain one.
func DecodeRef(token string) (string, error) {
	return url.PathUnescape(token)
}

// ImageURL returns the relative URL serving the image at path.
func ImageURL(path string) string {
	return ImageRoute + "?" + ImageQueryParam + "=" + EncodeRef(path)
}

// RawQueryValue extracts the still-encoded value of key from a raw query string,
// so the token can be decoded exactly once by DecodeRef.
func RawQueryValue(rawQuery, key string) (string, bool) {
	for rawQuery != "" {
		var pair string
		pair, rawQuery, _ = strings.Cut(rawQuery, "&")
		k, v, _ := strings.Cut(pair, "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}

func unreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
