package classify

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"transclip/pkg/types"

	_ "image/gif"
	_ "image/jpeg"
)

// Declared pasteboard type tags handed over by capture collaborators.
// The UTI-style values match what share sheets and pasteboards report;
// plain kind names and MIME types are accepted as well.
const (
	TagText  = "public.plain-text"
	TagURL   = "public.url"
	TagImage = "public.image"
	TagFile  = "public.content"
)

// ErrNoContent signals that a payload could not be classified into any of
// the four kinds. It is an expected condition: the capture path treats it
// as "nothing to save", not as a failure.
var ErrNoContent = errors.New("no classifiable content")

// Content is the canonical form of a classified payload. Exactly one of
// Text/Data is populated, decided by Kind: text and url carry Text, image
// and file carry Data.
type Content struct {
	Kind types.Kind
	Text string
	Data []byte
}

// CanonicalBytes returns the byte representation the content hash is
// computed over: UTF-8 string bytes for text and url, raw blob bytes
// (PNG-encoded for images) otherwise.
func (c Content) CanonicalBytes() []byte {
	if c.Kind.TextLike() {
		return []byte(c.Text)
	}
	return c.Data
}

// Normalize resolves a declared type tag plus raw payload into exactly one
// of the four kinds and its canonical representation.
//
// Resolution order when the tag is ambiguous or absent: image presence,
// then URL presence, then string presence, then opaque file. A string that
// parses as an absolute URL with both a scheme and a host is reclassified
// as url, never left as text, so that copied links get URL handling.
func Normalize(declared string, payload []byte) (Content, error) {
	if len(payload) == 0 {
		return Content{}, ErrNoContent
	}

	kind := kindForTag(declared)

	if kind == types.KindImage || sniffsImage(payload) {
		data, err := toPNG(payload)
		if err != nil {
			// Declared image that does not decode is kept as an opaque blob.
			return Content{Kind: types.KindFile, Data: payload}, nil
		}
		return Content{Kind: types.KindImage, Data: data}, nil
	}

	if kind == types.KindURL {
		if u := parseAbsoluteURL(string(payload)); u != nil {
			return urlContent(u), nil
		}
		// A declared URL that does not parse degrades to plain text.
		kind = types.KindText
	}

	if (kind == types.KindText || kind == "") && utf8.Valid(payload) {
		s := string(payload)
		if strings.TrimSpace(s) == "" {
			return Content{}, ErrNoContent
		}
		if u := parseAbsoluteURL(s); u != nil {
			return urlContent(u), nil
		}
		return Content{Kind: types.KindText, Text: s}, nil
	}

	return Content{Kind: types.KindFile, Data: payload}, nil
}

// URLHost returns the host of a url-kind content, used as the default
// title when the caller supplied none. Empty for other kinds.
func (c Content) URLHost() string {
	if c.Kind != types.KindURL {
		return ""
	}
	u, err := url.Parse(c.Text)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func urlContent(u *url.URL) Content {
	// Canonical form is the normalized absolute string as re-emitted by
	// net/url, percent-encoded. Hashing and storage both use this form.
	return Content{Kind: types.KindURL, Text: u.String()}
}

// parseAbsoluteURL returns the parsed URL when s is a single-token
// absolute URL with both a scheme and a host, nil otherwise.
func parseAbsoluteURL(s string) *url.URL {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}

func kindForTag(declared string) types.Kind {
	switch declared {
	case TagText:
		return types.KindText
	case TagURL:
		return types.KindURL
	case TagImage:
		return types.KindImage
	case TagFile:
		return types.KindFile
	}
	if k := types.Kind(declared); k.Valid() {
		return k
	}
	switch {
	case strings.HasPrefix(declared, "text/"):
		return types.KindText
	case strings.HasPrefix(declared, "image/"):
		return types.KindImage
	}
	return ""
}

func sniffsImage(payload []byte) bool {
	return strings.HasPrefix(http.DetectContentType(payload), "image/")
}

// toPNG re-encodes the payload as PNG so that the stored bytes and the
// content hash are independent of the source encoding. Payloads that
// already are PNG pass through untouched.
func toPNG(payload []byte) ([]byte, error) {
	if http.DetectContentType(payload) == "image/png" {
		return payload, nil
	}
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
