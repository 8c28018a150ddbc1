package router

import (
	"net/url"
	"strings"
)

// Normalize reduces a URL to the key used by the override store: path plus
// "?query" and "#fragment" when present. Scheme and host are dropped and an
// empty path becomes "/". Input that does not parse still loses any leading
// "scheme://host" or "//host". Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return normalizeRaw(raw)
	}
	return RequestKey(u)
}

// RequestKey builds the override key from the path, query and fragment of u,
// ignoring its scheme and host. A server request for "//a/b" has the path
// "//a/b" and keys as "/a/b", where Normalize would read "a" as a host.
func RequestKey(u *url.URL) string {
	return joinKey(u.EscapedPath(), u.RawQuery, u.EscapedFragment())
}

// normalizeRaw is the fallback for strings url.Parse rejects: the authority is
// cut off by hand and the rest is kept verbatim.
func normalizeRaw(raw string) string {
	rest := raw
	if i := strings.Index(rest, "://"); i > 0 && isScheme(rest[:i]) {
		rest = rest[i+1:]
	}
	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		if i := strings.IndexAny(rest, "/?#"); i >= 0 {
			rest = rest[i:]
		} else {
			rest = ""
		}
	}

	var query, fragment string
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest, fragment = rest[:i], rest[i+1:]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, query = rest[:i], rest[i+1:]
	}
	key := joinKey(rest, query, fragment)
	if u, err := url.Parse(key); err == nil {
		return RequestKey(u)
	}
	return key
}

func isScheme(s string) bool {
	for i, c := range s {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}

func joinKey(path, query, fragment string) string {
	if path == "" {
		path = "/"
	} else {
		// A leading "//" would read back as a host, and relative input such as
		// "a.txt" is rooted.
		path = "/" + strings.TrimLeft(path, "/")
	}

	var b strings.Builder
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	if fragment != "" {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	return b.String()
}

// fsPath turns a request path into a filesystem path: query and fragment are
// dropped, a trailing slash is trimmed, and percent-escapes are decoded.
func fsPath(key string) string {
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		key = "/"
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return key
}
