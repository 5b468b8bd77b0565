package sso

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credentials is the OAuth 1.0 material issued by the sign-on service.
type Credentials struct {
	ConsumerKey    string `yaml:"consumer_key" json:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret" json:"consumer_secret"`
	TokenKey       string `yaml:"token_key" json:"token_key"`
	TokenSecret    string `yaml:"token_secret" json:"token_secret"`
}

// Valid reports whether every part of the credentials is present.
func (c *Credentials) Valid() bool {
	return c != nil &&
		c.ConsumerKey != "" && c.ConsumerSecret != "" &&
		c.TokenKey != "" && c.TokenSecret != ""
}

// SignURL signs rawURL with HMAC-SHA1. With asQuery the result is a query
// string of oauth_* parameters; otherwise it is an Authorization header
// value. The result is empty when the credentials are invalid or rawURL
// cannot be parsed.
func (c *Credentials) SignURL(rawURL, method string, asQuery bool) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	return c.signURL(rawURL, method, asQuery, time.Now().Unix(), nonce)
}

func (c *Credentials) signURL(rawURL, method string, asQuery bool, timestamp int64, nonce string) string {
	if !c.Valid() || method == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	oauth := map[string]string{
		"oauth_consumer_key":     c.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(timestamp, 10),
		"oauth_token":            c.TokenKey,
		"oauth_version":          "1.0",
	}

	var params []pair
	for k, vs := range u.Query() {
		for _, v := range vs {
			params = append(params, pair{k, v})
		}
	}
	for k, v := range oauth {
		params = append(params, pair{k, v})
	}

	base := strings.ToUpper(method) + "&" + encode(baseURL(u)) + "&" + encode(normalize(params))
	key := encode(c.ConsumerSecret) + "&" + encode(c.TokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	oauth["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if asQuery {
			parts = append(parts, encode(k)+"="+encode(oauth[k]))
		} else {
			parts = append(parts, encode(k)+`="`+encode(oauth[k])+`"`)
		}
	}
	if asQuery {
		return strings.Join(parts, "&")
	}
	return `OAuth realm="", ` + strings.Join(parts, ", ")
}

type pair struct{ key, value string }

// normalize builds the sorted, encoded parameter string.
func normalize(params []pair) string {
	encoded := make([]pair, len(params))
	for i, p := range params {
		encoded[i] = pair{encode(p.key), encode(p.value)}
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].key != encoded[j].key {
			return encoded[i].key < encoded[j].key
		}
		return encoded[i].value < encoded[j].value
	})

	parts := make([]string, len(encoded))
	for i, p := range encoded {
		parts[i] = p.key + "=" + p.value
	}
	return strings.Join(parts, "&")
}

// baseURL is scheme://host/path with default ports dropped.
func baseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// encode percent-encodes everything outside the RFC 3986 unreserved set.
func encode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&15])
		}
	}
	return b.String()
}
