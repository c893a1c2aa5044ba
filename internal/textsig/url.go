package textsig

import (
	"net/url"
	"strings"
)

var trackingParamNames = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"mkt_tok": {},
}

// CanonicalizeURL lowercases the host, re-encodes the query with the
// original parameter order minus tracking keys (utm_* prefix and the
// fixed set), and drops the fragment. Idempotent.
func CanonicalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		var kept []string
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			key := pair
			value := ""
			hasValue := false
			if i := strings.IndexByte(pair, '='); i >= 0 {
				key = pair[:i]
				value = pair[i+1:]
				hasValue = true
			}
			decodedKey, err := url.QueryUnescape(key)
			if err != nil {
				decodedKey = key
			}
			keyLower := strings.ToLower(decodedKey)
			if strings.HasPrefix(keyLower, "utm_") {
				continue
			}
			if _, ok := trackingParamNames[keyLower]; ok {
				continue
			}
			decodedValue := ""
			if hasValue {
				if v, err := url.QueryUnescape(value); err == nil {
					decodedValue = v
				} else {
					decodedValue = value
				}
			}
			kept = append(kept, url.QueryEscape(decodedKey)+"="+url.QueryEscape(decodedValue))
		}
		u.RawQuery = strings.Join(kept, "&")
	}

	return u.String()
}
