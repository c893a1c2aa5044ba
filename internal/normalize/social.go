package normalize

import (
	"html"
	"regexp"
	"strings"

	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/textsig"
)

var (
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
	wsRe      = regexp.MustCompile(`\s+`)
)

// stripHTML flattens status HTML to plain text.
func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// MastodonStatus maps one tag timeline status.
func MastodonStatus(sourceID string, rec map[string]any, fetchedAt, instance, tag string) model.Item {
	it := newItem(sourceID, "social", fetchedAt)

	text := stripHTML(asString(rec["content"]))
	acct := ""
	if account, ok := asMap(rec["account"]); ok {
		acct = asString(account["acct"])
	}

	it.Title = truncate(text, 140)
	it.Summary = truncate(text, 300)
	it.ExternalID = asString(rec["id"])
	if url := asString(rec["url"]); url != "" {
		it.URL = textsig.CanonicalizeURL(url)
	} else {
		it.URL = textsig.CanonicalizeURL("mastodon:" + instance + ":" + it.ExternalID)
	}
	it.Category = model.CategorySocial
	it.PublishedAt = isoOr(asString(rec["created_at"]), fetchedAt)

	tagSlug := strings.ToLower(strings.TrimPrefix(tag, "#"))
	it.Tags = []string{"mastodon", "tag:" + tagSlug, "instance:" + instance}
	it.Raw = map[string]any{"acct": acct, "instance": instance, "tag": tagSlug}
	it.LocationRationale = "Social post without structured geo"

	finish(&it)
	return it
}

// BlueskyPost maps one search result post. The web URL is rebuilt from
// the AT URI's record key.
func BlueskyPost(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "social", fetchedAt)

	uri := asString(rec["uri"])
	handle := ""
	if author, ok := asMap(rec["author"]); ok {
		handle = asString(author["handle"])
	}

	text := ""
	createdAt := ""
	if post, ok := asMap(rec["record"]); ok {
		text = asString(post["text"])
		createdAt = asString(post["createdAt"])
	}

	it.Title = truncate(text, 140)
	it.Summary = truncate(text, 300)
	it.ExternalID = uri
	rkey := uri
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		rkey = uri[i+1:]
	}
	if handle != "" && rkey != "" {
		it.URL = textsig.CanonicalizeURL("https://bsky.app/profile/" + handle + "/post/" + rkey)
	} else {
		it.URL = textsig.CanonicalizeURL("bluesky:" + uri)
	}
	it.Category = model.CategorySocial
	it.PublishedAt = isoOr(firstOr(createdAt, asString(rec["indexedAt"])), fetchedAt)
	it.Tags = []string{"bluesky", "search"}
	it.Raw = map[string]any{"handle": handle, "cid": rec["cid"]}
	it.LocationRationale = "Social post without structured geo"

	finish(&it)
	return it
}

// ReliefwebReport maps one report listing entry. Reports are treated
// as news so free-text geo enrichment applies.
func ReliefwebReport(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "json_api", fetchedAt)

	fields, _ := asMap(rec["fields"])
	it.Title = asString(fields["title"])
	it.Summary = it.Title
	it.ExternalID = asString(rec["id"])
	if href := asString(rec["href"]); href != "" {
		it.URL = textsig.CanonicalizeURL(href)
	} else {
		it.URL = textsig.CanonicalizeURL("reliefweb:report:" + it.ExternalID)
	}
	it.Category = model.CategoryNews
	if date, ok := asMap(fields["date"]); ok {
		it.PublishedAt = isoOr(asString(date["created"]), fetchedAt)
	}
	it.Tags = []string{"reliefweb", "report"}
	it.Raw = map[string]any{"report_id": rec["id"]}
	it.LocationRationale = "Report listing without structured geo"

	finish(&it)
	return it
}

// ReliefwebDisaster maps one disaster listing entry, taking the first
// tagged country when present.
func ReliefwebDisaster(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "json_api", fetchedAt)

	fields, _ := asMap(rec["fields"])
	it.Title = asString(fields["title"])
	it.Summary = it.Title
	it.ExternalID = asString(rec["id"])
	if href := asString(rec["href"]); href != "" {
		it.URL = textsig.CanonicalizeURL(href)
	} else {
		it.URL = textsig.CanonicalizeURL("reliefweb:disaster:" + it.ExternalID)
	}
	it.Category = model.CategoryDisaster
	if date, ok := asMap(fields["date"]); ok {
		it.PublishedAt = isoOr(asString(date["created"]), fetchedAt)
	}
	it.Tags = []string{"reliefweb", "disaster"}
	it.Raw = map[string]any{"disaster_id": rec["id"]}

	if countries := asList(fields["country"]); len(countries) > 0 {
		if c, ok := asMap(countries[0]); ok {
			if name := asString(c["name"]); name != "" {
				it.LocationName = name
				it.LocationConfidence = model.ConfCountry
				it.LocationRationale = "Tagged country"
			}
		}
	}
	if it.LocationRationale == "" {
		it.LocationRationale = "Disaster listing without structured geo"
	}

	finish(&it)
	return it
}
