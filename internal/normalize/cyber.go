package normalize

import (
	"strings"

	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/textsig"
)

// NVDCVE maps one vulnerability from the CVE API 2.0. Records arrive
// wrapped in a "cve" envelope.
func NVDCVE(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "json_api", fetchedAt)

	cve, ok := asMap(rec["cve"])
	if !ok {
		cve = rec
	}
	id := asString(cve["id"])

	description := ""
	for _, d := range asList(cve["descriptions"]) {
		desc, ok := asMap(d)
		if !ok {
			continue
		}
		if asString(desc["lang"]) == "en" || description == "" {
			description = asString(desc["value"])
		}
		if asString(desc["lang"]) == "en" {
			break
		}
	}

	it.Title = id
	it.Summary = truncate(description, 300)
	it.ExternalID = id
	it.URL = textsig.CanonicalizeURL("https://nvd.nist.gov/vuln/detail/" + id)
	it.Category = model.CategoryCyberCVE
	it.PublishedAt = isoOr(asString(cve["published"]), fetchedAt)
	it.UpdatedAt = isoOr(asString(cve["lastModified"]), "")
	it.Tags = []string{"nvd", "cve"}

	raw := map[string]any{"vuln_status": cve["vulnStatus"]}
	if metrics, ok := asMap(cve["metrics"]); ok {
		for _, key := range []string{"cvssMetricV31", "cvssMetricV30", "cvssMetricV2"} {
			list := asList(metrics[key])
			if len(list) == 0 {
				continue
			}
			if m, ok := asMap(list[0]); ok {
				if data, ok := asMap(m["cvssData"]); ok {
					if score, ok := asFloat(data["baseScore"]); ok {
						raw["cvss"] = score
					}
				}
			}
			break
		}
	}
	it.Raw = raw
	it.LocationRationale = "Vulnerabilities carry no location"

	finish(&it)
	return it
}

// CISAKEV maps one known exploited vulnerability catalog entry.
func CISAKEV(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "json_api", fetchedAt)

	cveID := getStr(rec, "cveID", "cve_id")
	it.Title = firstOr(getStr(rec, "vulnerabilityName"), cveID)
	it.Summary = truncate(getStr(rec, "shortDescription"), 300)
	it.ExternalID = cveID
	it.URL = textsig.CanonicalizeURL("https://nvd.nist.gov/vuln/detail/" + cveID)
	it.Category = model.CategoryCyberKEV
	it.PublishedAt = isoOr(getStr(rec, "dateAdded"), fetchedAt)
	it.Tags = []string{"cisa", "kev"}

	ransomware := getStr(rec, "knownRansomwareCampaignUse")
	if strings.EqualFold(ransomware, "known") {
		it.Tags = append(it.Tags, "ransomware")
	}
	it.Raw = map[string]any{
		"vendor_project": rec["vendorProject"],
		"product":        rec["product"],
		"ransomware":     ransomware,
		"due_date":       rec["dueDate"],
	}
	it.LocationRationale = "Vulnerabilities carry no location"

	finish(&it)
	return it
}
