package sched

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/evhagen/sitmon/internal/timeiso"
)

// msiOpenAPICandidates are probed in order at startup to find a
// working NGA MSI deployment; the hosts rotate occasionally.
var msiOpenAPICandidates = []string{
	"https://msi.nga.mil/v2/api-docs",
	"https://msi.nga.mil/v3/api-docs",
	"https://msi.nga.mil/openapi.json",
	"https://msi.pub.kubic.nga.mil/v2/api-docs",
	"https://msi.pub.kubic.nga.mil/v3/api-docs",
	"https://msi.pub.kubic.nga.mil/openapi.json",
}

// discoverMSI resolves the MSI API base URL from a published OpenAPI
// document, once, and persists it in app_config.
func (s *Scheduler) discoverMSI(ctx context.Context) error {
	if _, ok, err := s.st.GetConfig(ctx, "msi_openapi_url"); err != nil {
		return err
	} else if ok {
		return nil
	}

	for _, docURL := range msiOpenAPICandidates {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		res, err := s.client.Get(cctx, docURL, "", "", nil)
		cancel()
		if err != nil || res.StatusCode != 200 {
			continue
		}
		base := msiBaseFromOpenAPI(docURL, res.Body)
		if base == "" {
			continue
		}
		if err := s.st.SetConfig(ctx, "msi_openapi_url", docURL); err != nil {
			return err
		}
		if err := s.st.SetConfig(ctx, "msi_api_base_url", base); err != nil {
			return err
		}
		if err := s.st.SetConfig(ctx, "msi_openapi_fetched_at", timeiso.Now()); err != nil {
			return err
		}
		s.log.Info().Str("base_url", base).Msg("msi api base discovered")
		return nil
	}
	return nil
}

// msiBaseFromOpenAPI extracts the API base URL from a swagger 2.0 or
// OpenAPI 3 document.
func msiBaseFromOpenAPI(docURL string, body []byte) string {
	var doc struct {
		Swagger  string `json:"swagger"`
		BasePath string `json:"basePath"`
		OpenAPI  string `json:"openapi"`
		Servers  []struct {
			URL string `json:"url"`
		} `json:"servers"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	if doc.Swagger != "" {
		u, err := url.Parse(docURL)
		if err != nil || u.Host == "" {
			return ""
		}
		return strings.TrimRight("https://"+u.Host+doc.BasePath, "/")
	}
	if doc.OpenAPI != "" && len(doc.Servers) > 0 {
		return strings.TrimRight(doc.Servers[0].URL, "/")
	}
	return ""
}
