package parser

import (
	"strings"
	"testing"
)

const rssFixture = `<?xml version="1.0"?>
<rss version="2.0" xmlns:georss="http://www.georss.org/georss" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>Test Feed</title>
    <item>
      <guid>item-1</guid>
      <title>Flood warning issued</title>
      <link>https://example.org/alerts/1</link>
      <description>Rivers rising after heavy rain</description>
      <pubDate>Mon, 24 Aug 2026 10:30:00 GMT</pubDate>
      <georss:point>59.33 18.07</georss:point>
      <enclosure url="https://example.org/alerts/1.pdf" type="application/pdf"/>
    </item>
    <item>
      <title>No guid entry</title>
      <link>https://example.org/alerts/2</link>
      <description>Second entry</description>
    </item>
  </channel>
</rss>`

func TestParseRSS_Basic(t *testing.T) {
	records, err := ParseRSS([]byte(rssFixture))
	if err != nil {
		t.Fatalf("ParseRSS: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	r := records[0]
	if r.ID != "item-1" {
		t.Fatalf("id: got %q", r.ID)
	}
	if r.Link != "https://example.org/alerts/1" {
		t.Fatalf("link: got %q", r.Link)
	}
	if r.Published != "2026-08-24T10:30:00.000Z" {
		t.Fatalf("published: got %q", r.Published)
	}
	if !strings.Contains(r.Geom, `"Point"`) || !strings.Contains(r.Geom, "18.07") {
		t.Fatalf("geom: got %q", r.Geom)
	}
	if len(r.Links) != 2 || r.Links[1] != "https://example.org/alerts/1.pdf" {
		t.Fatalf("links: got %v", r.Links)
	}

	if records[1].ID != "https://example.org/alerts/2" {
		t.Fatalf("fallback id: got %q", records[1].ID)
	}
}

func TestParseRSS_GeoRSSPolygonClosed(t *testing.T) {
	feed := `<rss xmlns:georss="http://www.georss.org/georss"><channel><item>
	  <title>Area alert</title>
	  <georss:polygon>0 0 0 2 2 2</georss:polygon>
	</item></channel></rss>`
	records, err := ParseRSS([]byte(feed))
	if err != nil {
		t.Fatalf("ParseRSS: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	geom := records[0].Geom
	if !strings.Contains(geom, `"Polygon"`) {
		t.Fatalf("geom: got %q", geom)
	}
	// ring closed: first coordinate repeated at the end
	if strings.Count(geom, "[0,0]") != 2 {
		t.Fatalf("ring not closed: %q", geom)
	}
}

const atomFixture = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:georss="http://www.georss.org/georss">
  <entry>
    <id>urn:event:1</id>
    <title>M 5.1 Earthquake</title>
    <link rel="self" href="https://example.org/self"/>
    <link rel="alternate" href="https://example.org/event/1"/>
    <summary>Strong shaking reported</summary>
    <published>2026-08-24T09:00:00+02:00</published>
    <updated>2026-08-24T07:30:00Z</updated>
    <georss:point>35.68 139.69</georss:point>
  </entry>
</feed>`

func TestParseAtom_Basic(t *testing.T) {
	records, err := ParseAtom([]byte(atomFixture))
	if err != nil {
		t.Fatalf("ParseAtom: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	r := records[0]
	if r.ID != "urn:event:1" {
		t.Fatalf("id: got %q", r.ID)
	}
	if r.Link != "https://example.org/event/1" {
		t.Fatalf("alternate link not preferred: got %q", r.Link)
	}
	if r.Published != "2026-08-24T07:00:00.000Z" {
		t.Fatalf("published not normalized to UTC: got %q", r.Published)
	}
	if r.Updated != "2026-08-24T07:30:00Z" {
		t.Fatalf("updated: got %q", r.Updated)
	}
	if !strings.Contains(r.Geom, "139.69") {
		t.Fatalf("geom: got %q", r.Geom)
	}
}

const capFixture = `<?xml version="1.0"?>
<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
  <identifier>PAAQ-1</identifier>
  <sent>2026-08-24T08:15:00Z</sent>
  <status>Actual</status>
  <msgType>Alert</msgType>
  <info>
    <event>Tsunami Warning</event>
    <headline>Tsunami Warning for coastal areas</headline>
    <description>A tsunami has been generated</description>
    <area>
      <areaDesc>Coastal Alaska</areaDesc>
      <polygon>60.0,-150.0 60.0,-148.0 59.0,-148.0</polygon>
    </area>
  </info>
</alert>`

func TestParseCAP_Basic(t *testing.T) {
	alerts, err := ParseCAP([]byte(capFixture))
	if err != nil {
		t.Fatalf("ParseCAP: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts", len(alerts))
	}
	a := alerts[0]
	if a.Identifier != "PAAQ-1" || a.Event != "Tsunami Warning" {
		t.Fatalf("alert fields: %+v", a)
	}
	if a.AreaDesc != "Coastal Alaska" {
		t.Fatalf("area desc: got %q", a.AreaDesc)
	}
	if !strings.Contains(a.Geom, `"Polygon"`) {
		t.Fatalf("geom: got %q", a.Geom)
	}
	// CAP pairs are lat,lon; GeoJSON wants lon first
	if !strings.Contains(a.Geom, "[-150,60]") {
		t.Fatalf("coordinate order wrong: %q", a.Geom)
	}
	if strings.Count(a.Geom, "[-150,60]") != 2 {
		t.Fatalf("ring not closed: %q", a.Geom)
	}
}

func TestParseCAP_SkipsAlertWithoutInfo(t *testing.T) {
	data := `<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
	  <identifier>EMPTY</identifier>
	</alert>`
	alerts, err := ParseCAP([]byte(data))
	if err != nil {
		t.Fatalf("ParseCAP: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("got %d alerts, want 0", len(alerts))
	}
}

func TestParseGeoJSON(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
	  {"id":"us7000abcd","properties":{"mag":5.1,"place":"12 km SSE of Honolulu"},
	   "geometry":{"type":"Point","coordinates":[-157.8,21.2,10.0]}}
	]}`
	features, err := ParseGeoJSON([]byte(data))
	if err != nil {
		t.Fatalf("ParseGeoJSON: %v", err)
	}
	if len(features) != 1 {
		t.Fatalf("got %d features", len(features))
	}
	if features[0].Properties["place"] != "12 km SSE of Honolulu" {
		t.Fatalf("properties: %+v", features[0].Properties)
	}

	other, err := ParseGeoJSON([]byte(`{"type":"Feature"}`))
	if err != nil {
		t.Fatalf("ParseGeoJSON non-collection: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("non-collection should yield no features")
	}
}

func TestParseJSONRecords(t *testing.T) {
	list, err := ParseJSONRecords([]byte(`[{"a":1},{"b":2}]`))
	if err != nil || len(list) != 2 {
		t.Fatalf("bare list: %v, %d", err, len(list))
	}

	wrapped, err := ParseJSONRecords([]byte(`{"vulnerabilities":[{"cve":{"id":"CVE-2026-0001"}}]}`))
	if err != nil || len(wrapped) != 1 {
		t.Fatalf("envelope: %v, %d", err, len(wrapped))
	}

	none, err := ParseJSONRecords([]byte(`{"unrelated":true}`))
	if err != nil || len(none) != 0 {
		t.Fatalf("no list key: %v, %d", err, len(none))
	}
}

func TestParseCSVRecords(t *testing.T) {
	data := "latitude,longitude,frp\n12.5,45.1,33.7\n-8.2,110.4,\n"
	records, err := ParseCSVRecords([]byte(data))
	if err != nil {
		t.Fatalf("ParseCSVRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0]["frp"] != "33.7" || records[1]["latitude"] != "-8.2" {
		t.Fatalf("records: %+v", records)
	}
}

func TestParseGovUKTravelAdviceIndex(t *testing.T) {
	data := `{"links":{"children":[
	  {"title":"France","base_path":"/foreign-travel-advice/france"},
	  {"title":"Japan","base_path":"/foreign-travel-advice/japan"}
	]}}`
	children, err := ParseGovUKTravelAdviceIndex([]byte(data))
	if err != nil {
		t.Fatalf("ParseGovUKTravelAdviceIndex: %v", err)
	}
	if len(children) != 2 || children[1]["title"] != "Japan" {
		t.Fatalf("children: %+v", children)
	}
}

const faaFixture = `<AIRPORT_STATUS_INFORMATION>
  <Delay_type>
    <Airport_Closure_List>
      <AirportStatus>
        <Name>Newark Liberty International</Name>
        <IATA>EWR</IATA>
        <ICAO>KEWR</ICAO>
        <City>Newark</City>
        <State>NJ</State>
        <UpdateTime>Mon Aug 24 10:00:00 2026</UpdateTime>
        <Status>
          <Delay>true</Delay>
          <Reason>WX:Thunderstorms</Reason>
          <AvgDelay>62 minutes</AvgDelay>
          <Type>Ground Delay</Type>
        </Status>
      </AirportStatus>
      <AirportStatus>
        <Name>Denver International</Name>
        <IATA>DEN</IATA>
        <Status><Delay>false</Delay></Status>
      </AirportStatus>
    </Airport_Closure_List>
  </Delay_type>
</AIRPORT_STATUS_INFORMATION>`

func TestParseFAAAirportStatus_KeepsDelayedOnly(t *testing.T) {
	statuses, err := ParseFAAAirportStatus([]byte(faaFixture))
	if err != nil {
		t.Fatalf("ParseFAAAirportStatus: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	s := statuses[0]
	if s.IATA != "EWR" || s.Reason != "WX:Thunderstorms" || s.AvgDelay != "62 minutes" {
		t.Fatalf("status: %+v", s)
	}
}
