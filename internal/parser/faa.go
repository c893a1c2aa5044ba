package parser

import (
	"fmt"
	"strings"
)

// AirportStatus is one FAA airport status entry. Only airports with an
// active delay survive parsing.
type AirportStatus struct {
	Name       string
	IATA       string
	ICAO       string
	City       string
	State      string
	Reason     string
	AvgDelay   string
	Trend      string
	Type       string
	Program    string
	EndTime    string
	UpdateTime string
}

type faaStatus struct {
	Delay    string `xml:"Delay"`
	Reason   string `xml:"Reason"`
	AvgDelay string `xml:"AvgDelay"`
	Trend    string `xml:"Trend"`
	Type     string `xml:"Type"`
	Program  string `xml:"Program"`
	EndTime  string `xml:"EndTime"`
}

type faaAirport struct {
	Name       string    `xml:"Name"`
	IATA       string    `xml:"IATA"`
	ICAO       string    `xml:"ICAO"`
	City       string    `xml:"City"`
	State      string    `xml:"State"`
	UpdateTime string    `xml:"UpdateTime"`
	Status     faaStatus `xml:"Status"`
}

// ParseFAAAirportStatus reads the FAA airport status XML and keeps the
// delayed airports.
func ParseFAAAirportStatus(data []byte) ([]AirportStatus, error) {
	airports, err := collectElements[faaAirport](data, "AirportStatus")
	if err != nil {
		return nil, fmt.Errorf("parse faa status: %w", err)
	}

	var out []AirportStatus
	for _, a := range airports {
		if !strings.EqualFold(strings.TrimSpace(a.Status.Delay), "true") {
			continue
		}
		out = append(out, AirportStatus{
			Name:       strings.TrimSpace(a.Name),
			IATA:       strings.TrimSpace(a.IATA),
			ICAO:       strings.TrimSpace(a.ICAO),
			City:       strings.TrimSpace(a.City),
			State:      strings.TrimSpace(a.State),
			Reason:     strings.TrimSpace(a.Status.Reason),
			AvgDelay:   strings.TrimSpace(a.Status.AvgDelay),
			Trend:      strings.TrimSpace(a.Status.Trend),
			Type:       strings.TrimSpace(a.Status.Type),
			Program:    strings.TrimSpace(a.Status.Program),
			EndTime:    strings.TrimSpace(a.Status.EndTime),
			UpdateTime: strings.TrimSpace(a.UpdateTime),
		})
	}
	return out, nil
}
