package sched

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/normalize"
	"github.com/evhagen/sitmon/internal/parser"
)

// FeedPackEntry is one feed definition inside a pack file. Only rss
// entries become sources; other types are reserved.
type FeedPackEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	URL         string   `yaml:"url"`
	Region      string   `yaml:"region"`
	Tags        []string `yaml:"tags"`
	PollSeconds int      `yaml:"poll_seconds"`
	Enabled     *bool    `yaml:"enabled"`
}

// FeedPack is one yaml file from the feeds directory; the pack id is
// the file name without extension.
type FeedPack struct {
	PackID  string
	Entries []FeedPackEntry
}

// LoadFeedPacks reads every *.yaml file in dir, sorted by name. A
// missing directory yields no packs.
func LoadFeedPacks(dir string) ([]FeedPack, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list feed packs: %w", err)
	}
	sort.Strings(paths)

	var packs []FeedPack
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read feed pack %s: %w", path, err)
		}
		packID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		var entries []FeedPackEntry
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse feed pack %s: %w", path, err)
		}
		for i := range entries {
			if entries[i].Type == "" {
				entries[i].Type = "rss"
			}
			if entries[i].Region == "" {
				entries[i].Region = packID
			}
			if entries[i].PollSeconds <= 0 {
				entries[i].PollSeconds = 180
			}
		}
		packs = append(packs, FeedPack{PackID: packID, Entries: entries})
	}
	return packs, nil
}

// SourceIDs lists the source ids a pack contributes, for bulk
// enable/disable of a whole pack.
func (p FeedPack) SourceIDs() []string {
	var ids []string
	for _, e := range p.Entries {
		if e.Type == "rss" {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// FeedPackSources turns loaded packs into pollable sources. Entries
// normalize as news with the pack's tags.
func FeedPackSources(packs []FeedPack) []Plugin {
	var plugins []Plugin
	for _, pack := range packs {
		for _, entry := range pack.Entries {
			if entry.Type != "rss" {
				continue
			}
			id, tags := entry.ID, entry.Tags
			enabled := true
			if entry.Enabled != nil {
				enabled = *entry.Enabled
			}
			plugins = append(plugins, Plugin{
				SourceID:            id,
				Name:                entry.Name,
				URL:                 entry.URL,
				SourceType:          "rss",
				PollIntervalSeconds: entry.PollSeconds,
				DefaultEnabled:      enabled,
				Decode: decodeRSS(func(r parser.FeedRecord, fetchedAt string) model.Item {
					return normalize.GenericRSS(id, r, fetchedAt, model.CategoryNews, tags)
				}),
			})
		}
	}
	return plugins
}
