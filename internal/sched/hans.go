package sched

import (
	"context"
	"fmt"
	"strings"

	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/normalize"
	"github.com/evhagen/sitmon/internal/parser"
	"github.com/evhagen/sitmon/internal/timeiso"
)

const hansVolcanoPrefix = "hans_volcano_"

// hansVolcanoPlugin builds the per-volcano CAP RSS source for one
// elevated volcano.
func hansVolcanoPlugin(vnum, name string) Plugin {
	sourceID := hansVolcanoPrefix + vnum
	return Plugin{
		SourceID:            sourceID,
		Name:                fmt.Sprintf("USGS HANS Volcano (%s)", name),
		URL:                 "https://volcanoes.usgs.gov/hans-public/rss/cap/volcano/" + vnum,
		SourceType:          "xml_api",
		PollIntervalSeconds: 600,
		DefaultEnabled:      true,
		Decode: decodeRSS(func(r parser.FeedRecord, fetchedAt string) model.Item {
			return normalize.HANSVolcanoRSSItem(sourceID, r, fetchedAt, name, vnum)
		}),
	}
}

// expandHANSVolcanoes keeps one per-volcano feed source per currently
// elevated volcano: new ones are registered and enabled, feeds for
// volcanoes no longer elevated are disabled but kept for history.
func (s *Scheduler) expandHANSVolcanoes(ctx context.Context, items []model.Item) {
	current := make(map[string]string)
	for _, it := range items {
		vnum, _ := it.Raw["vnum"].(string)
		vnum = strings.TrimSpace(vnum)
		if vnum == "" {
			continue
		}
		name, _ := it.Raw["volcano_name"].(string)
		if name == "" {
			name = it.Title
		}
		current[vnum] = name
	}

	existing, err := s.st.SourceIDsWithPrefix(ctx, hansVolcanoPrefix)
	if err != nil {
		s.log.Error().Err(err).Msg("hans expansion: list sources failed")
		return
	}

	nowISO := timeiso.Now()
	currentIDs := make([]string, 0, len(current))
	for vnum, name := range current {
		p := hansVolcanoPlugin(vnum, name)
		s.Register([]Plugin{p})
		if err := s.st.EnsureSource(ctx, p.Source(), nowISO); err != nil {
			s.log.Error().Err(err).Str("source_id", p.SourceID).Msg("hans expansion: ensure failed")
			continue
		}
		currentIDs = append(currentIDs, p.SourceID)
	}
	if err := s.st.SetSourcesEnabled(ctx, currentIDs, true); err != nil {
		s.log.Error().Err(err).Msg("hans expansion: enable failed")
	}

	var stale []string
	for _, id := range existing {
		if _, ok := current[strings.TrimPrefix(id, hansVolcanoPrefix)]; !ok {
			stale = append(stale, id)
		}
	}
	if err := s.st.SetSourcesEnabled(ctx, stale, false); err != nil {
		s.log.Error().Err(err).Msg("hans expansion: disable failed")
	}
}

// reviveDynamic rebuilds the plugin for a per-volcano source that
// survived a restart in the sources table but not in memory.
func (s *Scheduler) reviveDynamic(src model.Source) (Plugin, bool) {
	if !strings.HasPrefix(src.SourceID, hansVolcanoPrefix) {
		return Plugin{}, false
	}
	vnum := strings.TrimPrefix(src.SourceID, hansVolcanoPrefix)
	name := strings.TrimSuffix(strings.TrimPrefix(src.Name, "USGS HANS Volcano ("), ")")
	p := hansVolcanoPlugin(vnum, name)
	s.Register([]Plugin{p})
	return p, true
}
