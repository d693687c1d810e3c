// Package badges resolves chat badge references (set id + version id) to
// display metadata. Catalogs are fetched once from the badge provider into a
// two-tier cache where channel-scoped badges shadow the global defaults.
package badges

import "sync"

// Version is one variant of a badge set as returned by the provider.
type Version struct {
	ID          string `json:"id"`
	ImageURL1x  string `json:"image_url_1x"`
	ImageURL2x  string `json:"image_url_2x"`
	ImageURL4x  string `json:"image_url_4x"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Set is a named badge category with its versions.
type Set struct {
	SetID    string    `json:"set_id"`
	Versions []Version `json:"versions"`
}

// Ref is a raw badge reference carried by an incoming chat message.
type Ref struct {
	SetID     string
	VersionID string
}

// Resolved is the presentation form of a badge.
type Resolved struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	ImageURL string `json:"image_url"`
	Title    string `json:"title"`
	// Fallback is set when the badge was not found in the cache and the
	// image URL was synthesized.
	Fallback bool `json:"fallback,omitempty"`
}

type versionMap map[string]Version

// Cache maps (set, version) to badge metadata in two tiers.
type Cache struct {
	mu      sync.RWMutex
	channel map[string]versionMap
	global  map[string]versionMap
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		channel: make(map[string]versionMap),
		global:  make(map[string]versionMap),
	}
}

// Populate stores both tiers. A set id that is already present has its whole
// version map replaced, versions are not merged.
func (c *Cache) Populate(channelSets, globalSets []Set) {
	channel := index(channelSets)
	global := index(globalSets)

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, versions := range channel {
		c.channel[id] = versions
	}
	for id, versions := range global {
		c.global[id] = versions
	}
}

func index(sets []Set) map[string]versionMap {
	out := make(map[string]versionMap, len(sets))
	for _, set := range sets {
		versions := make(versionMap, len(set.Versions))
		for _, v := range set.Versions {
			versions[v.ID] = v
		}
		out[set.SetID] = versions
	}
	return out
}

// Resolve looks the badge up in the channel tier, then the global tier.
func (c *Cache) Resolve(setID, versionID string) (Resolved, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.channel[setID][versionID]; ok {
		return Resolved{ID: setID, Version: versionID, ImageURL: v.ImageURL1x, Title: v.Title}, true
	}
	if v, ok := c.global[setID][versionID]; ok {
		return Resolved{ID: setID, Version: versionID, ImageURL: v.ImageURL1x, Title: v.Title}, true
	}
	return Resolved{}, false
}

// Len returns the number of channel and global badge sets held.
func (c *Cache) Len() (channel, global int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channel), len(c.global)
}
