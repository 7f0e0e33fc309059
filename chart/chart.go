// Package chart defines the chart context a computed astrolabe hands to the
// evaluation engine: a read-only graph of palaces and stars with a few lookup
// methods. The engine accepts any context value; this package is the
// canonical shape produced by the external computation engine and accepted
// over the wire.
//
// Nothing here computes astrology. Charts arrive fully computed.
package chart

import (
	"encoding/json"
	"fmt"
)

// Star is one star placed somewhere on the chart.
type Star struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Scope      string `json:"scope"`
	Brightness string `json:"brightness"`
	Mutagen    string `json:"mutagen"`
}

// Palace is one of the twelve palaces.
type Palace struct {
	Index            int     `json:"index"`
	Name             string  `json:"name"`
	IsBodyPalace     bool    `json:"isBodyPalace"`
	IsOriginalPalace bool    `json:"isOriginalPalace"`
	HeavenlyStem     string  `json:"heavenlyStem"`
	EarthlyBranch    string  `json:"earthlyBranch"`
	MajorStars       []*Star `json:"majorStars"`
	MinorStars       []*Star `json:"minorStars"`
	AdjectiveStars   []*Star `json:"adjectiveStars"`
}

// Chart is one computed chart context.
type Chart struct {
	Gender            string    `json:"gender"`
	SolarDate         string    `json:"solarDate"`
	LunarDate         string    `json:"lunarDate"`
	Time              string    `json:"time"`
	TimeRange         string    `json:"timeRange"`
	Sign              string    `json:"sign"`
	Zodiac            string    `json:"zodiac"`
	Soul              string    `json:"soul"`
	Body              string    `json:"body"`
	FiveElementsClass string    `json:"fiveElementsClass"`
	Palaces           []*Palace `json:"palaces"`
}

// FromJSON decodes a chart payload produced by the computation engine.
func FromJSON(data []byte) (*Chart, error) {
	var c Chart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding chart: %w", err)
	}
	return &c, nil
}

// Palace returns the palace with the given name, or nil.
func (c *Chart) Palace(name string) *Palace {
	for _, p := range c.Palaces {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Star returns the first star with the given name anywhere on the chart,
// or nil.
func (c *Chart) Star(name string) *Star {
	for _, p := range c.Palaces {
		for _, s := range p.AllStars() {
			if s.Name == name {
				return s
			}
		}
	}
	return nil
}

// PalaceOfStar returns the palace holding the named star, or nil.
func (c *Chart) PalaceOfStar(name string) *Palace {
	for _, p := range c.Palaces {
		if p.HasStar(name) {
			return p
		}
	}
	return nil
}

// AllStars returns the palace's stars of every class, majors first.
func (p *Palace) AllStars() []*Star {
	out := make([]*Star, 0, len(p.MajorStars)+len(p.MinorStars)+len(p.AdjectiveStars))
	out = append(out, p.MajorStars...)
	out = append(out, p.MinorStars...)
	out = append(out, p.AdjectiveStars...)
	return out
}

// HasStar reports whether the named star sits in this palace.
func (p *Palace) HasStar(name string) bool {
	for _, s := range p.AllStars() {
		if s.Name == name {
			return true
		}
	}
	return false
}

// StarNames returns the names of every star in this palace.
func (p *Palace) StarNames() []string {
	stars := p.AllStars()
	names := make([]string, len(stars))
	for i, s := range stars {
		names[i] = s.Name
	}
	return names
}
