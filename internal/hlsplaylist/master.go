// Package hlsplaylist implements line-oriented state-machine parsers for the
// two RFC 8216 playlist flavors this system consumes: master playlists
// (variant stream selection) and media playlists (segment lists).
package hlsplaylist

import (
	"fmt"
	"strconv"
	"strings"
)

// StreamInfo is one #EXT-X-STREAM-INF variant entry from a master playlist.
type StreamInfo struct {
	Bandwidth   uint32
	FrameWidth  uint32
	FrameHeight uint32
	// Codecs holds the CODECS attribute split on internal commas, or nil if
	// the variant carried none. This supplements the source parser, which
	// only recorded the raw attribute without decoding it (see SPEC_FULL.md).
	Codecs []string
	URI    string
}

// MasterPlaylist is the parsed result of an HLS master playlist: an ordered
// list of variant streams plus the last #EXT-X-VERSION seen.
type MasterPlaylist struct {
	Version int
	Streams []StreamInfo
}

type masterState int

const (
	masterStateInit masterState = iota
	masterStateInputLine
	masterStatePlaylistLine
)

// MasterParser consumes one trimmed line at a time and accumulates variant
// entries into a MasterPlaylist. It never blocks and never looks ahead: a
// suspension between Feed calls (e.g. across HTTP read chunks) is always
// safe to resume from, matching the orchestrator's cooperative model.
type MasterParser struct {
	state   masterState
	pending StreamInfo
}

// Feed processes one playlist line, already stripped of its trailing
// newline. Leading/trailing whitespace is trimmed here. Lines before the
// leading "#EXTM3U" tag are ignored; unrecognized tags and attribute keys
// are ignored rather than rejected.
func (p *MasterParser) Feed(playlist *MasterPlaylist, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	switch p.state {
	case masterStateInit:
		if line == "#EXTM3U" {
			p.state = masterStateInputLine
		}
		return nil

	case masterStateInputLine:
		if !strings.HasPrefix(line, "#") {
			return nil
		}
		tag, value, hasValue := strings.Cut(line, ":")
		if !hasValue {
			return nil
		}
		switch tag {
		case "#EXT-X-VERSION":
			v, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("hlsplaylist: EXT-X-VERSION %q: %w", value, err)
			}
			playlist.Version = v
		case "#EXT-X-STREAM-INF":
			p.pending = StreamInfo{}
			parseStreamInfAttrs(&p.pending, value)
			p.state = masterStatePlaylistLine
		}
		return nil

	case masterStatePlaylistLine:
		p.pending.URI = line
		playlist.Streams = append(playlist.Streams, p.pending)
		p.pending = StreamInfo{}
		p.state = masterStateInputLine
		return nil
	}
	return nil
}

// parseStreamInfAttrs walks the comma-separated attribute list of an
// EXT-X-STREAM-INF tag, splitting on commas outside quoted values so a
// CODECS="a,b" attribute isn't mistaken for two attributes.
func parseStreamInfAttrs(info *StreamInfo, attrs string) {
	for _, kv := range splitAttrs(attrs) {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "BANDWIDTH":
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				info.Bandwidth = uint32(n)
			}
		case "RESOLUTION":
			w, h, ok := strings.Cut(value, "x")
			if !ok {
				continue
			}
			if fw, err := strconv.ParseUint(w, 10, 32); err == nil {
				info.FrameWidth = uint32(fw)
			}
			if fh, err := strconv.ParseUint(h, 10, 32); err == nil {
				info.FrameHeight = uint32(fh)
			}
		case "CODECS":
			info.Codecs = strings.Split(value, ",")
		}
	}
}

// splitAttrs splits a comma-separated attribute list on commas that fall
// outside a pair of double quotes.
func splitAttrs(s string) []string {
	var attrs []string
	inQuotes := false
	start := 0
	for i, r := range s {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				attrs = append(attrs, s[start:i])
				start = i + 1
			}
		}
	}
	attrs = append(attrs, s[start:])
	return attrs
}
