// Package hls implements M3U8 playlist parsing, AES-128 segment decryption,
// and the segment-fetch/merge pipeline for HLS downloads.
package hls

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"vdengine/internal/model"
)

// ParsePlaylist parses a media playlist body fetched from playlistURL.
// Parsing is tolerant: unknown tags are ignored, malformed EXTINF durations
// default to 0, and a missing ENDLIST only sets IsLive (the engine still
// treats the result as a finite snapshot).
func ParsePlaylist(body []byte, playlistURL string) (*model.M3U8Playlist, error) {
	lines := strings.Split(string(body), "\n")
	if len(lines) == 0 || !strings.HasPrefix(strings.TrimSpace(firstNonEmpty(lines)), "#EXTM3U") {
		return nil, fmt.Errorf("playlist does not start with #EXTM3U")
	}

	base, err := baseURL(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("resolve base url: %w", err)
	}

	playlist := &model.M3U8Playlist{PlaylistURL: playlistURL, BaseURL: base, IsLive: true}

	var (
		pendingDuration float64
		pendingEnc      *model.Encryption
		pendingRange    *byteRange
		lastRangeEnd    = int64(-1)
		index           int
	)

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			if v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-VERSION:")); err == nil {
				playlist.Version = v
			}
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if d, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64); err == nil {
				playlist.TargetDuration = d
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			pendingDuration = parseExtinfDuration(line)
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			enc := parseKeyTag(line)
			pendingEnc = enc
			playlist.Encryption = enc
		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			br, ok := parseByteRange(line, lastRangeEnd)
			if ok {
				pendingRange = br
			}
		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			playlist.IsLive = false
		case strings.HasPrefix(line, "#"):
			// Unrecognized tag; ignored.
		default:
			segURL, err := resolveURL(base, line)
			if err != nil {
				continue
			}
			seg := model.Segment{Index: index, URL: segURL, Duration: pendingDuration, Encryption: pendingEnc}
			if pendingRange != nil {
				seg.HasByteRange = true
				seg.RangeStart = pendingRange.start
				seg.RangeEnd = pendingRange.end
				lastRangeEnd = pendingRange.end
			}
			playlist.Segments = append(playlist.Segments, seg)
			index++
			pendingDuration = 0
			pendingRange = nil
		}
	}

	return playlist, nil
}

type byteRange struct {
	start, end int64
}

// parseByteRange handles #EXT-X-BYTERANGE:L[@O]. A zero length is invalid
// and the byte-range is discarded (segment falls back to no byte-range).
func parseByteRange(line string, lastEnd int64) (*byteRange, bool) {
	body := strings.TrimPrefix(line, "#EXT-X-BYTERANGE:")
	var length, offset int64
	var hasOffset bool

	if at := strings.IndexByte(body, '@'); at >= 0 {
		l, err1 := strconv.ParseInt(body[:at], 10, 64)
		o, err2 := strconv.ParseInt(body[at+1:], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, false
		}
		length, offset, hasOffset = l, o, true
	} else {
		l, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return nil, false
		}
		length = l
	}

	if length <= 0 {
		return nil, false
	}
	start := offset
	if !hasOffset {
		start = lastEnd + 1
	}
	return &byteRange{start: start, end: start + length - 1}, true
}

// parseKeyTag handles #EXT-X-KEY:METHOD=<m>,URI="<url>",IV=<hex>.
func parseKeyTag(line string) *model.Encryption {
	body := strings.TrimPrefix(line, "#EXT-X-KEY:")
	attrs := parseAttrList(body)

	enc := &model.Encryption{Method: model.EncryptionMethod(strings.ToUpper(attrs["METHOD"]))}
	if uri, ok := attrs["URI"]; ok {
		enc.KeyURL = strings.Trim(uri, `"`)
	}
	if iv, ok := attrs["IV"]; ok {
		enc.IVHex = strings.TrimPrefix(strings.TrimPrefix(iv, "0x"), "0X")
	}
	return enc
}

// parseAttrList splits a comma-separated KEY=VALUE attribute list, tolerant
// of commas embedded inside quoted values.
func parseAttrList(s string) map[string]string {
	out := make(map[string]string)
	var inQuotes bool
	var field strings.Builder
	var fields []string

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			field.WriteRune(r)
		case r == ',' && !inQuotes:
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	fields = append(fields, field.String())

	for _, f := range fields {
		eq := strings.IndexByte(f, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(f[:eq])
		val := strings.TrimSpace(f[eq+1:])
		out[key] = val
	}
	return out
}

func parseExtinfDuration(line string) float64 {
	body := strings.TrimPrefix(line, "#EXTINF:")
	comma := strings.IndexByte(body, ',')
	if comma >= 0 {
		body = body[:comma]
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(body), 64)
	if err != nil {
		return 0
	}
	return d
}

// DeriveIV returns the 16-byte IV for segment index, per §4.4: the key
// tag's explicit IV if present, else 8 zero bytes followed by the segment
// index as a 64-bit big-endian integer.
func DeriveIV(enc *model.Encryption, segmentIndex int) ([]byte, error) {
	if enc.IVHex != "" {
		iv, err := hex.DecodeString(enc.IVHex)
		if err != nil {
			return nil, fmt.Errorf("decode IV hex: %w", err)
		}
		if len(iv) != 16 {
			return nil, fmt.Errorf("IV must be 16 bytes, got %d", len(iv))
		}
		return iv, nil
	}

	iv := make([]byte, 16)
	idx := uint64(segmentIndex)
	for i := 0; i < 8; i++ {
		iv[15-i] = byte(idx >> (8 * i))
	}
	return iv, nil
}

func baseURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	idx := strings.LastIndexByte(u.Path, '/')
	if idx >= 0 {
		u.Path = u.Path[:idx+1]
	}
	u.RawQuery = ""
	return u.String(), nil
}

func resolveURL(base, ref string) (string, error) {
	baseU, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refU, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseU.ResolveReference(refU).String(), nil
}

func firstNonEmpty(lines []string) string {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return l
		}
	}
	return ""
}
