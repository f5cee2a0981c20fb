package extract

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"livecat/internal/catalog"
)

// maxDecompressed caps decompression to guard against hostile or
// corrupt archives.
const maxDecompressed = 50 << 20

// maxDeviceHints bounds the distinct device names kept per document.
const maxDeviceHints = 250

// maxDeviceSeq bounds the ordered device sequence per document.
const maxDeviceSeq = 500

// maxNameLen filters out attribute values too long to be display names.
const maxNameLen = 120

// Tag names recognized as track variants, mapped to the track type
// stored on the entity.
var trackTags = map[string]string{
	"AudioTrack":  "audio",
	"MidiTrack":   "midi",
	"ReturnTrack": "return",
	"MasterTrack": "master",
	"GroupTrack":  "group",
}

// Tag names recognized as clip variants.
var clipTags = map[string]string{
	"AudioClip": "audio",
	"MidiClip":  "midi",
}

// Attribute names that carry a device or plugin display name. Checked
// in order; the first match wins.
var deviceNameAttrs = []string{
	"PluginName", "PlugName", "DeviceName", "VstPlugin", "AuPlugin",
	"PluginDesc", "Manufacturer",
}

// Attribute names that carry a generic display name.
var genericNameAttrs = []string{"Name", "DisplayName", "EffectiveName", "UserName"}

// Result is the outcome of extracting one document.
type Result struct {
	Status   catalog.ParseStatus
	Error    string
	Tempo    float64
	Entities []catalog.Entity
	// RefCandidates are media paths seen anywhere in the document,
	// deduplicated and sorted; existence is resolved separately.
	RefCandidates []string
}

// TrackCounts tallies the track entities by type.
func (r *Result) TrackCounts() (audio, midi, ret, master, total int) {
	for _, e := range r.Entities {
		if e.Kind != catalog.EntityTrack {
			continue
		}
		total++
		switch e.Type {
		case "audio":
			audio++
		case "midi":
			midi++
		case "return":
			ret++
		case "master":
			master++
		}
	}
	return
}

// EntityCounts tallies the device and routing entities.
func (r *Result) EntityCounts() (devices, routing int) {
	for _, e := range r.Entities {
		switch e.Kind {
		case catalog.EntityDevice:
			devices++
		case catalog.EntityRouting:
			routing++
		}
	}
	return
}

// ClipCounts tallies the clip entities by type.
func (r *Result) ClipCounts() (audio, midi, total int) {
	for _, e := range r.Entities {
		if e.Kind != catalog.EntityClip {
			continue
		}
		total++
		switch e.Type {
		case "audio":
			audio++
		case "midi":
			midi++
		}
	}
	return
}

// Decompress returns the XML payload of a document file. Gzip input is
// detected by magic bytes (1F 8B); anything else is assumed to be plain
// XML already.
func Decompress(raw []byte) ([]byte, error) {
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip open: %w", err)
		}
		defer gz.Close()

		out, err := io.ReadAll(io.LimitReader(gz, maxDecompressed+1))
		if err != nil {
			return out, fmt.Errorf("gzip read: %w", err)
		}
		if len(out) > maxDecompressed {
			return nil, fmt.Errorf("decompressed payload exceeds %d bytes", maxDecompressed)
		}
		return out, nil
	}
	return raw, nil
}

// Extract parses a raw (possibly compressed) document into entities and
// reference candidates. It never returns an error: decode failures are
// reported through the result's Status and Error fields.
func Extract(raw []byte) *Result {
	res := &Result{Status: catalog.ParseOK}

	data, err := Decompress(raw)
	if err != nil {
		res.Status = catalog.ParseFailed
		res.Error = err.Error()
		return res
	}

	p := newParser(res)
	if err := p.run(data); err != nil {
		// Anything salvaged before the failure is kept.
		if len(res.Entities) > 0 || len(res.RefCandidates) > 0 {
			res.Status = catalog.ParsePartial
		} else {
			res.Status = catalog.ParseFailed
		}
		res.Error = err.Error()
	}

	res.RefCandidates = dedupSorted(res.RefCandidates)
	return res
}

// parser walks the token stream, keeping just enough context (the track
// stack) to attribute clips, devices and routing to their track.
type parser struct {
	res         *Result
	trackStack  []int // indices into res.Entities
	clipCount   int
	deviceCount int
	routeCount  int
	deviceSeen  map[string]bool
	tempoSet    bool
}

func newParser(res *Result) *parser {
	return &parser{res: res, deviceSeen: make(map[string]bool)}
}

func (p *parser) run(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// Version drift produces undeclared entities and stray charset
	// names; keep decoding instead of failing.
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	sawToken := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			if !sawToken {
				return fmt.Errorf("empty document")
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("xml decode: %w", err)
		}
		sawToken = true

		switch t := tok.(type) {
		case xml.StartElement:
			p.startElement(t)
		case xml.EndElement:
			p.endElement(t)
		}
	}
}

func (p *parser) currentTrack() int {
	if len(p.trackStack) == 0 {
		return -1
	}
	return p.res.Entities[p.trackStack[len(p.trackStack)-1]].Index
}

func (p *parser) startElement(el xml.StartElement) {
	tag := el.Name.Local
	attrs := attrMap(el.Attr)

	// Any attribute value can hide a sample path, independent of the
	// surrounding tag.
	for _, a := range el.Attr {
		if catalog.IsMediaReference(a.Value) {
			p.res.RefCandidates = append(p.res.RefCandidates, strings.TrimSpace(a.Value))
		}
	}

	switch {
	case trackTags[tag] != "":
		idx := 0
		for _, e := range p.res.Entities {
			if e.Kind == catalog.EntityTrack {
				idx++
			}
		}
		p.res.Entities = append(p.res.Entities, catalog.Entity{
			Kind:       catalog.EntityTrack,
			Index:      idx,
			TrackIndex: idx,
			Type:       trackTags[tag],
			Name:       pickName(attrs, genericNameAttrs),
			Meta:       residualMeta(attrs, genericNameAttrs),
		})
		p.trackStack = append(p.trackStack, len(p.res.Entities)-1)

	case clipTags[tag] != "":
		length, _ := strconv.ParseFloat(attrs["Length"], 64)
		p.res.Entities = append(p.res.Entities, catalog.Entity{
			Kind:       catalog.EntityClip,
			Index:      p.clipCount,
			TrackIndex: p.currentTrack(),
			Type:       clipTags[tag],
			Name:       pickName(attrs, genericNameAttrs),
			Length:     length,
			Meta:       residualMeta(attrs, append([]string{"Length"}, genericNameAttrs...)),
		})
		p.clipCount++

	case tag == "Tempo":
		if !p.tempoSet {
			if v, err := strconv.ParseFloat(attrs["Value"], 64); err == nil && v > 0 {
				p.res.Tempo = v
				p.tempoSet = true
			}
		}

	case strings.Contains(tag, "Routing") && attrs["Value"] != "":
		direction := "output"
		if strings.HasPrefix(tag, "Input") {
			direction = "input"
		}
		p.res.Entities = append(p.res.Entities, catalog.Entity{
			Kind:       catalog.EntityRouting,
			Index:      p.routeCount,
			TrackIndex: p.currentTrack(),
			Direction:  direction,
			Value:      attrs["Value"],
			Meta:       residualMeta(attrs, []string{"Value"}),
		})
		p.routeCount++

	case isDeviceTag(tag, attrs):
		name := pickName(attrs, deviceNameAttrs)
		if name == "" {
			name = pickName(attrs, genericNameAttrs)
		}
		if name == "" || p.deviceCount >= maxDeviceSeq {
			return
		}
		if len(p.deviceSeen) >= maxDeviceHints && !p.deviceSeen[name] {
			return
		}
		p.deviceSeen[name] = true
		p.res.Entities = append(p.res.Entities, catalog.Entity{
			Kind:       catalog.EntityDevice,
			Index:      p.deviceCount,
			TrackIndex: p.currentTrack(),
			Type:       tag,
			Name:       name,
			Meta:       residualMeta(attrs, append(deviceNameAttrs, genericNameAttrs...)),
		})
		p.deviceCount++
	}
}

func (p *parser) endElement(el xml.EndElement) {
	if trackTags[el.Name.Local] != "" && len(p.trackStack) > 0 {
		p.trackStack = p.trackStack[:len(p.trackStack)-1]
	}
}

// isDeviceTag recognizes device elements either by tag shape or by the
// presence of a device-name attribute.
func isDeviceTag(tag string, attrs map[string]string) bool {
	if tag == "Device" || strings.HasSuffix(tag, "Device") {
		return true
	}
	for _, key := range deviceNameAttrs {
		if attrs[key] != "" {
			return true
		}
	}
	return false
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

// pickName returns the first usable display-name attribute value.
func pickName(attrs map[string]string, keys []string) string {
	for _, key := range keys {
		v := strings.TrimSpace(attrs[key])
		if v != "" && len(v) <= maxNameLen {
			return v
		}
	}
	return ""
}

// residualMeta keeps attributes that were not promoted to columns.
func residualMeta(attrs map[string]string, promoted []string) map[string]string {
	meta := make(map[string]string)
	for k, v := range attrs {
		keep := true
		for _, p := range promoted {
			if k == p {
				keep = false
				break
			}
		}
		if keep && v != "" {
			meta[k] = v
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func dedupSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
