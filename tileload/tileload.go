// Package tileload builds the fetch URL for a tile id under one of the
// handful of naming conventions tile servers use. It is grounded on
// original_source/alpine_renderer/TileLoadService.h's UrlPattern enum
// and build_tile_url method; the network transport that header wires
// up (QNetworkAccessManager) is out of scope here (spec.md §1) — this
// package only ever returns a string.
package tileload

import (
	"fmt"
	"strings"

	"terrainsched/srs"
)

// UrlPattern selects how a tile id is encoded into a URL path.
type UrlPattern int

const (
	// ZXY orders path segments as zoom/x/y, with y=0 the southernmost row.
	ZXY UrlPattern = iota
	// ZYX orders path segments as zoom/y/x, with y=0 the southernmost row.
	ZYX
	// ZXYYPointingSouth is ZXY with y=0 the northernmost row instead.
	ZXYYPointingSouth
	// ZYXYPointingSouth is ZYX with y=0 the northernmost row instead.
	ZYXYPointingSouth
)

// Template builds tile URLs under a fixed base URL, pattern, and file
// extension.
type Template struct {
	BaseURL    string
	Pattern    UrlPattern
	FileEnding string
}

// NewTemplate returns a Template, trimming a trailing slash from
// baseURL and a leading dot from fileEnding so BuildURL never produces
// a doubled separator.
func NewTemplate(baseURL string, pattern UrlPattern, fileEnding string) Template {
	return Template{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Pattern:    pattern,
		FileEnding: strings.TrimPrefix(fileEnding, "."),
	}
}

// BuildURL returns the URL id should be fetched from under t.
func (t Template) BuildURL(id srs.TileID) string {
	x, y := id.X, id.Y
	if t.Pattern == ZXYYPointingSouth || t.Pattern == ZYXYPointingSouth {
		y = flipY(id)
	}

	var path string
	switch t.Pattern {
	case ZXY, ZXYYPointingSouth:
		path = fmt.Sprintf("%d/%d/%d", id.Zoom, x, y)
	case ZYX, ZYXYPointingSouth:
		path = fmt.Sprintf("%d/%d/%d", id.Zoom, y, x)
	}

	return fmt.Sprintf("%s/%s.%s", t.BaseURL, path, t.FileEnding)
}

// flipY converts id.Y from a southern-origin row index to a
// northern-origin one (or back; the transform is its own inverse),
// within id's zoom level's (2^zoom) rows.
func flipY(id srs.TileID) uint32 {
	tilesPerAxis := uint32(1) << id.Zoom
	return tilesPerAxis - 1 - id.Y
}
