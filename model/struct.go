package model

import (
	"slices"
	"strings"
)

// CatalogItem is one purchased product as listed by the catalog service.
type CatalogItem struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
}

// FileTypeSet holds the format tags offered for a product, in service order.
type FileTypeSet []string

func (s FileTypeSet) Has(format string) bool {
	return slices.Contains(s, format)
}

// Intersect keeps the formats of s that also appear in wanted, preserving
// the order of s.
func (s FileTypeSet) Intersect(wanted []string) FileTypeSet {
	out := make(FileTypeSet, 0, len(s))
	for _, f := range s {
		if slices.Contains(wanted, f) && !out.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// ParseFormats splits a comma separated list such as "pdf,epub, code".
func ParseFormats(list string) []string {
	formats := make([]string, 0)
	for _, f := range strings.Split(list, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" && !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	return formats
}

// ArchiveFormats are delivered as zip bundles and renamed to "name [fmt].zip".
var ArchiveFormats = []string{"code", "video"}

func IsArchiveFormat(format string) bool {
	return slices.Contains(ArchiveFormats, format)
}

// DownloadTarget is a single (item, format) unit of work.
type DownloadTarget struct {
	Item   CatalogItem
	Format string
	URL    string
	// Path is where the transfer writes the file.
	Path string
	// Target is the completed artifact; equal to Path unless the format is
	// archive-style.
	Target string
}

func (t DownloadTarget) Key() TargetKey {
	return TargetKey{ProductID: t.Item.ProductID, Format: t.Format}
}

type TargetKey struct {
	ProductID string
	Format    string
}
