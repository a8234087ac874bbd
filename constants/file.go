package constants

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultImageFormat is used when the source encoding cannot be determined.
const DefaultImageFormat = "png"

// imageFormats maps PDF image stream filters (and their already-normalized
// short forms) to output file extensions.
var imageFormats = map[string]string{
	"DCTDecode":      "jpg",
	"JPXDecode":      "jp2",
	"FlateDecode":    "png",
	"CCITTFaxDecode": "tiff",
	"jpg":            "jpg",
	"jpeg":           "jpg",
	"jp2":            "jp2",
	"png":            "png",
	"tiff":           "tiff",
}

// NormalizeImageFormat maps a PDF compression filter name or a short format
// label to an output extension, defaulting to png when undetermined.
func NormalizeImageFormat(s string) string {
	if f, ok := imageFormats[s]; ok {
		return f
	}
	if f, ok := imageFormats[strings.ToLower(s)]; ok {
		return f
	}
	return DefaultImageFormat
}

// DocumentStem strips the extension from a document file name.
func DocumentStem(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ImageName derives the storage key for an extracted image, unique within a
// document: {stem}_page{N}_img{M}.{ext}.
func ImageName(fileName string, pageNumber, sequence int, format string) string {
	return fmt.Sprintf("%s_page%d_img%d.%s", DocumentStem(fileName), pageNumber, sequence, format)
}
