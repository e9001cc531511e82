package vision

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strings"
)

// MIMEPDF is the media type of a whole PDF document. Vision models accept page images only.
const MIMEPDF = "application/pdf"

// SniffMIME detects the media type of an uploaded page. JPEG is assumed when nothing matches.
func SniffMIME(b []byte) string {
	switch {
	case len(b) >= 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return "image/jpeg"
	case len(b) >= 8 && bytes.Equal(b[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return "image/png"
	case len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return "image/webp"
	case len(b) >= 5 && string(b[:5]) == "%PDF-":
		return MIMEPDF
	}
	if ct := http.DetectContentType(b); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}

// DataURL encodes an image for inline transport in a chat message.
func DataURL(mime string, image []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}
