// Package datauri converts between raw image bytes and the inline
// "data:<mime>;base64,<payload>" strings exchanged with the proxy.
package datauri

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// ForwardMIMEType is the single image type every payload is declared as when
// forwarded to the upload host, whatever the client declared.
const ForwardMIMEType = "image/jpeg"

// StripPrefix removes a leading "data:...," declaration and returns the bare
// encoded payload. Input without a declaration is returned unchanged.
func StripPrefix(imageData string) string {
	if !strings.HasPrefix(imageData, "data:") {
		return imageData
	}
	idx := strings.IndexByte(imageData, ',')
	if idx < 0 {
		return imageData
	}
	return imageData[idx+1:]
}

// Normalize strips any declaration from imageData and re-declares the payload
// as ForwardMIMEType. The payload itself is not decoded or validated.
func Normalize(imageData string) string {
	return Wrap(ForwardMIMEType, StripPrefix(imageData))
}

// Wrap prefixes an already base64 encoded payload with a declaration.
func Wrap(mimeType, payload string) string {
	return "data:" + mimeType + ";base64," + payload
}

// Encode builds a data URI from raw bytes. The declared type is sniffed from
// the content.
func Encode(data []byte) string {
	mimeType := http.DetectContentType(data)
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return Wrap(mimeType, base64.StdEncoding.EncodeToString(data))
}
