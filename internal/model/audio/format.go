package audio

import (
	"path/filepath"
	"strings"
)

// Format maps a file extension to the content type sent to the remote service.
type Format struct {
	Extension string
	MIMEType  string
}

// formats is kept in display order; the unsupported-format message lists it as is.
var formats = []Format{
	{Extension: ".wav", MIMEType: "audio/wav"},
	{Extension: ".mp3", MIMEType: "audio/mp3"},
	{Extension: ".mpeg", MIMEType: "audio/mpeg"},
	{Extension: ".mpga", MIMEType: "audio/mpeg"},
	{Extension: ".aiff", MIMEType: "audio/aiff"},
	{Extension: ".aac", MIMEType: "audio/aac"},
	{Extension: ".ogg", MIMEType: "audio/ogg"},
	{Extension: ".flac", MIMEType: "audio/flac"},
	{Extension: ".m4a", MIMEType: "audio/m4a"},
	{Extension: ".webm", MIMEType: "audio/webm"},
	{Extension: ".pcm", MIMEType: "audio/pcm"},
	{Extension: ".mp4", MIMEType: "audio/mp4"},
}

var byExtension = func() map[string]string {
	m := make(map[string]string, len(formats))
	for _, f := range formats {
		m[f.Extension] = f.MIMEType
	}
	return m
}()

// Resolve returns the content type for path based on its extension.
// The lookup ignores case; ok is false for unsupported extensions.
func Resolve(path string) (mimeType string, ok bool) {
	mimeType, ok = byExtension[strings.ToLower(suffix(path))]
	return mimeType, ok
}

// suffix is the extension of the last path element. A name whose only dot
// is the leading one (".wav") has no extension.
func suffix(path string) string {
	name := filepath.Base(path)
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return ""
	}
	return name[i:]
}

// SupportedExtensions lists the accepted extensions, dot included.
func SupportedExtensions() []string {
	exts := make([]string, len(formats))
	for i, f := range formats {
		exts[i] = f.Extension
	}
	return exts
}
