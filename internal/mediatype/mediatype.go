// Package mediatype maps between MIME types and file extensions and infers the
// content type of downloaded payloads whose metadata is missing or generic.
package mediatype

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// OctetStream is the fallback MIME type for unknown content.
const OctetStream = "application/octet-stream"

// canonical is the one-to-one table used for both directions.
// Every entry round-trips: ExtensionToMimeType(MimeTypeToExtension(m)) == m.
var canonical = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"video/3gpp":      ".3gp",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"audio/wav":       ".wav",
	"audio/opus":      ".opus",
	"audio/aac":       ".aac",
	"audio/mp4":       ".m4a",

	"application/pdf":               ".pdf",
	"application/msword":            ".doc",
	"application/vnd.ms-excel":      ".xls",
	"application/vnd.ms-powerpoint": ".ppt",
	"application/zip":               ".zip",
	"text/plain":                    ".txt",
	"text/csv":                      ".csv",

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
}

// Aliases resolve in one direction only and stay out of the round-trip set.
var mimeAliases = map[string]string{
	"image/jpg":   ".jpg",
	"image/pjpeg": ".jpg",
	"audio/mp3":   ".mp3",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/x-m4a": ".m4a",
	"video/mpeg":  ".mp4",
}

var extAliases = map[string]string{
	".jpeg": "image/jpeg",
	".jpe":  "image/jpeg",
	".oga":  "audio/ogg",
	".m4v":  "video/mp4",
	".text": "text/plain",
}

var byExtension = func() map[string]string {
	out := make(map[string]string, len(canonical))
	for mime, ext := range canonical {
		out[ext] = mime
	}
	return out
}()

// prefixes resolves vendor and sub-codec variants of known types, such as
// "audio/ogg-opus". Longer prefixes are listed first.
var prefixes = []struct {
	prefix string
	ext    string
}{
	{"audio/ogg", ".ogg"},
	{"audio/opus", ".opus"},
	{"audio/mpeg", ".mp3"},
	{"audio/mp4", ".m4a"},
	{"audio/aac", ".aac"},
	{"video/mp4", ".mp4"},
	{"video/webm", ".webm"},
	{"audio/webm", ".webm"},
	{"image/jpeg", ".jpg"},
	{"image/webp", ".webp"},
}

// MimeTypeToExtension returns the file extension (with leading dot) for a MIME
// type. Unknown input yields "".
func MimeTypeToExtension(mime string) string {
	m := normalize(mime)
	if m == "" {
		return ""
	}
	if ext, ok := canonical[m]; ok {
		return ext
	}
	if ext, ok := mimeAliases[m]; ok {
		return ext
	}
	for _, p := range prefixes {
		if strings.HasPrefix(m, p.prefix) {
			return p.ext
		}
	}
	return ""
}

// ExtensionToMimeType returns the MIME type for an extension. The leading dot is
// optional. Unknown input yields OctetStream.
func ExtensionToMimeType(ext string) string {
	e := strings.ToLower(strings.TrimSpace(ext))
	if e == "" {
		return OctetStream
	}
	if !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	if mime, ok := byExtension[e]; ok {
		return mime
	}
	if mime, ok := extAliases[e]; ok {
		return mime
	}
	return OctetStream
}

// Canonical returns a copy of the round-trip table.
func Canonical() map[string]string {
	out := make(map[string]string, len(canonical))
	for k, v := range canonical {
		out[k] = v
	}
	return out
}

// IsGeneric reports whether mime carries no usable type information.
func IsGeneric(mime string) bool {
	m := normalize(mime)
	return m == "" || m == OctetStream || m == "binary/octet-stream"
}

// Infer picks the best content type for a payload: the declared type when it is
// meaningful, then the filename extension, then the sniffed bytes.
func Infer(declared, filename string, data []byte) string {
	if !IsGeneric(declared) {
		return strings.TrimSpace(declared)
	}
	if ext := path.Ext(filename); ext != "" {
		if mime := ExtensionToMimeType(ext); mime != OctetStream {
			return mime
		}
	}
	if len(data) > 0 {
		detected := mimetype.Detect(data)
		if detected != nil && !IsGeneric(detected.String()) {
			return strings.SplitN(detected.String(), ";", 2)[0]
		}
	}
	return OctetStream
}

// typeMimeTypes maps remote message types to the MIME type assumed before the
// payload is downloaded.
var typeMimeTypes = map[string]string{
	"image":    "image/jpeg",
	"video":    "video/mp4",
	"audio":    "audio/ogg",
	"voice":    "audio/ogg",
	"ptt":      "audio/ogg",
	"document": "application/pdf",
	"sticker":  "image/webp",
}

// TypeMimeType returns the assumed MIME type for a remote message type.
// Text messages yield "", other unknown types fall back to OctetStream.
func TypeMimeType(messageType string) string {
	t := strings.ToLower(strings.TrimSpace(messageType))
	if t == "" || t == "chat" {
		return ""
	}
	if mime, ok := typeMimeTypes[t]; ok {
		return mime
	}
	return OctetStream
}

// normalize lowercases mime and drops any parameters, so
// "image/png; charset=binary" looks up as "image/png".
func normalize(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
