package mediatype

import "testing"

func TestCanonicalTableRoundTrips(t *testing.T) {
	t.Parallel()

	for mime, ext := range Canonical() {
		if got := MimeTypeToExtension(mime); got != ext {
			t.Errorf("MimeTypeToExtension(%q) = %q, want %q", mime, got, ext)
		}
		if got := ExtensionToMimeType(MimeTypeToExtension(mime)); got != mime {
			t.Errorf("round trip of %q = %q", mime, got)
		}
	}
}

func TestFallbacks(t *testing.T) {
	t.Parallel()

	for _, mime := range []string{"", "application/x-unknown", OctetStream} {
		if got := MimeTypeToExtension(mime); got != "" {
			t.Errorf("MimeTypeToExtension(%q) = %q, want empty", mime, got)
		}
	}
	for _, ext := range []string{"", ".nope", MimeTypeToExtension(OctetStream)} {
		if got := ExtensionToMimeType(ext); got != OctetStream {
			t.Errorf("ExtensionToMimeType(%q) = %q, want %q", ext, got, OctetStream)
		}
	}
}

func TestMimeTypeToExtensionPrefixMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"audio/ogg; codecs=opus", ".ogg"},
		{"audio/ogg;codecs=opus", ".ogg"},
		{"  AUDIO/OGG ", ".ogg"},
		{"video/mp4; codecs=avc1", ".mp4"},
		{"audio/webm;codecs=opus", ".webm"},
		{"image/jpg", ".jpg"},
		{"audio/mp3", ".mp3"},
		{"image/png; charset=binary", ".png"},
		{"application/pdf; name=a.pdf", ".pdf"},
		{"audio/wav;rate=8000", ".wav"},
		{"image/gif ; x=1", ".gif"},
		{"; charset=binary", ""},
	}
	for _, tt := range tests {
		if got := MimeTypeToExtension(tt.input); got != tt.want {
			t.Errorf("MimeTypeToExtension(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestExtensionToMimeTypeAliases(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		".jpeg": "image/jpeg",
		"JPG":   "image/jpeg",
		"pdf":   "application/pdf",
	}
	for ext, want := range tests {
		if got := ExtensionToMimeType(ext); got != want {
			t.Errorf("ExtensionToMimeType(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestInfer(t *testing.T) {
	t.Parallel()

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

	tests := []struct {
		name     string
		declared string
		filename string
		data     []byte
		want     string
	}{
		{"declared type wins", "image/webp", "x.jpg", png, "image/webp"},
		{"parameters kept", "audio/ogg; codecs=opus", "", nil, "audio/ogg; codecs=opus"},
		{"extension when declared is generic", OctetStream, "report.PDF", nil, "application/pdf"},
		{"sniffed bytes as last resort", "", "", png, "image/png"},
		{"unknown", "", "blob", nil, OctetStream},
	}
	for _, tt := range tests {
		if got := Infer(tt.declared, tt.filename, tt.data); got != tt.want {
			t.Errorf("%s: Infer = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTypeMimeType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"chat":     "",
		"ptt":      "audio/ogg",
		"sticker":  "image/webp",
		"location": OctetStream,
	}
	for typ, want := range tests {
		if got := TypeMimeType(typ); got != want {
			t.Errorf("TypeMimeType(%q) = %q, want %q", typ, got, want)
		}
	}
}
