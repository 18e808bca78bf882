package gemini

import (
	"path/filepath"
	"strings"
)

var documentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// SupportedDocumentType reports whether mimeType may be sent for extraction.
func SupportedDocumentType(mimeType string) bool {
	mt := normalizeMIME(mimeType)
	for _, v := range documentTypes {
		if v == mt {
			return true
		}
	}
	return false
}

// DocumentTypeFor picks the MIME type for an upload. Generic types are
// replaced by the one implied by the file extension.
func DocumentTypeFor(filename, declared string) string {
	mt := normalizeMIME(declared)
	if mt != "" && mt != "application/octet-stream" && mt != "binary/octet-stream" {
		return mt
	}
	if byExt, ok := documentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	return mt
}

func normalizeMIME(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
