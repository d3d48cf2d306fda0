// Package blob stores uploaded binaries and resolves their public URLs.
package blob

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by Open when no object exists at the path.
var ErrNotFound = errors.New("blob not found")

// Object describes a stored binary.
type Object struct {
	Path        string
	URL         string
	ContentType string
	Size        int64
}

// Store is the storage adapter used by capture and delete.
type Store interface {
	// Put writes r under path. The caller picks the path with ObjectPath.
	Put(ctx context.Context, path, contentType string, r io.Reader) (Object, error)
	// Delete removes the object at path. A missing object is not an error.
	Delete(ctx context.Context, path string) error
	// PublicURL returns the URL clients use to fetch the object.
	PublicURL(path string) string
}

const maxNameLen = 100

// ObjectPath builds the storage path for an upload: the upload time in unix
// milliseconds, a dash, then the sanitized file name.
func ObjectPath(now time.Time, name string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + SanitizeName(name)
}

// SanitizeName lowercases name and replaces every run of characters outside
// [a-z0-9._-] with a single dash.
func SanitizeName(name string) string {
	name = strings.ToLower(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	var b strings.Builder
	dash := false
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-.")
	if len(out) > maxNameLen {
		out = strings.TrimRight(out[:maxNameLen], "-.")
	}
	if out == "" {
		return "upload"
	}
	return out
}

// DetectContentType prefers the declared type, then the extension, then
// sniffing the first bytes.
func DetectContentType(declared, name string, head []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return "application/octet-stream"
}
