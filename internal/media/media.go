// Package media downloads remote images and stores them on local disk or S3.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/fetcher"
)

// Store persists an object and returns where it can be found.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// Getter downloads a URL. *fetcher.HTTPFetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*fetcher.Response, error)
}

var mimeExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Extension picks a file extension for an image: the one in the URL path,
// else the one mapped from contentType, else jpg.
func Extension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.TrimPrefix(path.Ext(u.Path), "."); ext != "" {
			return strings.ToLower(ext)
		}
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := mimeExtensions[mt]; ok {
			return ext
		}
	}
	return "jpg"
}

// ContentTypeFor returns the MIME type for an extension produced by Extension.
func ContentTypeFor(ext string) string {
	if ext == "jpg" {
		return "image/jpeg"
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Mirror copies remote images into a Store.
type Mirror struct {
	http  Getter
	store Store
	now   func() time.Time
}

// NewMirror creates a Mirror.
func NewMirror(g Getter, s Store) *Mirror {
	return &Mirror{http: g, store: s, now: time.Now}
}

// Download fetches an image and returns its bytes, extension, and content type.
func (m *Mirror) Download(ctx context.Context, imageURL string) ([]byte, string, string, error) {
	resp, err := m.http.Get(ctx, imageURL)
	if err != nil {
		return nil, "", "", eris.Wrapf(err, "media: download %s", imageURL)
	}
	ext := Extension(imageURL, resp.ContentType)
	ct := resp.ContentType
	if ct == "" {
		ct = ContentTypeFor(ext)
	}
	return resp.Body, ext, ct, nil
}

// Key is the object key of the image attached to a content item:
// uploads/posts/YYYY/MM/rss-<id>-<unix>.<ext>.
func Key(contentID int64, ext string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("uploads/posts/%04d/%02d/rss-%d-%d.%s", at.Year(), int(at.Month()), contentID, at.Unix(), ext)
}

// Attach downloads imageURL and stores it under the key of contentID.
func (m *Mirror) Attach(ctx context.Context, contentID int64, imageURL string) (string, error) {
	data, ext, ct, err := m.Download(ctx, imageURL)
	if err != nil {
		return "", err
	}
	key := Key(contentID, ext, m.now())
	loc, err := m.store.Put(ctx, key, bytes.NewReader(data), ct)
	if err != nil {
		return "", eris.Wrapf(err, "media: store %s", key)
	}
	zap.L().Info("media: image attached",
		zap.Int64("content_id", contentID),
		zap.String("source", imageURL),
		zap.String("location", loc),
	)
	return loc, nil
}
