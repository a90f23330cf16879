package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"
)

// PhotoUpload is one photo file submitted with a session form.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// PhotoStore uploads session photos to object storage and hands back the
// public URLs that get stored on the session record.
type PhotoStore struct {
	objects ObjectStore
	baseURL string

	now       func() time.Time
	randSuffx func() string
}

// NewPhotoStore builds a photo store. baseURL is the public prefix photos are
// served under, e.g. "http://localhost:9000/eeglab-photos".
func NewPhotoStore(objects ObjectStore, baseURL string) *PhotoStore {
	return &PhotoStore{
		objects:   objects,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
		randSuffx: randomSuffix,
	}
}

// UploadSessionPhotos stores every upload under a key scoped to the owning
// user, experiment and session, and returns the public URLs in input order.
// The first failing upload aborts the batch; earlier uploads are deleted on
// a best-effort basis so a failed form submit does not leak objects.
func (p *PhotoStore) UploadSessionPhotos(ctx context.Context, userID, experimentID, sessionID string, uploads []PhotoUpload) ([]string, error) {
	urls := make([]string, 0, len(uploads))
	keys := make([]string, 0, len(uploads))
	for i, up := range uploads {
		key := p.objectKey(userID, experimentID, sessionID, up)
		contentType := up.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := p.objects.Put(ctx, key, up.Reader, up.Size, contentType); err != nil {
			for _, stored := range keys {
				_ = p.objects.Delete(ctx, stored)
			}
			return nil, fmt.Errorf("upload photo %d (%s): %w", i+1, up.Filename, err)
		}
		keys = append(keys, key)
		urls = append(urls, p.baseURL+"/"+key)
	}
	return urls, nil
}

func (p *PhotoStore) objectKey(userID, experimentID, sessionID string, up PhotoUpload) string {
	ext := strings.ToLower(path.Ext(up.Filename))
	if ext == "" {
		if exts, err := mime.ExtensionsByType(up.ContentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("%s/%s/%s/%d-%s%s",
		userID, experimentID, sessionID, p.now().UnixNano(), p.randSuffx(), ext)
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
