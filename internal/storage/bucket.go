// Package storage stores member photos and backup files in object storage.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Bucket is the small subset of object storage the system needs.
type Bucket interface {
	// Put creates or replaces the object at key.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// PublicURL resolves key without any round trip.
	PublicURL(key string) string
}

// PhotoKey is where the photo of a member lives, e.g. "members/82936384.jpg".
func PhotoKey(licenceNo, contentType string) string {
	return path.Join("members", licenceNo+"."+ExtFromContentType(contentType))
}

// BackupKey is the object name of the backup taken on day.
func BackupKey(day time.Time) string {
	return path.Join("backups", day.Format("2006-01-02")+".csv")
}

func ExtFromContentType(ct string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "png"):
		return "png"
	case strings.Contains(ct, "webp"):
		return "webp"
	case strings.Contains(ct, "gif"):
		return "gif"
	}
	return "jpg"
}

func publicURL(base, key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimLeft(key, "/"))
}
