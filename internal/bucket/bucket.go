// Package bucket uploads and downloads files through DIAL bucket storage.
//
// A Client holds an HTTP connection only between Open and Close. Session wraps
// both so that the connection is released on every exit path.
package bucket

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotInitialized = errors.New("bucket: client not initialized, use it inside a session")
	ErrAlreadyOpen    = errors.New("bucket: client already open")
	ErrNoBucket       = errors.New("bucket: no appdata or bucket found")
)

// Files is the set of operations available inside a session.
type Files interface {
	PutFile(ctx context.Context, name, mimeType string, content io.Reader) (FileInfo, error)
	GetFile(ctx context.Context, url string) ([]byte, error)
}

// Sessioner runs fn against an open connection and closes it afterwards.
type Sessioner interface {
	Session(ctx context.Context, fn func(ctx context.Context, files Files) error) error
}

// FileInfo is the decoded upload response. It is not validated.
type FileInfo map[string]any

// URL returns the "url" field, or "" when missing.
func (f FileInfo) URL() string {
	url, _ := f["url"].(string)
	return url
}
