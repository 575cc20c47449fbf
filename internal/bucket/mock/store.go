package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bakkerme/dialx/internal/bucket"
)

type Upload struct {
	Name     string
	MimeType string
	Content  []byte
}

// Store is an in-memory bucket. Uploaded files are served back by GetFile
// under "files/<Bucket>/<name>".
type Store struct {
	Bucket string
	Files  map[string][]byte

	PutErr     error
	GetErr     error
	SessionErr error

	mu       sync.Mutex
	Uploads  []Upload
	Gets     []string
	Sessions int
	open     bool
}

func (s *Store) Session(ctx context.Context, fn func(ctx context.Context, files bucket.Files) error) error {
	if s.SessionErr != nil {
		return s.SessionErr
	}
	s.mu.Lock()
	s.Sessions++
	s.open = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.open = false
		s.mu.Unlock()
	}()
	return fn(ctx, s)
}

func (s *Store) PutFile(_ context.Context, name, mimeType string, content io.Reader) (bucket.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, bucket.ErrNotInitialized
	}
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	s.Uploads = append(s.Uploads, Upload{Name: name, MimeType: mimeType, Content: data})
	url := fmt.Sprintf("files/%s/%s", s.bucketName(), name)
	if s.Files == nil {
		s.Files = map[string][]byte{}
	}
	s.Files[url] = data
	return bucket.FileInfo{"url": url, "name": name}, nil
}

func (s *Store) GetFile(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, bucket.ErrNotInitialized
	}
	s.Gets = append(s.Gets, url)
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	data, ok := s.Files[url]
	if !ok {
		return nil, errors.New("mock bucket: file not found: " + url)
	}
	return data, nil
}

func (s *Store) bucketName() string {
	if s.Bucket == "" {
		return "mock-bucket"
	}
	return s.Bucket
}
