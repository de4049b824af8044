package host

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknownDoc means a document reference was never issued or was saved
// away already.
var ErrUnknownDoc = errors.New("unknown document reference")

type document struct {
	title   string
	content string
}

// DocStore keeps open documents in memory and writes them through the
// sandboxed filesystem on save.
type DocStore struct {
	mu   sync.Mutex
	next uint32
	docs map[uint32]*document
	fs   *LocalFS
}

// NewDocStore creates an empty store saving through fs.
func NewDocStore(fs *LocalFS) *DocStore {
	return &DocStore{next: 1, docs: make(map[uint32]*document), fs: fs}
}

// New opens an empty document and returns its reference.
func (s *DocStore) New(ctx context.Context, title string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := s.next
	s.next++
	s.docs[ref] = &document{title: title}
	return ref, nil
}

// Edit replaces the content of an open document.
func (s *DocStore) Edit(ctx context.Context, ref uint32, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[ref]
	if !ok {
		return ErrUnknownDoc
	}
	doc.content = content
	return nil
}

// Save writes an open document to path and closes it.
func (s *DocStore) Save(ctx context.Context, ref uint32, path string) error {
	s.mu.Lock()
	doc, ok := s.docs[ref]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownDoc
	}

	if err := s.fs.Replace(ctx, path, []byte(doc.content)); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.docs, ref)
	s.mu.Unlock()
	return nil
}

// Open returns the number of open documents.
func (s *DocStore) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
