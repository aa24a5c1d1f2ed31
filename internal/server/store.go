package server

import (
	"sync"

	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/CK6170/Dishrunrilla-go/modern"
	"github.com/google/uuid"
)

type recordKind string

const (
	kindConfig recordKind = "config"
	kindModel  recordKind = "model"
)

// Record is an uploaded parameters file or a fitted pointing model.
type Record struct {
	ID    string
	Kind  recordKind
	Raw   []byte
	P     *models.PARAMETERS
	Model *modern.PointingFile
}

type RecordStore struct {
	mu sync.RWMutex
	m  map[string]*Record
}

func NewRecordStore() *RecordStore {
	return &RecordStore{m: make(map[string]*Record)}
}

func (s *RecordStore) Put(rec *Record) *Record {
	rec.ID = uuid.NewString()
	s.mu.Lock()
	s.m[rec.ID] = rec
	s.mu.Unlock()
	return rec
}

func (s *RecordStore) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.m[id]
	return r, ok
}
