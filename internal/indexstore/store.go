// Package indexstore defines the read-only view of a precomputed inverted
// index that the ranker consumes, together with the in-memory backend and
// the caching and fault-tolerance decorators shared by all backends.
//
// Term statistics and document metadata are loaded eagerly when a store is
// opened; posting lists are read lazily, one term at a time.
package indexstore

import (
	"context"
	"strconv"
)

// DocID identifies a document in the corpus.
type DocID uint64

// String returns the base-10 form used in API responses.
func (id DocID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseDocID parses the base-10 form produced by String.
func ParseDocID(s string) (DocID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return DocID(v), nil
}

// Posting records how often a term occurs in one document.
type Posting struct {
	DocID     DocID `json:"doc_id"`
	Frequency int   `json:"tf"`
}

// PostingList is ordered by DocID. Callers must not modify a list returned
// by a Store.
type PostingList []Posting

// Store is the narrow read interface the ranker depends on. Implementations
// are immutable after open and safe for concurrent use.
type Store interface {
	// NumDocs is the number of documents in the corpus (N).
	NumDocs() int64
	// AvgDocLength is the mean document length in tokens (avgdl).
	AvgDocLength() float64
	// DocFreq returns the number of documents containing term, or false if
	// the term is not in the vocabulary.
	DocFreq(term string) (int64, bool)
	DocLength(id DocID) (int, bool)
	Title(id DocID) (string, bool)
	// ReadPostingList fetches the postings for a term whose df is known.
	ReadPostingList(ctx context.Context, term string) (PostingList, error)
}

// Metadata holds the eagerly loaded half of a Store. Backends embed it and
// add ReadPostingList.
type Metadata struct {
	TotalDocs  int64
	AvgLength  float64
	DocFreqs   map[string]int64
	DocLengths map[DocID]int
	Titles     map[DocID]string
}

// NewMetadata returns an empty Metadata ready to be filled.
func NewMetadata() *Metadata {
	return &Metadata{
		DocFreqs:   make(map[string]int64),
		DocLengths: make(map[DocID]int),
		Titles:     make(map[DocID]string),
	}
}

func (m *Metadata) NumDocs() int64 { return m.TotalDocs }

func (m *Metadata) AvgDocLength() float64 { return m.AvgLength }

func (m *Metadata) DocFreq(term string) (int64, bool) {
	df, ok := m.DocFreqs[term]
	return df, ok
}

func (m *Metadata) DocLength(id DocID) (int, bool) {
	l, ok := m.DocLengths[id]
	return l, ok
}

func (m *Metadata) Title(id DocID) (string, bool) {
	t, ok := m.Titles[id]
	return t, ok
}

// VocabularySize returns the number of distinct terms.
func (m *Metadata) VocabularySize() int {
	return len(m.DocFreqs)
}

// Stats summarises an index for health checks and the CLI.
type Stats struct {
	NumDocs        int64   `json:"num_docs"`
	AvgDocLength   float64 `json:"avg_doc_length"`
	VocabularySize int     `json:"vocabulary_size"`
}

// StatsOf reports the summary of s. The vocabulary size is zero when the
// backend does not expose it.
func StatsOf(s Store) Stats {
	stats := Stats{NumDocs: s.NumDocs(), AvgDocLength: s.AvgDocLength()}
	if v, ok := s.(interface{ VocabularySize() int }); ok {
		stats.VocabularySize = v.VocabularySize()
	}
	return stats
}
