package indexstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Snapshot is the portable description of a built index. It is the input
// format of the memory backend and of the segment and SQL importers.
type Snapshot struct {
	// NumDocs and AvgDocLength override the values derived from Documents
	// when non-zero.
	NumDocs      int64       `json:"num_docs,omitempty"`
	AvgDocLength float64     `json:"avg_doc_length,omitempty"`
	Documents    []Document  `json:"documents"`
	Terms        []TermEntry `json:"terms"`
}

// Document is one row of the document table.
type Document struct {
	ID     DocID  `json:"id"`
	Title  string `json:"title"`
	Length int    `json:"length"`
}

// TermEntry is a vocabulary term with its postings. DocFreq defaults to
// the number of postings.
type TermEntry struct {
	Term     string      `json:"term"`
	DocFreq  int64       `json:"df,omitempty"`
	Postings PostingList `json:"postings"`
}

// LoadSnapshot reads a JSON snapshot from path.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", path, err)
	}
	defer f.Close()
	snap, err := ReadSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return snap, nil
}

// ReadSnapshot decodes and normalises a JSON snapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if err := snap.Normalize(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Normalize sorts terms and postings and rejects duplicate terms, duplicate
// documents and non-positive term frequencies. Postings that reference
// unknown documents are kept; the ranker reports them at query time.
func (s *Snapshot) Normalize() error {
	seenDocs := make(map[DocID]struct{}, len(s.Documents))
	for _, d := range s.Documents {
		if _, dup := seenDocs[d.ID]; dup {
			return fmt.Errorf("duplicate document %d", d.ID)
		}
		seenDocs[d.ID] = struct{}{}
	}
	sort.Slice(s.Terms, func(i, j int) bool { return s.Terms[i].Term < s.Terms[j].Term })
	for i := range s.Terms {
		if i > 0 && s.Terms[i].Term == s.Terms[i-1].Term {
			return fmt.Errorf("duplicate term %q", s.Terms[i].Term)
		}
		postings := s.Terms[i].Postings
		sort.Slice(postings, func(a, b int) bool { return postings[a].DocID < postings[b].DocID })
		for _, p := range postings {
			if p.Frequency <= 0 {
				return fmt.Errorf("term %q: non-positive frequency for document %d", s.Terms[i].Term, p.DocID)
			}
		}
	}
	return nil
}

// Metadata derives the eager half of a store from the snapshot.
func (s *Snapshot) Metadata() *Metadata {
	m := NewMetadata()
	var totalLength int64
	for _, d := range s.Documents {
		m.DocLengths[d.ID] = d.Length
		m.Titles[d.ID] = d.Title
		totalLength += int64(d.Length)
	}
	m.TotalDocs = s.NumDocs
	if m.TotalDocs == 0 {
		m.TotalDocs = int64(len(s.Documents))
	}
	m.AvgLength = s.AvgDocLength
	if m.AvgLength == 0 && len(s.Documents) > 0 {
		m.AvgLength = float64(totalLength) / float64(len(s.Documents))
	}
	for _, t := range s.Terms {
		df := t.DocFreq
		if df == 0 {
			df = int64(len(t.Postings))
		}
		m.DocFreqs[t.Term] = df
	}
	return m
}
