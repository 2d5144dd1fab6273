package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
)

// Reader serves an open segment file as an indexstore.Store. It is safe
// for concurrent use: posting reads go through ReadAt.
type Reader struct {
	*indexstore.Metadata
	file   *os.File
	path   string
	header Header
	dict   []DictEntry
}

// Open validates the segment at path and loads its dictionary and
// document table.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("file too small (%d bytes)", info.Size())
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := unmarshalHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	footerBytes := make([]byte, FooterSize)
	if _, err := f.ReadAt(footerBytes, info.Size()-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	ft := unmarshalFooter(footerBytes)
	if ft.DictOffset != header.DictOffset || ft.DocTableOffset != header.DocTableOffset() {
		return nil, fmt.Errorf("header and footer disagree")
	}
	if header.DocTableOffset()+header.DocTableSize+int64(FooterSize) != info.Size() {
		return nil, fmt.Errorf("truncated file")
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	if crc32.ChecksumIEEE(dictBytes) != ft.DictChecksum {
		return nil, fmt.Errorf("dictionary checksum mismatch")
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}

	docBytes := make([]byte, header.DocTableSize)
	if _, err := f.ReadAt(docBytes, header.DocTableOffset()); err != nil {
		return nil, fmt.Errorf("reading document table: %w", err)
	}
	if crc32.ChecksumIEEE(docBytes) != ft.DocTableChecksum {
		return nil, fmt.Errorf("document table checksum mismatch")
	}
	var docs docTable
	if err := json.Unmarshal(docBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing document table: %w", err)
	}

	meta := indexstore.NewMetadata()
	meta.TotalDocs = docs.NumDocs
	meta.AvgLength = docs.AvgDocLength
	for _, d := range docs.Documents {
		meta.DocLengths[d.ID] = d.Length
		meta.Titles[d.ID] = d.Title
	}
	for _, e := range dict {
		meta.DocFreqs[e.Term] = e.DocFreq
	}
	return &Reader{Metadata: meta, file: f, path: path, header: header, dict: dict}, nil
}

// ReadPostingList reads one posting block. Unknown terms yield an empty
// list.
func (r *Reader) ReadPostingList(ctx context.Context, term string) (indexstore.PostingList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	entry := r.dict[idx]
	buf := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(buf, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("segment %s: reading postings for %q: %w", r.path, term, err)
	}
	var postings indexstore.PostingList
	if err := json.Unmarshal(buf, &postings); err != nil {
		return nil, fmt.Errorf("segment %s: parsing postings for %q: %w", r.path, term, err)
	}
	return postings, nil
}

func (r *Reader) Header() Header {
	return r.header
}

func (r *Reader) Close() error {
	return r.file.Close()
}
