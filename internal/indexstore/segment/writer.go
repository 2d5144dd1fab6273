package segment

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
)

// Write serialises snap into a segment file at path. It writes to a .tmp
// file first and renames on success, so readers never see a partial file.
func Write(path string, snap *indexstore.Snapshot) error {
	if err := snap.Normalize(); err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}
	if len(snap.Terms) == 0 {
		return fmt.Errorf("cannot write empty segment")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	meta := snap.Metadata()
	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(snap.Terms)),
		DocCount:   uint32(len(snap.Documents)),
		CreatedAt:  time.Now().Unix(),
		PostOffset: int64(HeaderSize),
	}
	// Placeholder; rewritten once offsets are known.
	if _, err := f.Write(header.marshal()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	offset := int64(0)
	dict := make([]DictEntry, 0, len(snap.Terms))
	for _, entry := range snap.Terms {
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		df, _ := meta.DocFreq(entry.Term)
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset,
			PostLen:    len(data),
			DocFreq:    df,
		})
		offset += int64(len(data))
	}
	header.PostSize = offset
	header.DictOffset = header.PostOffset + header.PostSize

	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}
	header.DictSize = int64(len(dictData))

	docData, err := json.Marshal(docTable{
		NumDocs:      meta.TotalDocs,
		AvgDocLength: meta.AvgLength,
		Documents:    snap.Documents,
	})
	if err != nil {
		return fmt.Errorf("marshaling document table: %w", err)
	}
	if _, err := f.Write(docData); err != nil {
		return fmt.Errorf("writing document table: %w", err)
	}
	header.DocTableSize = int64(len(docData))

	ft := footer{
		DictChecksum:     crc32.ChecksumIEEE(dictData),
		DocTableChecksum: crc32.ChecksumIEEE(docData),
		DocCount:         header.DocCount,
		DictOffset:       header.DictOffset,
		DocTableOffset:   header.DocTableOffset(),
	}
	if _, err := f.Write(ft.marshal()); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(header.marshal(), 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}
