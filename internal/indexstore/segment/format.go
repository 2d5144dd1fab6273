// Package segment reads and writes .spdx index files.
//
// Layout, all integers little-endian:
//
//	[0, 64)          header: magic, version, term count, doc count,
//	                 created-at, dictionary offset/size, postings
//	                 offset/size, document table size
//	[64, P)          posting blocks, one JSON array per term
//	[P, D)           term dictionary, JSON, sorted by term
//	[D, T)           document table, JSON
//	[T, T+32)        footer: CRC32 of dictionary and document table,
//	                 doc count, dictionary offset, document table offset
//
// The dictionary and document table are loaded when a segment is opened;
// posting blocks are read on demand with ReadAt.
package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
)

const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// Header is the fixed-size record at the start of every segment.
type Header struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	CreatedAt    int64
	DictOffset   int64
	DictSize     int64
	PostOffset   int64
	PostSize     int64
	DocTableSize int64
}

func (h Header) DocTableOffset() int64 {
	return h.DictOffset + h.DictSize
}

func (h Header) marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DocTableSize))
	return b
}

func unmarshalHeader(b []byte) (Header, error) {
	h := Header{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		TermCount:    binary.LittleEndian.Uint32(b[8:12]),
		DocCount:     binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[16:24])),
		DictOffset:   int64(binary.LittleEndian.Uint64(b[24:32])),
		DictSize:     int64(binary.LittleEndian.Uint64(b[32:40])),
		PostOffset:   int64(binary.LittleEndian.Uint64(b[40:48])),
		PostSize:     int64(binary.LittleEndian.Uint64(b[48:56])),
		DocTableSize: int64(binary.LittleEndian.Uint64(b[56:64])),
	}
	if h.Magic != MagicBytes {
		return h, fmt.Errorf("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("unsupported format version %d", h.Version)
	}
	return h, nil
}

type footer struct {
	DictChecksum     uint32
	DocTableChecksum uint32
	DocCount         uint32
	DictOffset       int64
	DocTableOffset   int64
}

func (f footer) marshal() []byte {
	b := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(b[0:4], f.DictChecksum)
	binary.LittleEndian.PutUint32(b[4:8], f.DocTableChecksum)
	binary.LittleEndian.PutUint32(b[8:12], f.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(f.DictOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(f.DocTableOffset))
	return b
}

func unmarshalFooter(b []byte) footer {
	return footer{
		DictChecksum:     binary.LittleEndian.Uint32(b[0:4]),
		DocTableChecksum: binary.LittleEndian.Uint32(b[4:8]),
		DocCount:         binary.LittleEndian.Uint32(b[8:12]),
		DictOffset:       int64(binary.LittleEndian.Uint64(b[16:24])),
		DocTableOffset:   int64(binary.LittleEndian.Uint64(b[24:32])),
	}
}

// DictEntry locates a term's posting block.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int64  `json:"d"`
}

// docTable carries corpus statistics with the per-document rows.
type docTable struct {
	NumDocs      int64                 `json:"n"`
	AvgDocLength float64               `json:"avgdl"`
	Documents    []indexstore.Document `json:"docs"`
}
