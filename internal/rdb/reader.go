// Package rdb hand-rolls the snapshot (RDB-lite) decoder spec.md
// §4.4 describes byte-for-byte. It is deliberately not built on the
// teacher's github.com/hdt3213/rdb dependency — see DESIGN.md and
// SPEC_FULL.md §0 for why that library's callback-driven API doesn't
// expose the phase/length-encoding control flow this format needs.
package rdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

var (
	ErrBadMagic       = errors.New("rdb: bad magic string")
	ErrUnsupportedTag = errors.New("rdb: unsupported value type tag")
	ErrLZFUnsupported = errors.New("rdb: LZF-compressed strings are not supported")
)

// AuxField is one (key, value) metadata pair from the snapshot's
// Metadata phase.
type AuxField struct {
	Key   string
	Value string
}

// Entry is one key/value pair within a Dataset, with an optional
// absolute expiration instant (zero Time means no expiry).
type Entry struct {
	Key      string
	Value    string
	ExpireAt time.Time
}

// Dataset is all the entries stored under one DB index.
type Dataset struct {
	Index   int
	Entries []Entry
}

// RDBFile is the fully decoded snapshot: header version, ordered aux
// metadata, and per-DB datasets. Only the String value type is
// supported (spec.md §3/§4.4); every entry here is a string value.
type RDBFile struct {
	Version   string
	AuxFields []AuxField
	Datasets  []Dataset
}

const (
	opAux        = 0xFA
	opSelectDB   = 0xFE
	opResizeDB   = 0xFB
	opExpireSec  = 0xFD
	opExpireMS   = 0xFC
	opEOF        = 0xFF
	valueTypeStr = 0x00
)

// Decode walks Header → Metadata → Database → Checksum exactly as
// spec.md §4.4 describes, over a pull-based reader with one-byte
// peek.
func Decode(r io.Reader) (*RDBFile, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, 5)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("rdb: reading magic: %w", err)
	}
	if string(magic) != "REDIS" {
		return nil, ErrBadMagic
	}

	version := make([]byte, 4)
	if _, err := io.ReadFull(br, version); err != nil {
		return nil, fmt.Errorf("rdb: reading version: %w", err)
	}

	file := &RDBFile{Version: string(version)}

	for {
		tag, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return file, nil
			}
			return nil, err
		}

		switch tag[0] {
		case opAux:
			br.ReadByte()
			key, err := readString(br)
			if err != nil {
				return nil, fmt.Errorf("rdb: aux key: %w", err)
			}
			val, err := readString(br)
			if err != nil {
				return nil, fmt.Errorf("rdb: aux value: %w", err)
			}
			file.AuxFields = append(file.AuxFields, AuxField{Key: key, Value: val})

		case opSelectDB:
			br.ReadByte()
			idx, err := readLength(br)
			if err != nil {
				return nil, fmt.Errorf("rdb: db selector: %w", err)
			}
			ds, err := readDataset(br, idx)
			if err != nil {
				return nil, err
			}
			file.Datasets = append(file.Datasets, *ds)

		case opEOF:
			br.ReadByte()
			io.Copy(io.Discard, br) // checksum trailer: discarded, not validated (spec.md §4.4)
			return file, nil

		default:
			return nil, fmt.Errorf("rdb: unexpected byte 0x%02x in metadata phase", tag[0])
		}
	}
}

func readDataset(br *bufio.Reader, idx int) (*Dataset, error) {
	b, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("rdb: expected resize field: %w", err)
	}
	if b != opResizeDB {
		return nil, fmt.Errorf("rdb: expected 0xFB resize field, got 0x%02x", b)
	}
	normalSize, err := readLength(br)
	if err != nil {
		return nil, fmt.Errorf("rdb: normal size: %w", err)
	}
	expireSize, err := readLength(br)
	if err != nil {
		return nil, fmt.Errorf("rdb: expire size: %w", err)
	}

	ds := &Dataset{Index: idx}
	total := normalSize + expireSize
	for i := 0; i < total; i++ {
		entry, err := readEntry(br)
		if err != nil {
			return nil, err
		}
		ds.Entries = append(ds.Entries, *entry)
	}
	return ds, nil
}

func readEntry(br *bufio.Reader) (*Entry, error) {
	b, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("rdb: reading entry tag: %w", err)
	}

	var expireAt time.Time
	switch b {
	case opExpireSec:
		var secs uint32
		if err := binary.Read(br, binary.LittleEndian, &secs); err != nil {
			return nil, fmt.Errorf("rdb: reading expire seconds: %w", err)
		}
		expireAt = time.Unix(int64(secs), 0)
		b, err = br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("rdb: reading value type after expiry: %w", err)
		}
	case opExpireMS:
		var ms uint64
		if err := binary.Read(br, binary.LittleEndian, &ms); err != nil {
			return nil, fmt.Errorf("rdb: reading expire milliseconds: %w", err)
		}
		expireAt = time.UnixMilli(int64(ms))
		b, err = br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("rdb: reading value type after expiry: %w", err)
		}
	}

	if b != valueTypeStr {
		return nil, ErrUnsupportedTag
	}

	key, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("rdb: entry key: %w", err)
	}
	val, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("rdb: entry value: %w", err)
	}
	return &Entry{Key: key, Value: val, ExpireAt: expireAt}, nil
}

// readLength decodes a plain length encoding (the 00/01/10 top-bit
// prefixes). It errors if the prefix is the 11 "special string"
// form, which is only meaningful to readString.
func readLength(br *bufio.Reader) (int, error) {
	n, special, _, err := decodeLengthOrSpecial(br)
	if err != nil {
		return 0, err
	}
	if special {
		return 0, fmt.Errorf("rdb: special-string encoding not valid in a length context")
	}
	return n, nil
}

// readString decodes a string per spec.md §4.4: a plain length
// followed by that many raw bytes, or — when the length byte's top
// two bits are 11 — one of the three special integer-as-string
// encodings (or an explicit error for the LZF subtype).
func readString(br *bufio.Reader) (string, error) {
	n, special, subtype, err := decodeLengthOrSpecial(br)
	if err != nil {
		return "", err
	}
	if special {
		return decodeSpecialString(br, subtype)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func decodeLengthOrSpecial(br *bufio.Reader) (length int, special bool, subtype byte, err error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, false, 0, err
	}
	switch b >> 6 {
	case 0b00:
		return int(b & 0x3F), false, 0, nil
	case 0b01:
		b2, err := br.ReadByte()
		if err != nil {
			return 0, false, 0, err
		}
		return (int(b&0x3F) << 8) | int(b2), false, 0, nil
	case 0b10:
		var v uint32
		if err := binary.Read(br, binary.BigEndian, &v); err != nil {
			return 0, false, 0, err
		}
		return int(v), false, 0, nil
	default: // 0b11
		return 0, true, b & 0x3F, nil
	}
}

func decodeSpecialString(br *bufio.Reader, subtype byte) (string, error) {
	switch subtype {
	case 0:
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int8(b)), 10), nil
	case 1:
		var v int16
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(v), 10), nil
	case 2:
		var v int32
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(v), 10), nil
	default:
		return "", ErrLZFUnsupported
	}
}
