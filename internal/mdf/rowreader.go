package mdf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// MDF 3.x signal data types.
const (
	v3TypeUint    = 0
	v3TypeInt     = 1
	v3TypeFloat   = 2
	v3TypeDouble  = 3
	v3TypeString  = 7
	v3TypeBytes   = 8
	v3TypeUintBE  = 9
	v3TypeIntBE   = 10
	v3TypeFloatBE = 11
	v3TypeDblBE   = 12
)

const (
	v3ConvLinear   = 0
	v3ConvIdentity = 65535
)

type v3Channel struct {
	name       string
	desc       string
	unit       string
	isMaster   bool
	bitOffset  int // start offset within the record, in bits
	bitCount   int
	dataType   uint16
	convType   uint16
	convP1     float64
	convP2     float64
	hasConv    bool
	groupIndex int // ordinal of the owning channel group
}

type v3Group struct {
	dataAddr    int64
	recordID    uint8
	recordIDLen int // bytes of record id framing per record (0, 1 or 2)
	recordSize  int
	numRecords  int
	channels    []*v3Channel
}

// rowReader parses MDF 3.x containers. Records are fixed-size rows, so the
// reader walks them sequentially per group; it deliberately exposes no
// group introspection, only the flat name -> data view.
type rowReader struct {
	file    *os.File
	version string

	groups []*v3Group

	// canonical channel order and name -> location map; duplicates are
	// reachable through synthetic names only
	order     []string
	locations map[string]*v3Channel

	recordCache map[int][][]byte // group ordinal -> raw record rows
}

func newRowReader() *rowReader {
	return &rowReader{
		locations:   make(map[string]*v3Channel),
		recordCache: make(map[int][][]byte),
	}
}

func (r *rowReader) Open(path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()

	id := make([]byte, 64)
	if _, err = io.ReadFull(f, id); err != nil {
		return fmt.Errorf("reading identification block: %w", err)
	}
	if !bytes.HasPrefix(id, []byte("MDF     ")) {
		return ErrUnsupportedFormat
	}
	versionNumber := binary.LittleEndian.Uint16(id[28:30])
	if versionNumber >= 400 {
		return fmt.Errorf("%w: MDF %d.%02d is not a 3.x container",
			ErrUnsupportedFormat, versionNumber/100, versionNumber%100)
	}
	if byteOrder := binary.LittleEndian.Uint16(id[24:26]); byteOrder != 0 {
		return fmt.Errorf("%w: big-endian default byte order", ErrUnsupportedFormat)
	}
	r.version = fmt.Sprintf("MDF %d.%02d", versionNumber/100, versionNumber%100)

	r.file = f
	if err = r.parseHeader(); err != nil {
		r.file = nil
		return fmt.Errorf("parsing header: %w", err)
	}
	r.buildChannelMap()
	return nil
}

func (r *rowReader) Version() string { return r.version }

func (r *rowReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.recordCache = make(map[int][][]byte)
	return err
}

func (r *rowReader) parseHeader() error {
	// the header block sits right after the 64-byte id block
	hd, err := r.readBlock(64, "HD")
	if err != nil {
		return err
	}

	groupIndex := 0
	dgAddr := int64(binary.LittleEndian.Uint32(hd[4:8]))
	for dgAddr != 0 {
		dg, err := r.readBlock(dgAddr, "DG")
		if err != nil {
			return fmt.Errorf("data group: %w", err)
		}
		nextDG := int64(binary.LittleEndian.Uint32(dg[4:8]))
		cgAddr := int64(binary.LittleEndian.Uint32(dg[8:12]))
		dataAddr := int64(binary.LittleEndian.Uint32(dg[16:20]))
		numRecordIDs := int(binary.LittleEndian.Uint16(dg[22:24]))

		for cgAddr != 0 {
			cg, err := r.readBlock(cgAddr, "CG")
			if err != nil {
				return fmt.Errorf("channel group: %w", err)
			}
			group := &v3Group{
				dataAddr:    dataAddr,
				recordID:    uint8(binary.LittleEndian.Uint16(cg[16:18])),
				recordIDLen: numRecordIDs,
				recordSize:  int(binary.LittleEndian.Uint16(cg[20:22])),
				numRecords:  int(binary.LittleEndian.Uint32(cg[22:26])),
			}

			cnAddr := int64(binary.LittleEndian.Uint32(cg[8:12]))
			for cnAddr != 0 {
				cn, err := r.readBlock(cnAddr, "CN")
				if err != nil {
					return fmt.Errorf("channel: %w", err)
				}
				ch, err := r.parseChannel(cn, groupIndex)
				if err != nil {
					return err
				}
				group.channels = append(group.channels, ch)
				cnAddr = int64(binary.LittleEndian.Uint32(cn[4:8]))
			}

			r.groups = append(r.groups, group)
			groupIndex++
			cgAddr = int64(binary.LittleEndian.Uint32(cg[4:8]))
		}
		dgAddr = nextDG
	}
	return nil
}

func (r *rowReader) parseChannel(cn []byte, groupIndex int) (*v3Channel, error) {
	if len(cn) < 192 {
		return nil, fmt.Errorf("channel block too short: %d bytes", len(cn))
	}

	ch := &v3Channel{
		isMaster:   binary.LittleEndian.Uint16(cn[24:26]) == 1,
		name:       cstr(cn[26:58]),
		desc:       cstr(cn[58:186]),
		bitOffset:  int(binary.LittleEndian.Uint16(cn[186:188])),
		bitCount:   int(binary.LittleEndian.Uint16(cn[188:190])),
		dataType:   binary.LittleEndian.Uint16(cn[190:192]),
		groupIndex: groupIndex,
	}
	if len(cn) >= 228 {
		ch.bitOffset += int(binary.LittleEndian.Uint16(cn[226:228])) * 8
	}

	ccAddr := int64(binary.LittleEndian.Uint32(cn[8:12]))
	if ccAddr != 0 {
		cc, err := r.readBlock(ccAddr, "CC")
		if err != nil {
			return nil, fmt.Errorf("conversion for %s: %w", ch.name, err)
		}
		if len(cc) >= 44 {
			ch.unit = cstr(cc[22:42])
			ch.convType = binary.LittleEndian.Uint16(cc[42:44])
			if ch.convType == v3ConvLinear && len(cc) >= 62 {
				ch.convP1 = math.Float64frombits(binary.LittleEndian.Uint64(cc[46:54]))
				ch.convP2 = math.Float64frombits(binary.LittleEndian.Uint64(cc[54:62]))
				ch.hasConv = true
			}
		}
	}
	return ch, nil
}

// readBlock reads one "Xx" block: 2-byte id, 2-byte total size.
func (r *rowReader) readBlock(addr int64, id string) ([]byte, error) {
	head := make([]byte, 4)
	if _, err := r.file.ReadAt(head, addr); err != nil {
		return nil, fmt.Errorf("reading block header at %d: %w", addr, err)
	}
	if string(head[:2]) != id {
		return nil, fmt.Errorf("expected %s block at %d, found %q", id, addr, head[:2])
	}
	size := int(binary.LittleEndian.Uint16(head[2:4]))
	if size < 4 {
		return nil, fmt.Errorf("invalid %s block size %d", id, size)
	}
	block := make([]byte, size)
	if _, err := r.file.ReadAt(block, addr); err != nil {
		return nil, fmt.Errorf("reading %s block at %d: %w", id, addr, err)
	}
	return block, nil
}

func (r *rowReader) buildChannelMap() {
	for _, group := range r.groups {
		for i, ch := range group.channels {
			if _, dup := r.locations[ch.name]; !dup {
				r.locations[ch.name] = ch
				r.order = append(r.order, ch.name)
				continue
			}
			// first occurrence stays canonical, later ones get a
			// synthetic disambiguated name
			synthetic := fmt.Sprintf("%s_g%d_i%d", ch.name, ch.groupIndex, i)
			r.locations[synthetic] = ch
		}
	}
}

func (r *rowReader) Channels() []string {
	channels := make([]string, 0, len(r.order))
	for _, name := range r.order {
		ch := r.locations[name]
		if ch.isMaster || isTimeName(name) {
			continue
		}
		channels = append(channels, name)
	}
	return channels
}

func (r *rowReader) ChannelInfo(name string) (*ChannelInfo, error) {
	ch, ok := r.locations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	samples, _, err := r.Read(name)
	if err != nil {
		return nil, err
	}
	return &ChannelInfo{
		Name:        name,
		Unit:        ch.unit,
		Description: ch.desc,
		SampleCount: samples.Len(),
		DataType:    samples.DType(),
	}, nil
}

func (r *rowReader) Read(name string) (*Samples, []float64, error) {
	ch, ok := r.locations[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	group := r.groups[ch.groupIndex]

	records, err := r.recordsFor(ch.groupIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("reading records for %s: %w", name, err)
	}

	samples, err := extractV3Samples(ch, records)
	if err != nil {
		return nil, nil, fmt.Errorf("extracting samples for %s: %w", name, err)
	}

	timestamps := r.timestampsFor(group, records, samples.Len())
	return samples, timestamps, nil
}

// timestampsFor reads the group's time master, falling back to a 0..N-1
// index sequence when the group has none.
func (r *rowReader) timestampsFor(group *v3Group, records [][]byte, n int) []float64 {
	for _, ch := range group.channels {
		if !ch.isMaster {
			continue
		}
		master, err := extractV3Samples(ch, records)
		if err != nil || len(master.Floats) != n {
			break
		}
		return master.Floats
	}

	timestamps := make([]float64, n)
	for i := range timestamps {
		timestamps[i] = float64(i)
	}
	return timestamps
}

func (r *rowReader) recordsFor(groupIndex int) ([][]byte, error) {
	if records, ok := r.recordCache[groupIndex]; ok {
		return records, nil
	}

	group := r.groups[groupIndex]
	if group.recordIDLen == 0 {
		records, err := r.readPlainRecords(group)
		if err != nil {
			return nil, err
		}
		r.recordCache[groupIndex] = records
		return records, nil
	}
	return r.readFramedRecords(groupIndex)
}

// readPlainRecords handles sorted data blocks: one channel group, records
// stored back to back without id framing.
func (r *rowReader) readPlainRecords(group *v3Group) ([][]byte, error) {
	raw := make([]byte, group.recordSize*group.numRecords)
	if _, err := r.file.ReadAt(raw, group.dataAddr); err != nil {
		return nil, fmt.Errorf("reading data block: %w", err)
	}

	records := make([][]byte, group.numRecords)
	for i := range records {
		records[i] = raw[i*group.recordSize : (i+1)*group.recordSize]
	}
	return records, nil
}

// readFramedRecords handles unsorted data blocks where records of several
// channel groups interleave, each framed by its record id. All groups
// sharing the data block are demultiplexed and cached in one pass.
func (r *rowReader) readFramedRecords(groupIndex int) ([][]byte, error) {
	target := r.groups[groupIndex]

	byID := make(map[uint8]*v3Group)
	ordinals := make(map[uint8]int)
	total := 0
	for i, g := range r.groups {
		if g.dataAddr != target.dataAddr {
			continue
		}
		byID[g.recordID] = g
		ordinals[g.recordID] = i
		total += g.numRecords * (g.recordSize + g.recordIDLen)
	}

	raw := make([]byte, total)
	if _, err := r.file.ReadAt(raw, target.dataAddr); err != nil {
		return nil, fmt.Errorf("reading data block: %w", err)
	}

	demuxed := make(map[uint8][][]byte)
	for pos := 0; pos < len(raw); {
		id := raw[pos]
		group, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown record id %d at offset %d", id, pos)
		}
		start := pos + 1
		end := start + group.recordSize
		if end > len(raw) {
			return nil, fmt.Errorf("truncated record at offset %d", pos)
		}
		demuxed[id] = append(demuxed[id], raw[start:end])

		pos = end
		if group.recordIDLen == 2 {
			pos++ // trailing record id byte
		}
	}

	for id, records := range demuxed {
		r.recordCache[ordinals[id]] = records
	}
	return r.recordCache[groupIndex], nil
}

func extractV3Samples(ch *v3Channel, records [][]byte) (*Samples, error) {
	switch ch.dataType {
	case v3TypeString:
		return extractStringColumn(records, ch.bitOffset/8, ch.bitCount/8), nil

	case v3TypeBytes:
		return extractRowColumn(records, ch.bitOffset/8, ch.bitCount/8), nil

	case v3TypeUint, v3TypeInt, v3TypeFloat, v3TypeDouble:
		return extractNumericColumn(records, ch.bitOffset, ch.bitCount,
			numericKindV3(ch.dataType), binary.LittleEndian, ch.linear())

	case v3TypeUintBE, v3TypeIntBE, v3TypeFloatBE, v3TypeDblBE:
		return extractNumericColumn(records, ch.bitOffset, ch.bitCount,
			numericKindV3(ch.dataType-9), binary.BigEndian, ch.linear())

	default:
		return nil, fmt.Errorf("unsupported signal data type %d", ch.dataType)
	}
}

func (ch *v3Channel) linear() func(float64) float64 {
	if !ch.hasConv {
		return nil
	}
	p1, p2 := ch.convP1, ch.convP2
	return func(raw float64) float64 { return p1 + p2*raw }
}

func numericKindV3(dataType uint16) DataKind {
	switch dataType {
	case v3TypeInt:
		return KindInt
	case v3TypeFloat, v3TypeDouble:
		return KindFloat
	default:
		return KindUint
	}
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

func isTimeName(name string) bool {
	switch strings.ToLower(name) {
	case "time", "timestamp":
		return true
	}
	return false
}
