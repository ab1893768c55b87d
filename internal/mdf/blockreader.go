package mdf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// MDF 4.x channel data types.
const (
	v4TypeUintLE   = 0
	v4TypeUintBE   = 1
	v4TypeIntLE    = 2
	v4TypeIntBE    = 3
	v4TypeFloatLE  = 4
	v4TypeFloatBE  = 5
	v4TypeStringL1 = 6
	v4TypeStringU8 = 7
	v4TypeBytes    = 10
)

// MDF 4.x channel types.
const (
	v4ChanFixed         = 0
	v4ChanMaster        = 2
	v4ChanVirtualMaster = 3
)

const (
	v4ConvIdentity = 0
	v4ConvLinear   = 1
)

type v4Channel struct {
	name       string
	unit       string
	desc       string
	chanType   uint8
	dataType   uint8
	bitOffset  int
	bitCount   int
	convP1     float64
	convP2     float64
	hasConv    bool
	groupIndex int
}

type v4Group struct {
	index      int
	comment    string
	dataAddr   int64
	cycleCount int
	rowSize    int // data bytes + invalidation bytes per record
	dataBytes  int
	channels   []*v4Channel
}

// blockReader parses MDF 4.x containers ("##"-tagged blocks). Unlike the
// row reader it retains the channel-group structure and exposes it through
// GroupIntrospector.
type blockReader struct {
	file    *os.File
	version string

	groups    []*v4Group
	order     []string
	locations map[string]*v4Channel

	recordCache map[int][][]byte
}

func newBlockReader() *blockReader {
	return &blockReader{
		locations:   make(map[string]*v4Channel),
		recordCache: make(map[int][][]byte),
	}
}

func (r *blockReader) Open(path string) (err error) {
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
	if versionNumber < 400 {
		return fmt.Errorf("%w: MDF %d.%02d is not a 4.x container",
			ErrUnsupportedFormat, versionNumber/100, versionNumber%100)
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

func (r *blockReader) Version() string { return r.version }

func (r *blockReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.recordCache = make(map[int][][]byte)
	return err
}

func (r *blockReader) parseHeader() error {
	_, hdLinks, _, err := r.readBlock(64, "##HD")
	if err != nil {
		return err
	}

	groupIndex := 0
	dgAddr := int64(hdLinks[0])
	for dgAddr != 0 {
		_, dgLinks, dgData, err := r.readBlock(dgAddr, "##DG")
		if err != nil {
			return fmt.Errorf("data group: %w", err)
		}
		if len(dgData) > 0 && dgData[0] != 0 {
			return fmt.Errorf("%w: unsorted file (record id size %d)", ErrUnsupportedFormat, dgData[0])
		}
		dataAddr := int64(dgLinks[2])

		cgAddr := int64(dgLinks[1])
		for cgAddr != 0 {
			_, cgLinks, cgData, err := r.readBlock(cgAddr, "##CG")
			if err != nil {
				return fmt.Errorf("channel group: %w", err)
			}
			if len(cgData) < 32 {
				return fmt.Errorf("channel group block too short: %d bytes", len(cgData))
			}

			dataBytes := int(binary.LittleEndian.Uint32(cgData[24:28]))
			invalBytes := int(binary.LittleEndian.Uint32(cgData[28:32]))
			group := &v4Group{
				index:      groupIndex,
				dataAddr:   dataAddr,
				cycleCount: int(binary.LittleEndian.Uint64(cgData[8:16])),
				dataBytes:  dataBytes,
				rowSize:    dataBytes + invalBytes,
			}
			group.comment, _ = r.readText(int64(cgLinks[2]))

			cnAddr := int64(cgLinks[1])
			for cnAddr != 0 {
				ch, next, err := r.parseChannel(cnAddr, groupIndex)
				if err != nil {
					return err
				}
				group.channels = append(group.channels, ch)
				cnAddr = next
			}

			r.groups = append(r.groups, group)
			groupIndex++
			cgAddr = int64(cgLinks[0])
		}
		dgAddr = int64(dgLinks[0])
	}
	return nil
}

func (r *blockReader) parseChannel(addr int64, groupIndex int) (*v4Channel, int64, error) {
	_, links, data, err := r.readBlock(addr, "##CN")
	if err != nil {
		return nil, 0, fmt.Errorf("channel: %w", err)
	}
	if len(links) < 8 || len(data) < 16 {
		return nil, 0, fmt.Errorf("channel block too short at %d", addr)
	}

	ch := &v4Channel{
		chanType:   data[0],
		dataType:   data[2],
		bitOffset:  int(data[3]) + int(binary.LittleEndian.Uint32(data[4:8]))*8,
		bitCount:   int(binary.LittleEndian.Uint32(data[8:12])),
		groupIndex: groupIndex,
	}

	if ch.name, err = r.readText(int64(links[2])); err != nil {
		return nil, 0, fmt.Errorf("channel name: %w", err)
	}
	ch.unit, _ = r.readText(int64(links[6]))
	ch.desc, _ = r.readText(int64(links[7]))

	if ccAddr := int64(links[4]); ccAddr != 0 {
		if err = r.parseConversion(ccAddr, ch); err != nil {
			return nil, 0, fmt.Errorf("conversion for %s: %w", ch.name, err)
		}
	}
	return ch, int64(links[0]), nil
}

func (r *blockReader) parseConversion(addr int64, ch *v4Channel) error {
	_, links, data, err := r.readBlock(addr, "##CC")
	if err != nil {
		return err
	}
	if len(data) < 24 {
		return fmt.Errorf("conversion block too short at %d", addr)
	}

	if ch.unit == "" && len(links) > 1 {
		ch.unit, _ = r.readText(int64(links[1]))
	}

	if data[0] == v4ConvLinear && len(data) >= 40 {
		ch.convP1 = math.Float64frombits(binary.LittleEndian.Uint64(data[24:32]))
		ch.convP2 = math.Float64frombits(binary.LittleEndian.Uint64(data[32:40]))
		ch.hasConv = true
	}
	return nil
}

// readBlock reads one "##XX" block and splits it into links and data.
func (r *blockReader) readBlock(addr int64, id string) (string, []uint64, []byte, error) {
	head := make([]byte, 24)
	if _, err := r.file.ReadAt(head, addr); err != nil {
		return "", nil, nil, fmt.Errorf("reading block header at %d: %w", addr, err)
	}
	blockID := string(head[:4])
	if id != "" && blockID != id {
		return "", nil, nil, fmt.Errorf("expected %s block at %d, found %q", id, addr, blockID)
	}

	length := binary.LittleEndian.Uint64(head[8:16])
	linkCount := binary.LittleEndian.Uint64(head[16:24])
	if length < 24 || length > 1<<32 {
		return "", nil, nil, fmt.Errorf("invalid %s block length %d", blockID, length)
	}

	body := make([]byte, length-24)
	if _, err := r.file.ReadAt(body, addr+24); err != nil {
		return "", nil, nil, fmt.Errorf("reading %s block at %d: %w", blockID, addr, err)
	}
	if uint64(len(body)) < linkCount*8 {
		return "", nil, nil, fmt.Errorf("%s block at %d shorter than its link list", blockID, addr)
	}

	links := make([]uint64, linkCount)
	for i := range links {
		links[i] = binary.LittleEndian.Uint64(body[i*8 : i*8+8])
	}
	return blockID, links, body[linkCount*8:], nil
}

// readText resolves a TX or MD link into its string payload.
func (r *blockReader) readText(addr int64) (string, error) {
	if addr == 0 {
		return "", nil
	}
	id, _, data, err := r.readBlock(addr, "")
	if err != nil {
		return "", err
	}
	if id != "##TX" && id != "##MD" {
		return "", fmt.Errorf("expected text block at %d, found %q", addr, id)
	}
	return cstr(data), nil
}

func (r *blockReader) buildChannelMap() {
	for _, group := range r.groups {
		for i, ch := range group.channels {
			if _, dup := r.locations[ch.name]; !dup {
				r.locations[ch.name] = ch
				r.order = append(r.order, ch.name)
				continue
			}
			synthetic := fmt.Sprintf("%s_g%d_i%d", ch.name, ch.groupIndex, i)
			r.locations[synthetic] = ch
		}
	}
}

func (r *blockReader) Channels() []string {
	channels := make([]string, 0, len(r.order))
	for _, name := range r.order {
		ch := r.locations[name]
		if ch.chanType == v4ChanMaster || ch.chanType == v4ChanVirtualMaster || isTimeName(name) {
			continue
		}
		channels = append(channels, name)
	}
	return channels
}

func (r *blockReader) ChannelInfo(name string) (*ChannelInfo, error) {
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

func (r *blockReader) Read(name string) (*Samples, []float64, error) {
	ch, ok := r.locations[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	group := r.groups[ch.groupIndex]

	records, err := r.recordsFor(group)
	if err != nil {
		return nil, nil, fmt.Errorf("reading records for %s: %w", name, err)
	}

	samples, err := extractV4Samples(ch, records)
	if err != nil {
		return nil, nil, fmt.Errorf("extracting samples for %s: %w", name, err)
	}

	timestamps, err := r.timestampsFor(group, records, samples.Len())
	if err != nil {
		return nil, nil, fmt.Errorf("reading time master for %s: %w", name, err)
	}
	return samples, timestamps, nil
}

func (r *blockReader) timestampsFor(group *v4Group, records [][]byte, n int) ([]float64, error) {
	for _, ch := range group.channels {
		switch ch.chanType {
		case v4ChanMaster:
			master, err := extractV4Samples(ch, records)
			if err != nil {
				return nil, err
			}
			if len(master.Floats) == n {
				return master.Floats, nil
			}
		case v4ChanVirtualMaster:
			// virtual masters have no stored samples; the record index is
			// the raw value
			timestamps := make([]float64, n)
			conv := ch.linear()
			for i := range timestamps {
				value := float64(i)
				if conv != nil {
					value = conv(value)
				}
				timestamps[i] = value
			}
			return timestamps, nil
		}
	}

	timestamps := make([]float64, n)
	for i := range timestamps {
		timestamps[i] = float64(i)
	}
	return timestamps, nil
}

func (r *blockReader) recordsFor(group *v4Group) ([][]byte, error) {
	if records, ok := r.recordCache[group.index]; ok {
		return records, nil
	}
	if group.dataAddr == 0 {
		return nil, nil
	}

	id, _, data, err := r.readBlock(group.dataAddr, "")
	if err != nil {
		return nil, err
	}
	if id != "##DT" {
		return nil, fmt.Errorf("unsupported data layout block %q", id)
	}
	if group.rowSize == 0 {
		return nil, fmt.Errorf("channel group %d has zero record size", group.index)
	}

	count := group.cycleCount
	if limit := len(data) / group.rowSize; count > limit {
		count = limit
	}
	records := make([][]byte, count)
	for i := range records {
		records[i] = data[i*group.rowSize : i*group.rowSize+group.dataBytes]
	}

	r.recordCache[group.index] = records
	return records, nil
}

// Groups implements GroupIntrospector.
func (r *blockReader) Groups() []GroupInfo {
	groups := make([]GroupInfo, 0, len(r.groups))
	for _, group := range r.groups {
		info := GroupInfo{
			Index:       group.index,
			Comment:     group.comment,
			RecordCount: group.cycleCount,
		}
		for _, ch := range group.channels {
			if ch.chanType == v4ChanMaster || ch.chanType == v4ChanVirtualMaster {
				continue
			}
			info.Channels = append(info.Channels, ch.name)
		}
		groups = append(groups, info)
	}
	return groups
}

// ChannelGroupIndex implements GroupIntrospector.
func (r *blockReader) ChannelGroupIndex(name string) (int, bool) {
	ch, ok := r.locations[name]
	if !ok {
		return 0, false
	}
	return ch.groupIndex, true
}

func extractV4Samples(ch *v4Channel, records [][]byte) (*Samples, error) {
	switch ch.dataType {
	case v4TypeStringL1, v4TypeStringU8:
		return extractStringColumn(records, ch.bitOffset/8, ch.bitCount/8), nil

	case v4TypeBytes:
		return extractRowColumn(records, ch.bitOffset/8, ch.bitCount/8), nil

	case v4TypeUintLE, v4TypeIntLE, v4TypeFloatLE:
		return extractNumericColumn(records, ch.bitOffset, ch.bitCount,
			numericKindV4(ch.dataType), binary.LittleEndian, ch.linear())

	case v4TypeUintBE, v4TypeIntBE, v4TypeFloatBE:
		return extractNumericColumn(records, ch.bitOffset, ch.bitCount,
			numericKindV4(ch.dataType), binary.BigEndian, ch.linear())

	default:
		return nil, fmt.Errorf("unsupported channel data type %d", ch.dataType)
	}
}

func (ch *v4Channel) linear() func(float64) float64 {
	if !ch.hasConv {
		return nil
	}
	p1, p2 := ch.convP1, ch.convP2
	return func(raw float64) float64 { return p1 + p2*raw }
}

func numericKindV4(dataType uint8) DataKind {
	switch dataType {
	case v4TypeIntLE, v4TypeIntBE:
		return KindInt
	case v4TypeFloatLE, v4TypeFloatBE:
		return KindFloat
	default:
		return KindUint
	}
}
