package mdf

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// builder assembles synthetic container files for the reader tests.
type builder struct {
	data []byte
}

func (b *builder) add(block []byte) int64 {
	off := int64(len(b.data))
	b.data = append(b.data, block...)
	return off
}

func (b *builder) pad8() {
	for len(b.data)%8 != 0 {
		b.data = append(b.data, 0)
	}
}

func (b *builder) put16(off int64, v uint16) {
	binary.LittleEndian.PutUint16(b.data[off:], v)
}

func (b *builder) put32(off int64, v uint32) {
	binary.LittleEndian.PutUint32(b.data[off:], v)
}

func (b *builder) put64(off int64, v uint64) {
	binary.LittleEndian.PutUint64(b.data[off:], v)
}

func (b *builder) write(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b.data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- MDF 3.x ---

func v3IDBlock(version uint16) []byte {
	id := make([]byte, 64)
	copy(id, "MDF     ")
	binary.LittleEndian.PutUint16(id[24:26], 0) // little-endian default
	binary.LittleEndian.PutUint16(id[28:30], version)
	return id
}

func v3Block(id string, size int) []byte {
	block := make([]byte, size)
	copy(block, id)
	binary.LittleEndian.PutUint16(block[2:4], uint16(size))
	return block
}

func v3ChannelBlock(name string, chanType, startBit, bitCount, dataType, addByteOffset uint16) []byte {
	cn := v3Block("CN", 228)
	binary.LittleEndian.PutUint16(cn[24:26], chanType)
	copy(cn[26:58], name)
	binary.LittleEndian.PutUint16(cn[186:188], startBit)
	binary.LittleEndian.PutUint16(cn[188:190], bitCount)
	binary.LittleEndian.PutUint16(cn[190:192], dataType)
	binary.LittleEndian.PutUint16(cn[226:228], addByteOffset)
	return cn
}

// writeV3File builds a two-group 3.30 container:
//
//	group 0: time master (float64) + motor_temp (uint16, linear 10+0.5x, degC)
//	group 1: event_text (4-byte string) + motor_temp (uint8, duplicate name)
func writeV3File(t *testing.T) string {
	t.Helper()
	b := &builder{}

	b.add(v3IDBlock(330))
	hd := b.add(v3Block("HD", 12))

	dg0 := b.add(v3Block("DG", 24))
	cg0 := b.add(v3Block("CG", 26))
	cnTime := b.add(v3ChannelBlock("time", 1, 0, 64, v3TypeDouble, 0))
	cnTemp := b.add(v3ChannelBlock("motor_temp", 0, 0, 16, v3TypeUint, 8))

	cc := v3Block("CC", 62)
	copy(cc[22:42], "degC")
	binary.LittleEndian.PutUint16(cc[42:44], v3ConvLinear)
	binary.LittleEndian.PutUint64(cc[46:54], math.Float64bits(10))
	binary.LittleEndian.PutUint64(cc[54:62], math.Float64bits(0.5))
	ccOff := b.add(cc)

	dg1 := b.add(v3Block("DG", 24))
	cg1 := b.add(v3Block("CG", 26))
	cnText := b.add(v3ChannelBlock("event_text", 0, 0, 32, v3TypeString, 0))
	cnTemp2 := b.add(v3ChannelBlock("motor_temp", 0, 0, 8, v3TypeUint, 4))

	// group 0 data: 4 records of [float64 time][uint16 raw]
	data0 := make([]byte, 4*10)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(data0[i*10:], math.Float64bits(float64(i)*0.5))
		binary.LittleEndian.PutUint16(data0[i*10+8:], uint16(i))
	}
	data0Off := b.add(data0)

	// group 1 data: 3 records of [4-byte string][uint8]
	texts := []string{"on", "off", "rdy"}
	data1 := make([]byte, 3*5)
	for i, s := range texts {
		copy(data1[i*5:i*5+4], s)
		data1[i*5+4] = byte(5 + i)
	}
	data1Off := b.add(data1)

	b.put32(hd+4, uint32(dg0))

	b.put32(dg0+4, uint32(dg1))
	b.put32(dg0+8, uint32(cg0))
	b.put32(dg0+16, uint32(data0Off))
	b.put32(cg0+8, uint32(cnTime))
	b.put16(cg0+20, 10)
	b.put32(cg0+22, 4)
	b.put32(cnTime+4, uint32(cnTemp))
	b.put32(cnTemp+8, uint32(ccOff))

	b.put32(dg1+8, uint32(cg1))
	b.put32(dg1+16, uint32(data1Off))
	b.put32(cg1+8, uint32(cnText))
	b.put16(cg1+20, 5)
	b.put32(cg1+22, 3)
	b.put32(cnText+4, uint32(cnTemp2))

	return b.write(t, "test.mf3")
}

// --- MDF 4.x ---

func v4IDBlock(version uint16) []byte {
	id := make([]byte, 64)
	copy(id, "MDF     ")
	binary.LittleEndian.PutUint16(id[28:30], version)
	return id
}

func v4Block(id string, links []uint64, data []byte) []byte {
	length := 24 + len(links)*8 + len(data)
	block := make([]byte, length)
	copy(block, id)
	binary.LittleEndian.PutUint64(block[8:16], uint64(length))
	binary.LittleEndian.PutUint64(block[16:24], uint64(len(links)))
	for i, link := range links {
		binary.LittleEndian.PutUint64(block[24+i*8:], link)
	}
	copy(block[24+len(links)*8:], data)
	return block
}

func (b *builder) addV4Text(text string) int64 {
	b.pad8()
	data := make([]byte, (len(text)/8+1)*8)
	copy(data, text)
	return b.add(v4Block("##TX", nil, data))
}

func (b *builder) addV4Channel(nameAddr, unitAddr, ccAddr uint64, chanType, dataType uint8, byteOffset, bitCount uint32) int64 {
	b.pad8()
	data := make([]byte, 16)
	data[0] = chanType
	data[2] = dataType
	binary.LittleEndian.PutUint32(data[4:8], byteOffset)
	binary.LittleEndian.PutUint32(data[8:12], bitCount)
	links := []uint64{0, 0, nameAddr, 0, ccAddr, 0, unitAddr, 0}
	return b.add(v4Block("##CN", links, data))
}

func (b *builder) addV4Group(cnAddr, commentAddr uint64, cycleCount uint64, dataBytes uint32) int64 {
	b.pad8()
	data := make([]byte, 32)
	binary.LittleEndian.PutUint64(data[8:16], cycleCount)
	binary.LittleEndian.PutUint32(data[24:28], dataBytes)
	links := []uint64{0, cnAddr, commentAddr, 0, 0, 0}
	return b.add(v4Block("##CG", links, data))
}

// writeV4File builds a two-group 4.10 container:
//
//	group 0 "Engine": time master (float64) + wheel_speed (uint16, 0.25x, m/s)
//	group 1 "Events": event_text (8-byte string)
func writeV4File(t *testing.T) string {
	t.Helper()
	b := &builder{}

	b.add(v4IDBlock(410))

	hd := b.add(v4Block("##HD", []uint64{0}, nil))

	timeName := b.addV4Text("time")
	speedName := b.addV4Text("wheel_speed")
	speedUnit := b.addV4Text("m/s")
	textName := b.addV4Text("event_text")
	engineComment := b.addV4Text("Engine")
	eventsComment := b.addV4Text("Events")

	b.pad8()
	ccData := make([]byte, 40)
	ccData[0] = v4ConvLinear
	binary.LittleEndian.PutUint64(ccData[24:32], math.Float64bits(0))
	binary.LittleEndian.PutUint64(ccData[32:40], math.Float64bits(0.25))
	cc := b.add(v4Block("##CC", []uint64{0, 0, 0, 0}, ccData))

	cnTime := b.addV4Channel(uint64(timeName), 0, 0, v4ChanMaster, v4TypeFloatLE, 0, 64)
	cnSpeed := b.addV4Channel(uint64(speedName), uint64(speedUnit), uint64(cc), v4ChanFixed, v4TypeUintLE, 8, 16)
	cnText := b.addV4Channel(uint64(textName), 0, 0, v4ChanFixed, v4TypeStringU8, 0, 64)

	// group 0 data: 4 records of [float64 time][uint16 raw]
	data0 := make([]byte, 4*10)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(data0[i*10:], math.Float64bits(float64(i)*0.1))
		binary.LittleEndian.PutUint16(data0[i*10+8:], uint16(i*4))
	}
	b.pad8()
	dt0 := b.add(v4Block("##DT", nil, data0))

	// group 1 data: 2 records of 8-byte strings
	data1 := make([]byte, 2*8)
	copy(data1[0:], "armed")
	copy(data1[8:], "standby")
	b.pad8()
	dt1 := b.add(v4Block("##DT", nil, data1))

	cg0 := b.addV4Group(uint64(cnTime), uint64(engineComment), 4, 10)
	cg1 := b.addV4Group(uint64(cnText), uint64(eventsComment), 2, 8)

	b.pad8()
	dg0 := b.add(v4Block("##DG", []uint64{0, uint64(cg0), uint64(dt0), 0}, make([]byte, 8)))
	b.pad8()
	dg1 := b.add(v4Block("##DG", []uint64{0, uint64(cg1), uint64(dt1), 0}, make([]byte, 8)))

	// chain the links that were unknown while blocks were being laid out
	b.put64(hd+24, uint64(dg0))
	b.put64(dg0+24, uint64(dg1))
	b.put64(cnTime+24, uint64(cnSpeed))

	return b.write(t, "test.mf4")
}
