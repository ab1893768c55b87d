package decode

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/robotlogs/mdflog/internal/dbc"
	"github.com/robotlogs/mdflog/internal/mdf"
	"github.com/robotlogs/mdflog/internal/record"
)

var testBase = time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)

func testChannel(name string, samples *mdf.Samples) Channel {
	timestamps := make([]float64, samples.Len())
	for i := range timestamps {
		timestamps[i] = float64(i) * 0.5
	}
	return Channel{
		Name:       name,
		Samples:    samples,
		Timestamps: timestamps,
		Base:       testBase,
		Source:     "test.mdf",
	}
}

func TestTextDecoder(t *testing.T) {
	samples := &mdf.Samples{
		Kind:    mdf.KindString,
		Strings: []string{"boot complete", "arm enabled"},
	}

	records, err := NewTextDecoder().Decode(testChannel("event_log", samples))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Decode() returned %d records, want 2", len(records))
	}

	first := records[0]
	if first.Kind != record.KindText {
		t.Errorf("Kind = %s, want %s", first.Kind, record.KindText)
	}
	if first.Message != "event_log: boot complete" {
		t.Errorf("Message = %q", first.Message)
	}
	if !first.Timestamp.Equal(testBase) {
		t.Errorf("Timestamp = %v, want %v", first.Timestamp, testBase)
	}

	second := records[1]
	if want := testBase.Add(500 * time.Millisecond); !second.Timestamp.Equal(want) {
		t.Errorf("second Timestamp = %v, want %v", second.Timestamp, want)
	}
}

func TestTextDecoderBinaryBytes(t *testing.T) {
	samples := &mdf.Samples{
		Kind: mdf.KindByteRows,
		Rows: [][]byte{{0xFF, 0xFE, 0x00}},
	}

	records, err := NewTextDecoder().Decode(testChannel("message", samples))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if records[0].Message != "message: <3 binary bytes>" {
		t.Errorf("Message = %q", records[0].Message)
	}
}

func TestCurveDecoder(t *testing.T) {
	samples := &mdf.Samples{
		Kind:   mdf.KindFloat,
		Floats: []float64{1, 2, 3, 4},
	}

	ch := testChannel("motor_temp", samples)
	ch.Unit = "degC"

	records, err := NewCurveDecoder().Decode(ch)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Decode() returned %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Kind != record.KindCurve {
		t.Errorf("Kind = %s, want %s", rec.Kind, record.KindCurve)
	}
	if len(rec.Curve) != 4 {
		t.Fatalf("len(Curve) = %d, want 4", len(rec.Curve))
	}
	if rec.Curve[2].Value != 3 || rec.Curve[2].SensorName != "motor_temp" {
		t.Errorf("unexpected curve sample: %+v", rec.Curve[2])
	}

	meta := rec.Metadata.(*CurveMetadata)
	if meta.SampleCount != 4 {
		t.Errorf("SampleCount = %d, want 4", meta.SampleCount)
	}
	if meta.Min != 1 || meta.Max != 4 || meta.Mean != 2.5 {
		t.Errorf("stats = min %v max %v mean %v, want 1/4/2.5", meta.Min, meta.Max, meta.Mean)
	}
	if meta.Duration != 1.5 {
		t.Errorf("Duration = %v, want 1.5", meta.Duration)
	}
	if meta.Unit != "degC" {
		t.Errorf("Unit = %q, want degC", meta.Unit)
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(encoded), `"samples_count":4`) {
		t.Errorf("metadata JSON = %s, want samples_count key", encoded)
	}
}

func TestCurveDecoderSkipsBadSamples(t *testing.T) {
	samples := &mdf.Samples{
		Kind:   mdf.KindFloat,
		Floats: []float64{1, math.NaN(), 3},
	}

	records, err := NewCurveDecoder().Decode(testChannel("speed", samples))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	rec := records[0]
	if len(rec.Curve) != 2 {
		t.Fatalf("len(Curve) = %d, want 2", len(rec.Curve))
	}
	if meta := rec.Metadata.(*CurveMetadata); meta.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", meta.Skipped)
	}
}

func TestCurveDecoderAllBadSamples(t *testing.T) {
	samples := &mdf.Samples{
		Kind:    mdf.KindString,
		Strings: []string{"n/a", "n/a"},
	}

	if _, err := NewCurveDecoder().Decode(testChannel("speed", samples)); err == nil {
		t.Fatal("Decode() on all-bad samples should fail")
	}
}

func TestLaserDecoder(t *testing.T) {
	ranges := make([]float64, 12)
	for i := range ranges {
		ranges[i] = 1 + float64(i)*0.1
	}
	samples := &mdf.Samples{Kind: mdf.KindFloat, Floats: ranges}

	records, err := NewLaserDecoder().Decode(testChannel("front_laser", samples))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	rec := records[0]
	if rec.Kind != record.KindLaser {
		t.Errorf("Kind = %s, want %s", rec.Kind, record.KindLaser)
	}

	scan := rec.Scan
	if scan == nil {
		t.Fatal("Scan is nil")
	}
	if scan.AngleMin != -math.Pi/2 || scan.AngleMax != math.Pi/2 {
		t.Errorf("sweep = [%v, %v], want [-pi/2, pi/2]", scan.AngleMin, scan.AngleMax)
	}
	if len(scan.Ranges) != 12 {
		t.Errorf("len(Ranges) = %d, want 12", len(scan.Ranges))
	}

	want := scan.AngleMin + 3*scan.AngleIncrement
	if got := scan.Angle(3); got != want {
		t.Errorf("Angle(3) = %v, want %v", got, want)
	}
}

func TestImageDecoderPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	samples := &mdf.Samples{
		Kind: mdf.KindByteRows,
		Rows: [][]byte{buf.Bytes()},
	}

	records, err := NewImageDecoder().Decode(testChannel("camera_front", samples))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	rec := records[0]
	if rec.Image == nil {
		t.Fatal("Image is nil")
	}
	if rec.Image.Format != "png" || rec.Image.Width != 4 || rec.Image.Height != 3 {
		t.Errorf("image = %s %dx%d, want png 4x3", rec.Image.Format, rec.Image.Width, rec.Image.Height)
	}
	if !bytes.Equal(rec.Image.Payload, buf.Bytes()) {
		t.Error("payload does not match encoded bytes")
	}
}

func TestImageDecoderUnrecognizedPayload(t *testing.T) {
	samples := &mdf.Samples{
		Kind: mdf.KindByteRows,
		Rows: [][]byte{{0xDE, 0xAD, 0xBE, 0xEF}},
	}

	records, err := NewImageDecoder().Decode(testChannel("camera_raw", samples))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	rec := records[0]
	meta := rec.Metadata.(*ImageMetadata)
	if meta.Error == "" {
		t.Error("decode error not recorded in metadata")
	}
	if meta.Bytes != 4 {
		t.Errorf("Bytes = %d, want 4", meta.Bytes)
	}
	if rec.Image != nil {
		t.Errorf("Image = %+v, want no detail record on decode failure", rec.Image)
	}
}

func packFrame(id uint32, payload []byte) []byte {
	row := make([]byte, 5+len(payload))
	binary.LittleEndian.PutUint32(row[0:4], id)
	row[4] = byte(len(payload))
	copy(row[5:], payload)
	return row
}

func TestCANDecoderPacked(t *testing.T) {
	samples := &mdf.Samples{
		Kind: mdf.KindByteRows,
		Rows: [][]byte{
			packFrame(0x100, []byte{42, 20, 0, 0, 0, 0, 0, 0}),
			packFrame(0x200, []byte{0x80, 0x0C, 0, 0, 0, 0, 0, 0}),
		},
	}

	records, err := NewCANDecoder().Decode(testChannel("can_bus0", samples))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	rec := records[0]
	if rec.Kind != record.KindCAN {
		t.Errorf("Kind = %s, want %s", rec.Kind, record.KindCAN)
	}
	if len(rec.Frames) != 2 {
		t.Fatalf("len(Frames) = %d, want 2", len(rec.Frames))
	}
	if rec.Frames[0].ID != "0x100" {
		t.Errorf("frame id = %q, want 0x100", rec.Frames[0].ID)
	}
	if rec.Frames[0].RawData != "2A14000000000000" {
		t.Errorf("RawData = %q", rec.Frames[0].RawData)
	}
}

func TestCANDecoderWithDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.dbc")
	contents := `BO_ 256 EngineStatus: 8 ECU1
 SG_ EngineSpeed : 0|8@1+ (1,0) [0|255] "rpm" ECU2
`
	if err := os.WriteFile(dbPath, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := dbc.Open(dbPath, dbc.BackendFallback)
	if err != nil {
		t.Fatal(err)
	}

	samples := &mdf.Samples{
		Kind: mdf.KindByteRows,
		Rows: [][]byte{packFrame(0x100, []byte{42, 0, 0, 0, 0, 0, 0, 0})},
	}

	records, err := NewCANDecoder(WithDatabase(db)).Decode(testChannel("can_bus0", samples))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	frame := records[0].Frames[0]
	if frame.MessageName != "EngineStatus" {
		t.Errorf("MessageName = %q, want EngineStatus", frame.MessageName)
	}
	if len(frame.Signals) != 1 || frame.Signals[0].Name != "EngineSpeed" || frame.Signals[0].Value != 42 {
		t.Errorf("unexpected signals: %+v", frame.Signals)
	}

	meta := records[0].Metadata.(*CANMetadata)
	if meta.Decoded != 1 {
		t.Errorf("Decoded = %d, want 1", meta.Decoded)
	}
}

func TestCANDecoderStringFrames(t *testing.T) {
	samples := &mdf.Samples{
		Kind:    mdf.KindString,
		Strings: []string{"0x100:2A00", "garbage", "1A2:DEADBEEF"},
	}

	records, err := NewCANDecoder().Decode(testChannel("bus_frames", samples))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	rec := records[0]
	if len(rec.Frames) != 2 {
		t.Fatalf("len(Frames) = %d, want 2", len(rec.Frames))
	}

	// bare identifiers are hexadecimal, like the 0x-prefixed form
	if rec.Frames[1].ID != "0x1A2" {
		t.Errorf("frame id = %q, want 0x1A2", rec.Frames[1].ID)
	}
	if rec.Frames[1].RawData != "DEADBEEF" {
		t.Errorf("RawData = %q", rec.Frames[1].RawData)
	}
	if meta := rec.Metadata.(*CANMetadata); meta.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", meta.Malformed)
	}
}
