package mdf

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenSelectsRowReader(t *testing.T) {
	path := writeV3File(t)

	adapter, backend, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer adapter.Close()

	if backend != BackendRow {
		t.Errorf("backend = %s, want %s", backend, BackendRow)
	}
	if adapter.Version() != "MDF 3.30" {
		t.Errorf("Version() = %q, want MDF 3.30", adapter.Version())
	}
}

func TestOpenSelectsBlockReader(t *testing.T) {
	path := writeV4File(t)

	adapter, backend, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer adapter.Close()

	if backend != BackendBlock {
		t.Errorf("backend = %s, want %s", backend, BackendBlock)
	}
	if adapter.Version() != "MDF 4.10" {
		t.Errorf("Version() = %q, want MDF 4.10", adapter.Version())
	}
}

func TestOpenRejectsUnknownFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not_mdf.bin")
	if err := os.WriteFile(path, []byte("definitely not a measurement"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Open(path); err == nil {
		t.Fatal("Open() on a non-container file should fail")
	}
}

func TestRowReaderChannels(t *testing.T) {
	adapter, _, err := Open(writeV3File(t))
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	channels := adapter.Channels()
	if len(channels) != 2 {
		t.Fatalf("Channels() = %v, want 2 entries", channels)
	}
	if channels[0] != "motor_temp" || channels[1] != "event_text" {
		t.Errorf("Channels() = %v", channels)
	}
}

func TestRowReaderLinearConversion(t *testing.T) {
	adapter, _, err := Open(writeV3File(t))
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	samples, timestamps, err := adapter.Read("motor_temp")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	want := []float64{10, 10.5, 11, 11.5}
	if len(samples.Floats) != len(want) {
		t.Fatalf("read %d samples, want %d", len(samples.Floats), len(want))
	}
	for i, v := range want {
		if samples.Floats[i] != v {
			t.Errorf("sample %d = %v, want %v", i, samples.Floats[i], v)
		}
	}

	// time master drives the timestamps
	wantTimes := []float64{0, 0.5, 1, 1.5}
	for i, v := range wantTimes {
		if timestamps[i] != v {
			t.Errorf("timestamp %d = %v, want %v", i, timestamps[i], v)
		}
	}
}

func TestRowReaderStringChannel(t *testing.T) {
	adapter, _, err := Open(writeV3File(t))
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	samples, timestamps, err := adapter.Read("event_text")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if samples.Kind != KindString {
		t.Fatalf("Kind = %v, want KindString", samples.Kind)
	}

	want := []string{"on", "off", "rdy"}
	for i, s := range want {
		if samples.Strings[i] != s {
			t.Errorf("string %d = %q, want %q", i, samples.Strings[i], s)
		}
	}

	// no master in this group: synthesized index timestamps
	for i := range timestamps {
		if timestamps[i] != float64(i) {
			t.Errorf("timestamp %d = %v, want %v", i, timestamps[i], float64(i))
		}
	}
}

func TestRowReaderDuplicateChannel(t *testing.T) {
	adapter, _, err := Open(writeV3File(t))
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	// the duplicate name lives at position 1 of group 1
	samples, _, err := adapter.Read("motor_temp_g1_i1")
	if err != nil {
		t.Fatalf("Read(synthetic) error: %v", err)
	}

	want := []float64{5, 6, 7}
	if len(samples.Floats) != len(want) {
		t.Fatalf("read %d samples, want %d", len(samples.Floats), len(want))
	}
	for i, v := range want {
		if samples.Floats[i] != v {
			t.Errorf("sample %d = %v, want %v", i, samples.Floats[i], v)
		}
	}
}

func TestRowReaderChannelInfo(t *testing.T) {
	adapter, _, err := Open(writeV3File(t))
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	info, err := adapter.ChannelInfo("motor_temp")
	if err != nil {
		t.Fatalf("ChannelInfo() error: %v", err)
	}
	if info.Unit != "degC" {
		t.Errorf("Unit = %q, want degC", info.Unit)
	}
	if info.SampleCount != 4 {
		t.Errorf("SampleCount = %d, want 4", info.SampleCount)
	}

	if _, err := adapter.ChannelInfo("missing"); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("ChannelInfo(missing) error = %v, want ErrChannelNotFound", err)
	}
}

func TestBlockReaderRead(t *testing.T) {
	adapter, _, err := Open(writeV4File(t))
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	channels := adapter.Channels()
	if len(channels) != 2 || channels[0] != "wheel_speed" || channels[1] != "event_text" {
		t.Fatalf("Channels() = %v", channels)
	}

	samples, timestamps, err := adapter.Read("wheel_speed")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	want := []float64{0, 1, 2, 3}
	for i, v := range want {
		if samples.Floats[i] != v {
			t.Errorf("sample %d = %v, want %v", i, samples.Floats[i], v)
		}
	}
	for i := range timestamps {
		if got, want := timestamps[i], float64(i)*0.1; math.Abs(got-want) > 1e-9 {
			t.Errorf("timestamp %d = %v, want %v", i, got, want)
		}
	}

	info, err := adapter.ChannelInfo("wheel_speed")
	if err != nil {
		t.Fatal(err)
	}
	if info.Unit != "m/s" {
		t.Errorf("Unit = %q, want m/s", info.Unit)
	}

	text, _, err := adapter.Read("event_text")
	if err != nil {
		t.Fatalf("Read(event_text) error: %v", err)
	}
	if text.Strings[0] != "armed" || text.Strings[1] != "standby" {
		t.Errorf("strings = %v", text.Strings)
	}
}

func TestBlockReaderGroups(t *testing.T) {
	adapter, _, err := Open(writeV4File(t))
	if err != nil {
		t.Fatal(err)
	}
	defer adapter.Close()

	introspector, ok := adapter.(GroupIntrospector)
	if !ok {
		t.Fatal("block reader should implement GroupIntrospector")
	}

	groups := introspector.Groups()
	if len(groups) != 2 {
		t.Fatalf("Groups() = %d groups, want 2", len(groups))
	}
	if groups[0].Comment != "Engine" || groups[1].Comment != "Events" {
		t.Errorf("comments = %q, %q", groups[0].Comment, groups[1].Comment)
	}
	if groups[0].RecordCount != 4 || groups[1].RecordCount != 2 {
		t.Errorf("record counts = %d, %d", groups[0].RecordCount, groups[1].RecordCount)
	}
	if len(groups[0].Channels) != 1 || groups[0].Channels[0] != "wheel_speed" {
		t.Errorf("group 0 channels = %v", groups[0].Channels)
	}

	index, ok := introspector.ChannelGroupIndex("event_text")
	if !ok || index != 1 {
		t.Errorf("ChannelGroupIndex(event_text) = %d, %v, want 1, true", index, ok)
	}
}

func TestRowReaderRejectsV4(t *testing.T) {
	r := newRowReader()
	if err := r.Open(writeV4File(t)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("row reader on 4.x file: error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestBlockReaderRejectsV3(t *testing.T) {
	r := newBlockReader()
	if err := r.Open(writeV3File(t)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("block reader on 3.x file: error = %v, want ErrUnsupportedFormat", err)
	}
}
