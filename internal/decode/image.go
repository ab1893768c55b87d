package decode

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/robotlogs/mdflog/internal/mdf"
	"github.com/robotlogs/mdflog/internal/record"
)

// ImageDecoder turns byte-payload channels into image records. The payload
// is stored as-is; width, height and format come from probing it against
// the registered image codecs.
type ImageDecoder struct{}

func NewImageDecoder() *ImageDecoder { return &ImageDecoder{} }

// Decode probes the raw payload against the registered image codecs. On
// success the record carries the decoded frame; a payload no codec
// recognizes yields only the primary record, with the probe error noted
// in the metadata.
func (d *ImageDecoder) Decode(ch Channel) ([]record.Record, error) {
	payload := imagePayload(ch.Samples)
	if len(payload) == 0 {
		return nil, fmt.Errorf("channel %s: empty image payload", ch.Name)
	}

	meta := &ImageMetadata{
		Channel: ch.Name,
		Bytes:   len(payload),
	}

	rec := record.Record{
		Timestamp:         ch.At(0),
		Severity:          record.SeverityInfo,
		Message:           fmt.Sprintf("Image from %s (%d bytes)", ch.Name, len(payload)),
		Source:            ch.Source,
		Kind:              record.KindImage,
		Metadata:          meta,
		ChannelGroupIndex: ch.GroupIndex,
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		meta.Error = err.Error()
		return []record.Record{rec}, nil
	}

	meta.Width, meta.Height, meta.Format = config.Width, config.Height, format
	rec.Message = fmt.Sprintf("Image from %s: %s %dx%d", ch.Name, format, config.Width, config.Height)
	rec.Image = &record.Image{
		Timestamp:   rec.Timestamp,
		Width:       config.Width,
		Height:      config.Height,
		Format:      format,
		Payload:     payload,
		Description: ch.Description,
	}
	return []record.Record{rec}, nil
}

// imagePayload flattens the channel samples into one byte slice.
func imagePayload(samples *mdf.Samples) []byte {
	switch {
	case len(samples.Raw) > 0:
		return samples.Raw
	case samples.Kind == mdf.KindByteRows:
		var size int
		for _, row := range samples.Rows {
			size += len(row)
		}
		payload := make([]byte, 0, size)
		for _, row := range samples.Rows {
			payload = append(payload, row...)
		}
		return payload
	case samples.IsNumeric():
		payload := make([]byte, len(samples.Floats))
		for i, v := range samples.Floats {
			payload[i] = byte(int64(v) & 0xFF)
		}
		return payload
	default:
		return nil
	}
}
