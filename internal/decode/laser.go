package decode

import (
	"fmt"
	"math"

	"github.com/robotlogs/mdflog/internal/record"
)

// DefaultSweep is the angular field of view assumed for range arrays. The
// container format does not carry scanner geometry, so a symmetric 180
// degree sweep centered on the sensor axis is used.
const DefaultSweep = math.Pi

// LaserDecoder turns numeric range arrays into a single 2D sweep record.
type LaserDecoder struct{}

func NewLaserDecoder() *LaserDecoder { return &LaserDecoder{} }

// Decode treats the channel's samples as one sweep of range readings,
// evenly spread over the default field of view.
func (d *LaserDecoder) Decode(ch Channel) ([]record.Record, error) {
	n := ch.Samples.Len()
	if n == 0 {
		return nil, fmt.Errorf("channel %s: empty scan", ch.Name)
	}

	ranges := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, ok := numericSample(ch.Samples, i)
		if !ok {
			return nil, fmt.Errorf("channel %s: non-numeric range at index %d", ch.Name, i)
		}
		ranges = append(ranges, v)
	}

	angleMin := -DefaultSweep / 2
	angleMax := DefaultSweep / 2
	increment := (angleMax - angleMin) / float64(n)

	scan := &record.RangeScan{
		Timestamp:      ch.At(0),
		AngleMin:       angleMin,
		AngleMax:       angleMax,
		AngleIncrement: increment,
		Ranges:         ranges,
	}

	minRange, maxRange := ranges[0], ranges[0]
	for _, r := range ranges[1:] {
		if r < minRange {
			minRange = r
		}
		if r > maxRange {
			maxRange = r
		}
	}

	rec := record.Record{
		Timestamp: scan.Timestamp,
		Severity:  record.SeverityInfo,
		Message:   fmt.Sprintf("Laser scan from %s: %d points", ch.Name, n),
		Source:    ch.Source,
		Kind:      record.KindLaser,
		Metadata: &LaserMetadata{
			Channel:     ch.Name,
			SampleCount: n,
			AngleMin:    angleMin,
			AngleMax:    angleMax,
			RangeMin:    minRange,
			RangeMax:    maxRange,
			RangeUnit:   ch.Unit,
		},
		ChannelGroupIndex: ch.GroupIndex,
		Scan:              scan,
	}
	return []record.Record{rec}, nil
}
