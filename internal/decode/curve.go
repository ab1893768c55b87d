package decode

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/robotlogs/mdflog/internal/mdf"
	"github.com/robotlogs/mdflog/internal/record"
)

// CurveDecoder turns numeric channels into one curve record carrying the
// individual measurement points.
type CurveDecoder struct {
	logger *slog.Logger
}

// CurveOption configures a CurveDecoder.
type CurveOption func(*CurveDecoder)

// WithCurveLogger sets the logger used to report skipped samples.
func WithCurveLogger(logger *slog.Logger) CurveOption {
	return func(d *CurveDecoder) {
		d.logger = logger
	}
}

func NewCurveDecoder(options ...CurveOption) *CurveDecoder {
	d := &CurveDecoder{logger: discardLogger()}
	for _, option := range options {
		option(d)
	}
	return d
}

// Decode produces one record with a measurement point per coercible
// sample. Samples that cannot be read as a finite number are skipped and
// logged, they do not fail the channel.
func (d *CurveDecoder) Decode(ch Channel) ([]record.Record, error) {
	n := ch.Samples.Len()

	measurements := make([]record.CurveSample, 0, n)
	values := make([]float64, 0, n)
	var skipped int

	for i := 0; i < n; i++ {
		v, ok := numericSample(ch.Samples, i)
		if !ok {
			skipped++
			d.logger.Warn("skipping non-numeric curve sample", "channel", ch.Name, "index", i)
			continue
		}
		measurements = append(measurements, record.CurveSample{
			Timestamp:  ch.At(i),
			SensorName: ch.Name,
			Value:      v,
		})
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("channel %s: no numeric samples", ch.Name)
	}

	start, end := 0.0, 0.0
	if len(ch.Timestamps) > 0 {
		start = ch.Timestamps[0]
		end = ch.Timestamps[len(ch.Timestamps)-1]
	}

	rec := record.Record{
		Timestamp: ch.At(0),
		Severity:  record.SeverityInfo,
		Message:   fmt.Sprintf("Curve data from %s: %d points", ch.Name, len(values)),
		Source:    ch.Source,
		Kind:      record.KindCurve,
		Metadata: &CurveMetadata{
			Channel:     ch.Name,
			Unit:        ch.Unit,
			SampleCount: len(values),
			Skipped:     skipped,
			Min:         floats.Min(values),
			Max:         floats.Max(values),
			Mean:        stat.Mean(values, nil),
			Start:       start,
			End:         end,
			Duration:    end - start,
		},
		ChannelGroupIndex: ch.GroupIndex,
		Curve:             measurements,
	}
	return []record.Record{rec}, nil
}

// numericSample coerces the i-th sample to a finite float64.
func numericSample(samples *mdf.Samples, i int) (float64, bool) {
	switch samples.Kind {
	case mdf.KindUint, mdf.KindInt, mdf.KindFloat:
		v := samples.Floats[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case mdf.KindString:
		v, err := strconv.ParseFloat(samples.Strings[i], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}
