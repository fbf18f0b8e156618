package measure

import "time"

// Waveform measurement kinds, matching the oscilloscope capture channels.
const (
	WaveformVoltage = "voltage"
	WaveformCurrent = "current"
	WaveformPower   = "power"
)

// WaveformSample is one (timestamp, channel, kind, value) tuple owned by a
// measurement point. Samples are write-once and deleted only in bulk per
// point; the table is time-partitioned on SampledAt, so the model carries
// no surrogate key. SampleIndex preserves acquisition order within a
// channel because wall-clock timestamps can collide at high sample rates.
type WaveformSample struct {
	SampledAt time.Time `gorm:"column:sampled_at;not null" json:"sampled_at"`
	PointID   int64     `gorm:"column:point_id;not null" json:"point_id"`

	Channel int     `gorm:"column:channel;not null" json:"channel"`
	Kind    string  `gorm:"column:kind;type:varchar(50);not null" json:"kind"`
	Value   float64 `gorm:"column:value;type:double precision;not null" json:"value"`

	SampleIndex int64 `gorm:"column:sample_index;not null" json:"sample_index"`

	SamplingFreqHz *float64 `gorm:"column:sampling_freq_hz;type:double precision" json:"sampling_freq_hz,omitempty"`
	VerticalRes    *float64 `gorm:"column:vertical_res;type:double precision" json:"vertical_res,omitempty"`
}

func (WaveformSample) TableName() string { return "waveform_samples" }
