package main

import (
	"context"
	"math"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

// TelemetrySink batches points and flushes to InfluxDB every 5 seconds. On
// write failure the batch is re-prepended and the client dropped so the next
// flush reconnects — ported from original_source/src/data_logger.py's
// record/flush/re-buffer shape, translated to a mutex-guarded slice since Go
// has no asyncio.Lock equivalent idiom in this codebase.
type TelemetrySink struct {
	cfg TelemetryConfig
	log *logrus.Logger

	mu     sync.Mutex
	buffer []*write.Point
	client influxdb2.Client
}

// NewTelemetrySink constructs a sink; the InfluxDB client is created lazily
// on first flush.
func NewTelemetrySink(cfg TelemetryConfig, log *logrus.Logger) *TelemetrySink {
	return &TelemetrySink{cfg: cfg, log: log}
}

// Record appends a point to the pending buffer. Never blocks on I/O.
func (s *TelemetrySink) Record(measurement string, fields map[string]any, tags map[string]string) {
	p := influxdb2.NewPoint(measurement, tags, fields, time.Now())
	s.mu.Lock()
	s.buffer = append(s.buffer, p)
	s.mu.Unlock()
}

// Run flushes the buffer on a 5 second cadence until ctx is cancelled, then
// performs one final flush.
func (s *TelemetrySink) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(ctx)
		case <-ctx.Done():
			s.flush(context.Background())
			if s.client != nil {
				s.client.Close()
			}
			return
		}
	}
}

func (s *TelemetrySink) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if s.client == nil {
		s.client = influxdb2.NewClient(s.cfg.URL, s.cfg.Token)
	}

	writeAPI := s.client.WriteAPIBlocking(s.cfg.Org, s.cfg.Bucket)
	if err := writeAPI.WritePoint(ctx, batch...); err != nil {
		s.log.WithError(err).WithField("points", len(batch)).Warn("telemetry: write failed, re-buffering")
		s.client.Close()
		s.client = nil

		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		s.mu.Unlock()
		return
	}

	s.log.WithField("points", len(batch)).Debug("telemetry: flushed")
}

// minMaxBucket holds the min/max observed within a single minute.
type minMaxBucket struct {
	min, max float64
}

// RollingMinMax tracks min/max over a rolling 1-hour window using 60
// 1-minute buckets, adapted from src/governor/rolling_minmax.go for the
// Calibration Monitor's per-inverter observed-over-commanded ratio.
type RollingMinMax struct {
	buckets       [60]minMaxBucket
	currentMinute int
}

// NewRollingMinMax returns a tracker with all buckets at sentinel values.
func NewRollingMinMax() RollingMinMax {
	r := RollingMinMax{currentMinute: -1}
	for i := range r.buckets {
		r.buckets[i] = minMaxBucket{min: math.MaxFloat64, max: -math.MaxFloat64}
	}
	return r
}

// Update records value at the current wall-clock minute.
func (r *RollingMinMax) Update(value float64) {
	r.updateAt(value, time.Now().Minute())
}

func (r *RollingMinMax) updateAt(value float64, minute int) {
	if r.currentMinute >= 0 && minute != r.currentMinute {
		for i := (r.currentMinute + 1) % 60; i != minute; i = (i + 1) % 60 {
			r.buckets[i] = minMaxBucket{min: math.MaxFloat64, max: -math.MaxFloat64}
		}
	}

	if minute != r.currentMinute {
		r.buckets[minute] = minMaxBucket{min: value, max: value}
		r.currentMinute = minute
		return
	}

	b := &r.buckets[minute]
	b.min = math.Min(b.min, value)
	b.max = math.Max(b.max, value)
}

// Min returns the minimum value across all buckets, or 0 if no data.
func (r *RollingMinMax) Min() float64 {
	result := math.MaxFloat64
	for _, b := range r.buckets {
		result = math.Min(result, b.min)
	}
	if result == math.MaxFloat64 {
		return 0
	}
	return result
}

// Max returns the maximum value across all buckets, or 0 if no data.
func (r *RollingMinMax) Max() float64 {
	result := -math.MaxFloat64
	for _, b := range r.buckets {
		result = math.Max(result, b.max)
	}
	if result == -math.MaxFloat64 {
		return 0
	}
	return result
}
