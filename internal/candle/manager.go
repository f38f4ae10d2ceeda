package candle

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"shadowtrader/internal/events"
	"shadowtrader/internal/utils"
)

// Manager maintains an ordered, gap-free series of bars for one
// (pair, interval), newest first. Missing boundaries are back-filled with
// flat synthetic candles carrying the previous close and zero volume, so
// the stream never silently stalls even if the venue stops pushing updates.
type Manager struct {
	interval        Interval
	retentionPeriod time.Duration
	mu              sync.RWMutex
	candles         []Candle // descending by timestamp
	updates         *events.Feed[[]Candle]

	generateCandles bool
	cron            *cron.Cron

	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetentionPeriod truncates the series to bars younger than period
// relative to the newest bar.
func WithRetentionPeriod(period time.Duration) Option {
	return func(m *Manager) { m.retentionPeriod = period }
}

// WithClock overrides the wall clock. Tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager for one interval. When generateCandles is
// set, Start will arm the recurrence rule that synthesizes flat bars on
// boundaries with no real data.
func NewManager(interval Interval, generateCandles bool, opts ...Option) *Manager {
	m := &Manager{
		interval:        interval,
		generateCandles: generateCandles,
		updates:         events.NewFeed[[]Candle](),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Updates exposes the candle update feed; every successful Set/Update and
// every generated bar publishes the full series, newest first.
func (m *Manager) Updates() *events.Feed[[]Candle] {
	return m.updates
}

// Interval returns the manager's schedule descriptor.
func (m *Manager) Interval() Interval {
	return m.interval
}

// Candles returns a copy of the series, newest first.
func (m *Manager) Candles() []Candle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyLocked()
}

// Start arms the auto-generation timer. It is a no-op when the manager was
// created without candle generation.
func (m *Manager) Start() error {
	if !m.generateCandles || m.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(m.interval.Spec, m.generateCandle); err != nil {
		return err
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop disarms the auto-generation timer.
func (m *Manager) Stop() {
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}

// Set replaces the series: every missing boundary between the oldest
// incoming candle and now is back-filled with a flat synthetic bar, the
// result is sorted newest first and trimmed to the retention period.
func (m *Manager) Set(candles []Candle) {
	m.mu.Lock()
	m.candles = m.fillCandleGaps(candles)
	m.trimRetention()
	series := m.copyLocked()
	m.mu.Unlock()
	m.updates.Publish(series)
}

// Update merges candles incrementally. An incoming bar not newer than the
// current head overwrites the head slot; anything newer is pushed to the
// front. Venues occasionally rewrite recent history, so an insert that
// breaks descending order triggers a corrective re-sort.
func (m *Manager) Update(candles []Candle) {
	if len(candles) == 0 {
		return
	}
	m.mu.Lock()
	for _, c := range candles {
		c.Timestamp = m.interval.PreviousBoundary(c.Timestamp)
		if len(m.candles) > 0 && !m.candles[0].Timestamp.Before(c.Timestamp) {
			m.candles[0] = c
		} else {
			m.candles = append([]Candle{c}, m.candles...)
		}
		if len(m.candles) > 1 && m.candles[0].Timestamp.Before(m.candles[1].Timestamp) {
			utils.GetLogger().Printf("CandleManager | Out-of-order candle %s received, re-sorting series", c.Timestamp.Format(time.RFC3339))
			sortDescending(m.candles)
		}
	}
	m.trimRetention()
	series := m.copyLocked()
	m.mu.Unlock()
	m.updates.Publish(series)
}

// generateCandle recycles the latest close into a flat bar when a boundary
// passes without a real update.
func (m *Manager) generateCandle() {
	m.mu.RLock()
	if len(m.candles) == 0 {
		m.mu.RUnlock()
		return
	}
	boundary := m.interval.PreviousBoundary(m.now())
	newest := m.candles[0]
	m.mu.RUnlock()
	if !newest.Timestamp.Before(boundary) {
		return
	}
	m.Update([]Candle{flatCandle(newest.Close, boundary)})
}

// fillCandleGaps back-fills every missing boundary between the oldest
// incoming candle and now, carrying the previous close forward. Duplicate
// boundaries keep the last candle seen for that boundary.
func (m *Manager) fillCandleGaps(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}

	byBoundary := make(map[time.Time]Candle, len(candles))
	oldest := m.interval.PreviousBoundary(candles[0].Timestamp)
	for _, c := range candles {
		c.Timestamp = m.interval.PreviousBoundary(c.Timestamp)
		if c.Timestamp.Before(oldest) {
			oldest = c.Timestamp
		}
		byBoundary[c.Timestamp] = c
	}

	last := m.interval.PreviousBoundary(m.now())
	filled := make([]Candle, 0, len(byBoundary))
	prevClose := byBoundary[oldest].Close
	for boundary := oldest; !boundary.After(last); boundary = boundary.Add(m.interval.Duration) {
		c, ok := byBoundary[boundary]
		if !ok {
			c = flatCandle(prevClose, boundary)
		}
		prevClose = c.Close
		filled = append(filled, c)
	}

	sortDescending(filled)
	return filled
}

func (m *Manager) trimRetention() {
	if m.retentionPeriod <= 0 || len(m.candles) == 0 {
		return
	}
	cutoff := m.candles[0].Timestamp.Add(-m.retentionPeriod)
	for i, c := range m.candles {
		if c.Timestamp.Before(cutoff) {
			m.candles = m.candles[:i]
			return
		}
	}
}

func (m *Manager) copyLocked() []Candle {
	out := make([]Candle, len(m.candles))
	copy(out, m.candles)
	return out
}

func flatCandle(close float64, boundary time.Time) Candle {
	return Candle{
		Timestamp: boundary,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    0,
	}
}

func sortDescending(candles []Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.After(candles[j].Timestamp)
	})
}
