package geocode

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PlaceNamer makes a single bounded lookup and swallows failures. Callers
// only ever see a name or "", and failures are reported through the logger.
type PlaceNamer struct {
	geocoder Geocoder
	timeout  time.Duration
	log      *zap.Logger
}

// NewPlaceNamer wraps g. A nil g always yields "".
func NewPlaceNamer(g Geocoder, timeout time.Duration, logger *zap.Logger) *PlaceNamer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PlaceNamer{
		geocoder: g,
		timeout:  timeout,
		log:      logger.With(zap.String("component", "place-namer")),
	}
}

// PlaceName returns the place name at the point, or "" on any failure.
func (p *PlaceNamer) PlaceName(ctx context.Context, lng, lat float64) string {
	if p == nil || p.geocoder == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		name string
		err  error
	}
	// buffered so the lookup goroutine can finish after a timeout
	done := make(chan outcome, 1)
	go func() {
		name, err := p.geocoder.ReverseGeocode(ctx, lng, lat)
		done <- outcome{name, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			p.log.Warn("reverse geocode failed",
				zap.Float64("lng", lng), zap.Float64("lat", lat), zap.Error(res.err))
			return ""
		}
		return res.name
	case <-ctx.Done():
		p.log.Warn("reverse geocode timed out",
			zap.Float64("lng", lng), zap.Float64("lat", lat), zap.Duration("timeout", p.timeout))
		return ""
	}
}
