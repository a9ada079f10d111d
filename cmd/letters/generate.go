package main

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/1F47E/geo-letters/pkg/models"
)

// region is a rectangle random letters are drawn from.
type region struct {
	minLat, maxLat float64
	minLon, maxLon float64
}

// worldRegions concentrates points around populated areas.
var worldRegions = []region{
	{30, 60, -120, -60},  // North America
	{40, 60, -10, 30},    // Europe
	{20, 60, 60, 140},    // Asia
	{-50, -10, -80, -50}, // South America
	{-90, 90, -180, 180},
}

// around returns a region of roughly spreadKm around a center.
func around(lat, lng, spreadKm float64) region {
	dLat := spreadKm / 111.0
	dLon := dLat / math.Max(math.Cos(lat*math.Pi/180), 0.01)
	return region{
		minLat: math.Max(lat-dLat, -90), maxLat: math.Min(lat+dLat, 90),
		minLon: math.Max(lng-dLon, -180), maxLon: math.Min(lng+dLon, 180),
	}
}

func (r region) random(rnd *rand.Rand) (lng, lat float64) {
	lat = r.minLat + rnd.Float64()*(r.maxLat-r.minLat)
	lng = r.minLon + rnd.Float64()*(r.maxLon-r.minLon)
	return lng, lat
}

var sampleContent = []string{
	"Meet me here at sunset",
	"Best coffee in town is around the corner",
	"I left a note under the bench",
	"Happy birthday!",
	"This view is worth the climb",
	"Remember the first time we came here?",
}

// generateLetters builds n letters in parallel. Each worker owns a range of
// the output slice and its own random source.
func generateLetters(n, workers int, seed int64, regions []region, privateRatio float64) []*models.Letter {
	if workers < 1 {
		workers = 1
	}
	letters := make([]*models.Letter, n)
	base := time.Now().UTC()

	type workRange struct {
		start, end int
	}
	work := make(chan workRange, workers)
	done := make(chan bool, workers)

	for w := 0; w < workers; w++ {
		go func(workerID int) {
			r := rand.New(rand.NewSource(seed + int64(workerID)))

			for wr := range work {
				for i := wr.start; i < wr.end; i++ {
					lng, lat := regions[r.Intn(len(regions))].random(r)
					visibility := models.VisibilityPublic
					if r.Float64() < privateRatio {
						visibility = models.VisibilityPrivate
					}
					letters[i] = &models.Letter{
						Content:    fmt.Sprintf("%s #%d", sampleContent[r.Intn(len(sampleContent))], i),
						Media:      []models.MediaAttachment{},
						Location:   models.GeoPoint{Type: models.GeoPointType, Coordinates: [2]float64{lng, lat}},
						Visibility: visibility,
						CreatedAt:  base.Add(-time.Duration(r.Intn(30*24*3600)) * time.Second),
					}
				}
			}
			done <- true
		}(w)
	}

	perWorker := n / workers
	remainder := n % workers
	start := 0
	for w := 0; w < workers; w++ {
		size := perWorker
		if w < remainder {
			size++
		}
		work <- workRange{start: start, end: start + size}
		start += size
	}
	close(work)

	for w := 0; w < workers; w++ {
		<-done
	}

	return letters
}
