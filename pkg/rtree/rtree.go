// Package rtree implements a partitioned R-Tree over letters for geo-spatial
// lookups, using goroutines to search partitions in parallel.
//
// Each letter is indexed as a tiny rectangle around its (lat, lon) point.
// Radius queries turn the circle into one or two bounding boxes, intersect
// them against every partition the boxes touch, and refine the candidates
// with the exact haversine distance.
package rtree

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/1F47E/geo-letters/pkg/geo"
	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/dhconnelly/rtreego"
)

const (
	tolerance   = 1e-7
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// ErrMissingID is returned when a letter without an ID is indexed.
var ErrMissingID = errors.New("rtree: letter has no id")

// Filter decides whether a letter is eligible for a query. It runs inside the
// tree search, before any distance math or limit.
type Filter func(*models.Letter) bool

// Hit is a query result with its distance from the query center.
type Hit struct {
	Letter         *models.Letter
	DistanceMeters float64
}

// spatialLetter wraps a letter to implement the rtreego.Spatial interface
type spatialLetter struct {
	letter    *models.Letter
	rect      rtreego.Rect
	partition int
}

func (sl *spatialLetter) Bounds() rtreego.Rect {
	return sl.rect
}

// GeoIndex represents a thread-safe R-Tree based geographic index
type GeoIndex struct {
	// Partitioned trees for parallel query execution
	partitions    []*rtreego.Rtree
	numPartitions int
	mu            sync.RWMutex
	items         map[string]*spatialLetter
	itemCount     atomic.Int64

	// Partition bounds for efficient query routing
	partitionBounds []models.BoundingBox
}

// NewGeoIndex creates a new geographic index with CPU-aware partitioning
func NewGeoIndex() *GeoIndex {
	return NewGeoIndexWithPartitions(runtime.NumCPU())
}

// NewGeoIndexWithPartitions creates a new geographic index with the given
// number of longitude bands.
func NewGeoIndexWithPartitions(numPartitions int) *GeoIndex {
	if numPartitions <= 0 {
		numPartitions = runtime.NumCPU()
	}

	g := &GeoIndex{
		partitions:      make([]*rtreego.Rtree, numPartitions),
		numPartitions:   numPartitions,
		items:           make(map[string]*spatialLetter),
		partitionBounds: make([]models.BoundingBox, numPartitions),
	}

	lonRange := 360.0 / float64(numPartitions)
	for i := 0; i < numPartitions; i++ {
		g.partitions[i] = rtreego.NewTree(dimensions, minChildren, maxChildren)

		minLon := -180.0 + float64(i)*lonRange
		maxLon := minLon + lonRange
		if i == numPartitions-1 {
			maxLon = 180.0 // last band absorbs rounding
		}

		g.partitionBounds[i] = models.BoundingBox{
			BottomLeft: models.Location{Lat: -90, Lon: minLon},
			TopRight:   models.Location{Lat: 90, Lon: maxLon},
		}
	}

	return g
}

func (g *GeoIndex) partitionFor(lon float64) int {
	lonRange := 360.0 / float64(g.numPartitions)
	idx := int((lon + 180.0) / lonRange)
	if idx >= g.numPartitions {
		idx = g.numPartitions - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func (g *GeoIndex) wrap(letter *models.Letter) (*spatialLetter, error) {
	if letter.ID == "" {
		return nil, ErrMissingID
	}
	if err := letter.Location.Validate(); err != nil {
		return nil, err
	}
	loc := letter.Location.Location()
	p := rtreego.Point{loc.Lat, loc.Lon}
	return &spatialLetter{
		letter:    letter,
		rect:      p.ToRect(tolerance),
		partition: g.partitionFor(loc.Lon),
	}, nil
}

// Insert adds a single letter, replacing any letter already indexed under the same ID.
func (g *GeoIndex) Insert(letter *models.Letter) error {
	item, err := g.wrap(letter)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeLocked(letter.ID)
	g.partitions[item.partition].Insert(item)
	g.items[letter.ID] = item
	g.itemCount.Add(1)
	return nil
}

// IndexLetters indexes multiple letters using spatial partitioning
func (g *GeoIndex) IndexLetters(letters []*models.Letter) error {
	if len(letters) == 0 {
		return nil
	}

	// Last letter wins when a batch repeats an ID
	latest := make(map[string]*spatialLetter, len(letters))
	order := make([]string, 0, len(letters))
	for _, letter := range letters {
		if letter == nil {
			continue
		}
		item, err := g.wrap(letter)
		if err != nil {
			return fmt.Errorf("index letter %q: %w", letter.ID, err)
		}
		if _, dup := latest[letter.ID]; !dup {
			order = append(order, letter.ID)
		}
		latest[letter.ID] = item
	}

	// Group letters by partition
	partitioned := make([][]*spatialLetter, g.numPartitions)
	for _, id := range order {
		item := latest[id]
		partitioned[item.partition] = append(partitioned[item.partition], item)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, items := range partitioned {
		for _, item := range items {
			g.removeLocked(item.letter.ID)
		}
	}

	// Insert into partitions in parallel
	var wg sync.WaitGroup
	var totalInserted atomic.Int64

	for i := 0; i < g.numPartitions; i++ {
		if len(partitioned[i]) == 0 {
			continue
		}

		wg.Add(1)
		go func(partitionIdx int, items []*spatialLetter) {
			defer wg.Done()

			// Each partition can be updated independently
			for _, item := range items {
				g.partitions[partitionIdx].Insert(item)
			}
			totalInserted.Add(int64(len(items)))
		}(i, partitioned[i])
	}

	wg.Wait()

	for _, items := range partitioned {
		for _, item := range items {
			g.items[item.letter.ID] = item
		}
	}
	g.itemCount.Add(totalInserted.Load())
	return nil
}

// Get returns the letter indexed under id.
func (g *GeoIndex) Get(id string) (*models.Letter, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	item, ok := g.items[id]
	if !ok {
		return nil, false
	}
	return item.letter, true
}

// Remove deletes the letter indexed under id and returns it.
func (g *GeoIndex) Remove(id string) (*models.Letter, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.removeLocked(id)
}

func (g *GeoIndex) removeLocked(id string) (*models.Letter, bool) {
	item, ok := g.items[id]
	if !ok {
		return nil, false
	}
	g.partitions[item.partition].Delete(item)
	delete(g.items, id)
	g.itemCount.Add(-1)
	return item.letter, true
}

// QueryBox returns all letters within the given bounding box using parallel search
func (g *GeoIndex) QueryBox(box models.BoundingBox) ([]*models.Letter, error) {
	bounds, err := toRect(box)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	hits := g.searchLocked([]models.BoundingBox{box}, []rtreego.Rect{bounds}, nil)
	letters := make([]*models.Letter, 0, len(hits))
	for _, item := range hits {
		letters = append(letters, item.letter)
	}
	return letters, nil
}

// QueryRadius returns every letter accepted by filter whose haversine distance
// from center is at most radiusMeters, nearest first. Letters at the same
// distance are ordered newest first.
func (g *GeoIndex) QueryRadius(center models.Location, radiusMeters float64, filter Filter) ([]Hit, error) {
	if radiusMeters < 0 {
		return nil, fmt.Errorf("invalid radius search: negative radius %f", radiusMeters)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.radiusLocked(center, radiusMeters, filter)
}

// radiusLocked runs an exact radius search. Callers must hold at least a read lock.
func (g *GeoIndex) radiusLocked(center models.Location, radiusMeters float64, filter Filter) ([]Hit, error) {
	boxes := geo.RadiusBounds(center, radiusMeters)
	rects := make([]rtreego.Rect, len(boxes))
	for i, box := range boxes {
		rect, err := toRect(box)
		if err != nil {
			return nil, fmt.Errorf("invalid radius search: %w", err)
		}
		rects[i] = rect
	}

	candidates := g.searchLocked(boxes, rects, filter)

	// Filter by actual distance
	hits := make([]Hit, 0, len(candidates))
	for _, item := range candidates {
		dist := geo.DistanceBetween(center, item.letter.Location.Location())
		if dist <= radiusMeters {
			hits = append(hits, Hit{Letter: item.letter, DistanceMeters: dist})
		}
	}

	SortHits(hits)
	return hits, nil
}

// NearestNeighbors returns the n letters closest to center by haversine distance.
func (g *GeoIndex) NearestNeighbors(center models.Location, n int) []Hit {
	if n <= 0 {
		return []Hit{}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	// Search all partitions in parallel
	resultsChan := make(chan []Hit, g.numPartitions)
	queryPoint := rtreego.Point{center.Lat, center.Lon}

	for i := 0; i < g.numPartitions; i++ {
		go func(idx int) {
			// Planar neighbors per partition, so over-fetch before the exact sort
			results := g.partitions[idx].NearestNeighbors(n*2, queryPoint)

			hits := make([]Hit, 0, len(results))
			for _, result := range results {
				item, ok := result.(*spatialLetter)
				if !ok || item == nil {
					continue
				}
				hits = append(hits, Hit{
					Letter:         item.letter,
					DistanceMeters: geo.DistanceBetween(center, item.letter.Location.Location()),
				})
			}
			resultsChan <- hits
		}(i)
	}

	var all []Hit
	for i := 0; i < g.numPartitions; i++ {
		all = append(all, <-resultsChan...)
	}

	SortHits(all)
	if len(all) < n {
		// every partition was drained, nothing else to find
		return all
	}

	// Planar order drifts from haversine order away from the equator. The
	// n-th candidate bounds the answer, so an exact radius search at its
	// distance holds the true n nearest.
	exact, err := g.radiusLocked(center, all[n-1].DistanceMeters, nil)
	if err == nil && len(exact) >= n {
		all = exact
	}
	return all[:n]
}

// searchLocked intersects every rect against the partitions its box touches.
// Callers must hold at least a read lock.
func (g *GeoIndex) searchLocked(boxes []models.BoundingBox, rects []rtreego.Rect, filter Filter) []*spatialLetter {
	var treeFilters []rtreego.Filter
	if filter != nil {
		treeFilters = append(treeFilters, func(_ []rtreego.Spatial, obj rtreego.Spatial) (refuse, abort bool) {
			item, ok := obj.(*spatialLetter)
			return !ok || !filter(item.letter), false
		})
	}

	type job struct {
		partition int
		rect      rtreego.Rect
		box       models.BoundingBox
	}
	var jobs []job
	for i, box := range boxes {
		for _, idx := range g.getRelevantPartitions(box) {
			jobs = append(jobs, job{partition: idx, rect: rects[i], box: box})
		}
	}

	resultsChan := make(chan []*spatialLetter, len(jobs))
	for _, j := range jobs {
		go func(j job) {
			results := g.partitions[j.partition].SearchIntersect(j.rect, treeFilters...)

			// Strict boundary check, the stored rects carry a small tolerance
			items := make([]*spatialLetter, 0, len(results))
			for _, result := range results {
				item, ok := result.(*spatialLetter)
				if !ok || item.letter == nil {
					continue
				}
				if geo.Contains(j.box, item.letter.Location.Location()) {
					items = append(items, item)
				}
			}
			resultsChan <- items
		}(j)
	}

	// Split boxes may both see a letter sitting exactly on the antimeridian
	seen := make(map[string]struct{})
	var merged []*spatialLetter
	for range jobs {
		for _, item := range <-resultsChan {
			if _, dup := seen[item.letter.ID]; dup {
				continue
			}
			seen[item.letter.ID] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}

// All returns every indexed letter.
func (g *GeoIndex) All() []*models.Letter {
	g.mu.RLock()
	defer g.mu.RUnlock()

	letters := make([]*models.Letter, 0, len(g.items))
	for _, item := range g.items {
		letters = append(letters, item.letter)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i].ID < letters[j].ID })
	return letters
}

// Count returns the number of indexed letters
func (g *GeoIndex) Count() int64 {
	return g.itemCount.Load()
}

// Clear removes all letters from the index
func (g *GeoIndex) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < g.numPartitions; i++ {
		g.partitions[i] = rtreego.NewTree(dimensions, minChildren, maxChildren)
	}
	g.items = make(map[string]*spatialLetter)
	g.itemCount.Store(0)
}

// getRelevantPartitions returns the indices of partitions that intersect with the given bounding box
func (g *GeoIndex) getRelevantPartitions(box models.BoundingBox) []int {
	var relevant []int
	for i, bounds := range g.partitionBounds {
		if box.BottomLeft.Lon <= bounds.TopRight.Lon &&
			box.TopRight.Lon >= bounds.BottomLeft.Lon {
			relevant = append(relevant, i)
		}
	}
	return relevant
}

// SortHits orders hits nearest first, newest first among equal distances.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].DistanceMeters != hits[j].DistanceMeters {
			return hits[i].DistanceMeters < hits[j].DistanceMeters
		}
		return hits[i].Letter.CreatedAt.After(hits[j].Letter.CreatedAt)
	})
}

func toRect(box models.BoundingBox) (rtreego.Rect, error) {
	bottomLeft := rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lon}
	size := []float64{
		box.TopRight.Lat - box.BottomLeft.Lat,
		box.TopRight.Lon - box.BottomLeft.Lon,
	}
	// rtreego rejects zero-length sides
	for i := range size {
		if size[i] <= 0 {
			size[i] = tolerance
		}
	}
	return rtreego.NewRect(bottomLeft, size)
}
