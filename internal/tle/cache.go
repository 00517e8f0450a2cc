package tle

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cache keeps the encoded TLE text of recent constellations on disk so the
// service can restore the last one after a restart.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache that stores files in dir and keeps at most maxFiles.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// Save writes the constellation's TLE text under its generation time and
// prunes old files beyond maxFiles.
func (c *Cache) Save(con *Constellation) error {
	if con == nil || len(con.Satellites) == 0 {
		return fmt.Errorf("refusing to cache an empty constellation")
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}

	name := fmt.Sprintf("constellation_%d.tle", con.GeneratedAt.UnixMilli())
	if err := os.WriteFile(filepath.Join(c.dir, name), Format(con.Satellites), 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return c.prune()
}

// Restore loads the newest cached constellation. Plane membership is
// rebuilt from the distinct RAAN values of the decoded entries.
func (c *Cache) Restore(logger *slog.Logger) (*Constellation, error) {
	files, err := c.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no cache files found")
	}

	// Files are sorted oldest first; take the last one.
	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	entries, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("cache file %s holds no usable entries", latest.name)
	}

	return &Constellation{
		Source:      "cache",
		GeneratedAt: latest.ts,
		NumPlanes:   assignPlanes(entries),
		Satellites:  entries,
	}, nil
}

// assignPlanes sets Plane on each entry by ranking its RAAN and returns the
// number of planes found.
func assignPlanes(entries []TLEEntry) int {
	raans := make([]float64, len(entries))
	distinct := map[float64]bool{}
	for i, e := range entries {
		el, err := Decode(e.Line1, e.Line2)
		if err != nil {
			raans[i] = -1
			continue
		}
		raans[i] = el.RAANDeg
		distinct[el.RAANDeg] = true
	}

	sorted := make([]float64, 0, len(distinct))
	for r := range distinct {
		sorted = append(sorted, r)
	}
	sort.Float64s(sorted)

	for i := range entries {
		entries[i].Plane = sort.SearchFloat64s(sorted, raans[i])
	}
	return len(sorted)
}

type cacheFile struct {
	name string
	ts   time.Time
}

func (c *Cache) listFiles() ([]cacheFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cacheFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "constellation_") || !strings.HasSuffix(name, ".tle") {
			continue
		}
		ms, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, "constellation_"), ".tle"), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.UnixMilli(ms).UTC()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= c.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-c.maxFiles] {
		if err := os.Remove(filepath.Join(c.dir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}
	return nil
}
