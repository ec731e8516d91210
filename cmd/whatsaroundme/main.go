// Package main provides a debugging CLI that lists the catalogue POIs around the
// walker's current position and shows which of them are inside the narration radius.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"tourguide/pkg/config"
	"tourguide/pkg/db"
	"tourguide/pkg/geo"
	"tourguide/pkg/model"
	"tourguide/pkg/proximity"
	"tourguide/pkg/store"
	"tourguide/pkg/tour"
)

type poiDebug struct {
	POI      *model.POI
	Distance float64
	InRange  bool // eligible: has audio and lies inside the narration radius
	Selected bool // the POI the engine would play here
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfgPath := flag.String("config", "configs/tourguide.yaml", "Path to config file")
	lat := flag.Float64("lat", 0, "Latitude; with -lon skips asking the running server")
	lon := flag.Float64("lon", 0, "Longitude")
	showAll := flag.Bool("all", false, "Show all POIs, not just first 50")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pos := geo.Point{Lat: *lat, Lon: *lon}
	if *lat == 0 && *lon == 0 {
		pos, err = fetchLocation(cfg.Server.Address)
		if err != nil {
			return fmt.Errorf("failed to fetch location: %w\nIs tourguide running?", err)
		}
	}

	fmt.Printf("Position: %.5f, %.5f\n", pos.Lat, pos.Lon)
	fmt.Printf("Catalogue radius: %.0f m, narration radius: %.0f m\n\n", cfg.Tour.Radius.Meters(), cfg.Engine.Threshold.Meters())

	database, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	catalog := tour.NewCatalog(store.NewSQLiteStore(database), cfg.Tour.Radius.Meters())
	pois, err := catalog.Refresh(context.Background(), pos)
	if err != nil {
		return fmt.Errorf("failed to query catalogue: %w", err)
	}
	if len(pois) == 0 {
		fmt.Println("WARN: No POIs within the catalogue radius.")
		fmt.Println("      Import a tour with tourimport first.")
		return nil
	}

	printResults(analyze(pos, pois, cfg.Engine.Threshold.Meters()), *showAll)
	return nil
}

// analyze sorts pois by distance and marks those the engine would narrate.
func analyze(pos geo.Point, pois []*model.POI, threshold float64) []poiDebug {
	out := make([]poiDebug, 0, len(pois))
	for _, p := range pois {
		d := geo.Distance(pos, p.Point())
		out = append(out, poiDebug{
			POI:      p,
			Distance: d,
			InRange:  p.HasAudio() && d != geo.Invalid && d <= threshold,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})

	selected := proximity.Resolve(pos, pois, threshold).NearestID()
	for i := range out {
		out[i].Selected = selected != "" && out[i].POI.ID == selected
	}
	return out
}

func printResults(results []poiDebug, showAll bool) {
	displayCount := len(results)
	if !showAll && displayCount > 50 {
		displayCount = 50
	}

	fmt.Printf("Found %d POIs (showing %d)\n\n", len(results), displayCount)
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("%-3s %-20s %-32s %9s  %s\n", "", "ID", "Name", "Dist", "Audio")
	fmt.Println(strings.Repeat("-", 80))

	for _, r := range results[:displayCount] {
		mark := ""
		switch {
		case r.Selected:
			mark = ">>"
		case r.InRange:
			mark = ">"
		}
		audio := "no"
		if r.POI.HasAudio() {
			audio = "yes"
		}
		fmt.Printf("%-3s %-20s %-32s %8.0fm  %s\n", mark, truncate(r.POI.ID, 20), truncate(r.POI.DisplayName(), 32), r.Distance, audio)
	}

	if len(results) > displayCount {
		fmt.Printf("\n... and %d more. Use -all to see all.\n", len(results)-displayCount)
	}
}

func fetchLocation(addr string) (geo.Point, error) {
	url := fmt.Sprintf("http://%s/api/location", addr)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return geo.Point{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var s model.LocationSample
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return geo.Point{}, err
	}
	return s.Point, nil
}

func truncate(s string, l int) string {
	if len(s) <= l {
		return s
	}
	if l <= 3 {
		return s[:l]
	}
	return s[:l-3] + "..."
}
