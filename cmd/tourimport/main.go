// Command tourimport loads a tour (.geojson or .shp) into the POI catalogue,
// or converts it to GeoJSON with -export.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"tourguide/pkg/config"
	"tourguide/pkg/db"
	"tourguide/pkg/model"
	"tourguide/pkg/store"
	"tourguide/pkg/tour"
)

func main() {
	inputPath := flag.String("input", "", "Path to input .geojson or .shp file")
	configPath := flag.String("config", "configs/tourguide.yaml", "Path to the YAML config file")
	exportPath := flag.String("export", "", "Write the tour as GeoJSON to this path instead of importing")
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		log.Fatal("Input path is required")
	}

	_ = godotenv.Load()

	var err error
	if *exportPath != "" {
		err = export(*inputPath, *exportPath)
	} else {
		err = importTour(context.Background(), *configPath, *inputPath)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func importTour(ctx context.Context, configPath, inputPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pois, err := tour.LoadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to load tour: %w", err)
	}

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()

	catalog := tour.NewCatalog(store.NewSQLiteStore(dbConn), cfg.Tour.Radius.Meters())
	if err := catalog.Import(ctx, pois); err != nil {
		return err
	}

	fmt.Printf("Imported %d POIs into %s\n", len(pois), cfg.DB.Path)
	return nil
}

func export(inputPath, outputPath string) error {
	pois, err := tour.LoadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to load tour: %w", err)
	}
	if err := writeGeoJSON(outputPath, pois); err != nil {
		return err
	}
	fmt.Printf("Successfully converted %d POIs to %s\n", len(pois), outputPath)
	return nil
}

func writeGeoJSON(path string, pois []*model.POI) error {
	data, err := json.MarshalIndent(tour.ToGeoJSON(pois), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
