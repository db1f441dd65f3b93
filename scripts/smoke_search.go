//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/adapters"
)

// RunSmokeSearch drives a real headless browser through one inspiration
// search and writes the screenshots to outDir.
func RunSmokeSearch(query, outDir string) {
	fmt.Println("Smoke test: headless search")
	searcher := adapters.NewRodSearcher(adapters.RodSearchConfig{
		URLTemplate:    fitcheck.DefaultSearchURL,
		Bin:            os.Getenv("CHROME_BIN"),
		Headless:       true,
		Timeout:        90 * time.Second,
		Screenshots:    3,
		ScrollPixels:   700,
		SettleDelay:    2 * time.Second,
		Zoom:           0.75,
		Retries:        2,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	}, zerolog.New(os.Stderr))
	defer searcher.Close()

	fmt.Println("URL:", searcher.SearchURL(query))
	artifacts, err := searcher.Search(context.Background(), query)
	must(err, "search")

	must(os.MkdirAll(outDir, 0o755), "output dir")
	for _, a := range artifacts {
		path := filepath.Join(outDir, a.Name)
		must(os.WriteFile(path, a.Data, 0o644), "write screenshot")
		fmt.Printf("OK: %s (%d bytes, %s)\n", path, len(a.Data), a.MIMEType)
	}
	if len(artifacts) == 0 {
		log.Fatalf("search returned no screenshots")
	}
}
