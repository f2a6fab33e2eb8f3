// Command verify audits a ytnotes data directory: it cross-checks the
// manifest against the transcript and enriched files on disk and reports
// missing outputs and orphaned files.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

type manifest struct {
	PlaylistTitle string  `json:"playlist_title"`
	Videos        []video `json:"videos"`
}

type video struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func main() {
	dataDir := "data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}

	m, err := loadManifest(filepath.Join(dataDir, "manifest.json"))
	if err != nil {
		log.Fatalf("reading manifest: %v", err)
	}
	fmt.Printf("Playlist: %s (%d videos)\n\n", m.PlaylistTitle, len(m.Videos))

	transcripts := listJSON(filepath.Join(dataDir, "transcripts"))
	enriched := listJSON(filepath.Join(dataDir, "enriched"))

	known := make(map[string]bool, len(m.Videos))
	var missingTranscript, missingEnriched int
	for _, v := range m.Videos {
		if v.ID == "" {
			continue
		}
		known[v.ID] = true
		if !transcripts[v.ID] {
			missingTranscript++
			if v.Status == "ok" {
				fmt.Printf("MISSING transcript for ok video %s (%s)\n", v.ID, v.Title)
			}
		} else if !enriched[v.ID] {
			missingEnriched++
		}
	}
	for id := range transcripts {
		if !known[id] {
			fmt.Printf("ORPHAN transcript %s.json (not in manifest)\n", id)
		}
	}
	for id := range enriched {
		if !known[id] {
			fmt.Printf("ORPHAN enriched %s.json (not in manifest)\n", id)
		}
	}

	fmt.Printf("\ntranscripts: %d on disk, %d missing\n", len(transcripts), missingTranscript)
	fmt.Printf("enriched:    %d on disk, %d awaiting enrichment\n", len(enriched), missingEnriched)
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// listJSON returns the set of video IDs that have a .json file in dir.
func listJSON(dir string) map[string]bool {
	found := make(map[string]bool)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return found
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		found[strings.TrimSuffix(e.Name(), ".json")] = true
	}
	return found
}
