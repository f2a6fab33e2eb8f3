package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// runEnrichment sends each transcript through the configured LLM provider and
// writes the parsed study notes next to the transcripts under data/enriched/.
func (p *Pipeline) runEnrichment(manifest *Manifest, resume bool) error {
	provider, err := p.selectProvider(p.settings)
	if err != nil {
		return err
	}
	promptTemplate := p.settings.EnrichmentPrompt()
	if _, err := buildEnrichmentPrompt(promptTemplate, "check", "check"); err != nil {
		return err
	}
	if err := os.MkdirAll(p.settings.EnrichedDir(), 0o755); err != nil {
		return err
	}

	delay := provider.DefaultDelay()
	if p.settings.Enrichment.DelaySeconds > 0 {
		delay = time.Duration(p.settings.Enrichment.DelaySeconds * float64(time.Second))
	}
	p.logger.Info("enriching transcripts", "provider", provider.Name(), "model", provider.Model(), "delay", delay)

	policy := NewRateLimitPolicy(p.logger)
	if p.sleep != nil {
		policy.Sleep = p.sleep
	}

	eligible := func(item *WorkItem) bool {
		if item.ID == "" || !fileExists(p.settings.TranscriptPath(item.ID)) {
			return false
		}
		return !(resume && fileExists(p.settings.EnrichedPath(item.ID)))
	}
	process := func(item *WorkItem) error {
		doc, err := readTranscriptDocument(p.settings.TranscriptPath(item.ID))
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		transcript := strings.TrimSpace(doc.Transcript)
		if transcript == "" {
			return errors.New("empty_transcript")
		}
		transcript = truncateTranscript(transcript, provider.Model())
		prompt, err := buildEnrichmentPrompt(promptTemplate, doc.Title, transcript)
		if err != nil {
			return err
		}

		var text string
		err = policy.Do("enrich "+item.ID, func() error {
			out, err := provider.Complete(prompt)
			if err != nil {
				return err
			}
			text = out
			return nil
		})
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("empty model response")
		}

		sections := parseSections(text)
		enriched := EnrichedDocument{
			TranscriptDocument: doc,
			Sections:           sectionsToMap(sections),
			Notes:              joinSections(sections),
		}
		if err := writeJSONFile(p.settings.EnrichedPath(item.ID), enriched); err != nil {
			return fmt.Errorf("writing enriched document: %w", err)
		}
		return nil
	}

	runner := &StageRunner{
		Name:     StageEnrichment,
		Delay:    delay,
		Logger:   p.logger,
		Observer: p.observer("enrichment", CountEligible(manifest.Videos, eligible)),
		Sleep:    p.sleep,
	}
	runner.Run(manifest.Videos, eligible, process)

	if err := SaveManifest(p.settings.ManifestPath(), manifest); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	ok, failed := manifest.CountByStatus()
	p.logger.Info("enrichment done", "ok", ok, "failed", failed)
	return nil
}

func readEnrichedDocument(path string) (EnrichedDocument, error) {
	var doc EnrichedDocument
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}
