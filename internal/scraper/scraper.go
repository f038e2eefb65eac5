// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package scraper fetches a Wikipedia article for a species and turns it
// into a model.SpeciesRecord ready for the Chunker. Grounded on
// original_source/backend/wikipedia_scraper/wikipedia_scraper.py
// (search-then-validate-then-extract shape, section allowlist, character
// caps) and on niski84-the-hive/internal/parser/html.go for the
// goquery usage idiom (the teacher's only goquery call site).
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/BitManipulators/wildlife-chat/internal/logger"
	"github.com/BitManipulators/wildlife-chat/internal/model"
)

const (
	defaultMaxContentChars = 15000
	defaultMaxSectionChars = 2000
	validationCheckChars   = 500
)

// sectionAllowlist mirrors the Python scraper's key_sections list.
var sectionAllowlist = []string{
	"Description", "Habitat", "Distribution", "Ecology",
	"Uses", "Cultivation", "Taxonomy", "Etymology",
}

// taxonomicTerms are used to reject a same-named but unrelated Wikipedia
// article (e.g. a person or place sharing a species' common name).
var taxonomicTerms = []string{
	"species", "plant", "animal", "flower", "tree", "shrub", "herb",
	"bird", "mammal", "reptile", "amphibian", "insect", "fish",
	"family", "genus", "botanical", "zoological", "flora", "fauna",
	"leaf", "stem", "wing", "feather", "habitat", "distribution",
}

// Scraper fetches species articles from Wikipedia over HTTP.
type Scraper struct {
	httpClient      *http.Client
	userAgent       string
	language        string
	maxContentChars int
	maxSectionChars int
}

// Config configures a Scraper. Zero values fall back to the scraper's
// defaults.
type Config struct {
	UserAgent       string
	Language        string
	MaxContentChars int
	MaxSectionChars int
	Timeout         time.Duration
}

// New builds a Scraper from cfg.
func New(cfg Config) *Scraper {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wildlife-chat-scraper/1.0"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = defaultMaxContentChars
	}
	if cfg.MaxSectionChars <= 0 {
		cfg.MaxSectionChars = defaultMaxSectionChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Scraper{
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		userAgent:       cfg.UserAgent,
		language:        cfg.Language,
		maxContentChars: cfg.MaxContentChars,
		maxSectionChars: cfg.MaxSectionChars,
	}
}

// summaryResponse is the shape of Wikipedia's REST summary endpoint,
// used only to validate a candidate title resolves to a real article
// before paying for a full page fetch.
type summaryResponse struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Type    string `json:"type"`
}

// Fetch finds and extracts the best-matching Wikipedia article for a
// species, returning a SpeciesRecord with Error set when no suitable
// article is found or the fetch fails. It never returns a non-nil error
// itself — per spec.md §4.4, per-record failure is carried in the Error
// field so the Ingestion Pipeline can skip it without aborting a batch.
func (s *Scraper) Fetch(ctx context.Context, scientificName, commonName, kingdom string) model.SpeciesRecord {
	record := model.SpeciesRecord{ScientificName: scientificName, CommonName: commonName}

	title, err := s.findArticle(ctx, scientificName, commonName, kingdom)
	if err != nil {
		record.Error = err.Error()
		return record
	}

	content, err := s.extractContent(ctx, title)
	if err != nil {
		record.Error = err.Error()
		return record
	}

	record.WikipediaURL = content.url
	record.Summary = content.summary
	record.Content = content.body
	return record
}

// findArticle tries each candidate title in turn, accepting the first
// whose summary contains a taxonomic term.
func (s *Scraper) findArticle(ctx context.Context, scientificName, commonName, kingdom string) (string, error) {
	for _, title := range candidateTitles(scientificName, commonName, kingdom) {
		summary, err := s.fetchSummary(ctx, title)
		if err != nil {
			continue
		}
		checkLen := validationCheckChars
		if len(summary.Extract) < checkLen {
			checkLen = len(summary.Extract)
		}
		if looksTaxonomic(strings.ToLower(summary.Extract[:checkLen])) {
			return summary.Title, nil
		}
	}
	return "", fmt.Errorf("no suitable wikipedia article found for %q", scientificName)
}

func candidateTitles(scientificName, commonName, kingdom string) []string {
	titles := []string{scientificName, scientificName + " (species)"}
	switch strings.ToLower(kingdom) {
	case "plantae":
		titles = append(titles, scientificName+" plant")
	case "animalia":
		titles = append(titles, scientificName+" animal")
	}
	if commonName != "" {
		titles = append(titles, commonName, commonName+" "+scientificName)
	}
	return titles
}

func looksTaxonomic(lowerExtract string) bool {
	for _, term := range taxonomicTerms {
		if strings.Contains(lowerExtract, term) {
			return true
		}
	}
	return false
}

func (s *Scraper) fetchSummary(ctx context.Context, title string) (*summaryResponse, error) {
	endpoint := fmt.Sprintf("https://%s.wikipedia.org/api/rest_v1/page/summary/%s", s.language, url.PathEscape(title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch summary for %q: %w", title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summary for %q returned status %d", title, resp.StatusCode)
	}

	var out summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode summary for %q: %w", title, err)
	}
	return &out, nil
}

type extractedContent struct {
	url     string
	summary string
	body    string
}

// extractContent fetches the rendered article page and parses it with
// goquery, pulling the lead paragraphs plus the sections named in
// sectionAllowlist, each truncated the way the Python scraper truncates
// max_content_chars / max_section_chars.
func (s *Scraper) extractContent(ctx context.Context, title string) (*extractedContent, error) {
	pageURL := fmt.Sprintf("https://%s.wikipedia.org/wiki/%s", s.language, url.PathEscape(strings.ReplaceAll(title, " ", "_")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch article %q: %w", title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article %q returned status %d", title, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse article %q: %w", title, err)
	}
	return s.parseArticle(doc, pageURL), nil
}

// parseArticle extracts the lead paragraphs and allowed sections from an
// already-parsed article document. Split out from extractContent so tests
// can exercise the goquery logic against fixture HTML without a live
// Wikipedia fetch.
func (s *Scraper) parseArticle(doc *goquery.Document, pageURL string) *extractedContent {
	doc.Find("script, style, .mw-editsection, table.infobox, sup.reference").Remove()

	content := doc.Find("#mw-content-text .mw-parser-output")

	var lead strings.Builder
	content.Children().EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if goquery.NodeName(sel) == "h2" {
			return false
		}
		if goquery.NodeName(sel) == "p" {
			lead.WriteString(sel.Text())
			lead.WriteString("\n")
		}
		return true
	})

	body := truncate(lead.String(), s.maxContentChars)
	sections := s.extractSections(content)
	if sections != "" {
		body += "\n\n" + sections
	}

	summary := truncate(lead.String(), validationCheckChars*4)

	return &extractedContent{url: pageURL, summary: strings.TrimSpace(summary), body: strings.TrimSpace(body)}
}

// extractSections walks each h2 heading, keeping ones whose headline text
// matches sectionAllowlist, and concatenates the paragraphs that follow it
// up to the next h2.
func (s *Scraper) extractSections(content *goquery.Selection) string {
	var out strings.Builder

	content.Find("h2").Each(func(i int, heading *goquery.Selection) {
		name := strings.TrimSpace(heading.Find(".mw-headline").Text())
		if name == "" {
			name = strings.TrimSpace(heading.Text())
		}
		if !allowed(name) {
			return
		}

		var section strings.Builder
		for sib := heading.Next(); sib.Length() > 0 && goquery.NodeName(sib) != "h2"; sib = sib.Next() {
			if goquery.NodeName(sib) == "p" {
				section.WriteString(sib.Text())
				section.WriteString("\n")
			}
		}
		if section.Len() == 0 {
			return
		}
		out.WriteString("## ")
		out.WriteString(name)
		out.WriteString("\n")
		out.WriteString(truncate(section.String(), s.maxSectionChars))
		out.WriteString("\n\n")
	})

	return strings.TrimSpace(out.String())
}

func allowed(name string) bool {
	for _, s := range sectionAllowlist {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Query identifies one species to scrape, the Go equivalent of a single
// entry in the Python scraper's iNaturalist categories list.
type Query struct {
	ScientificName string
	CommonName     string
	Kingdom        string
}

// FetchAll runs Fetch for each query sequentially, logging progress the
// way the Python scraper's batch mode does. Concurrency across records is
// the Ingestion Pipeline's job (C4), not the scraper's.
func (s *Scraper) FetchAll(ctx context.Context, queries []Query) []model.SpeciesRecord {
	out := make([]model.SpeciesRecord, 0, len(queries))
	for i, q := range queries {
		logger.Printf("scraper: fetching %d/%d: %s", i+1, len(queries), q.ScientificName)
		out = append(out, s.Fetch(ctx, q.ScientificName, q.CommonName, q.Kingdom))
	}
	return out
}
