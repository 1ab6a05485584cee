// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup merges duplicate paper records gathered from several
// catalogs and sub-queries into one record per real-world paper.
//
// Records are matched first by normalized DOI or by their (source, external
// ID) identity, and otherwise by fuzzy title similarity within a
// (year, title prefix) bucket confirmed by the first author's last name.
// Each cluster collapses into its most complete member, enriched with fields
// the others carry.
package dedup

import (
	"slices"
	"sort"
	"strconv"

	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// Similarity thresholds on the 0..100 Ratio scale.
const (
	TitleMatchThreshold  = 92
	AuthorMatchThreshold = 85
)

// titleKeyRunes is the length of the normalized title prefix used to bucket
// fuzzy-match candidates.
const titleKeyRunes = 50

// Merge reasons recorded in the merge log.
const (
	ReasonDOI      = "doi_match"
	ReasonIdentity = "identity_match"
	ReasonTitle    = "title_match"
)

// Ref identifies a source record.
type Ref struct {
	Source     string `json:"source" yaml:"source"`
	ExternalID string `json:"externalId" yaml:"external_id"`
}

// MergeEntry records one collapsed cluster.
type MergeEntry struct {
	KeptSource string `json:"keptSource" yaml:"kept_source"`
	KeptID     string `json:"keptId" yaml:"kept_id"`
	Merged     []Ref  `json:"merged" yaml:"merged"`
	Reason     string `json:"reason" yaml:"reason"`
}

// Result is the outcome of Deduplicate. UniqueCount + DuplicatesRemoved
// always equals OriginalCount, and every removed record appears in exactly
// one MergeLog entry.
type Result struct {
	Papers            []types.UnifiedPaper
	OriginalCount     int
	UniqueCount       int
	DuplicatesRemoved int
	MergeLog          []MergeEntry
}

// Deduplicate collapses duplicates in papers. Passes repeat until one makes
// no merge, so running Deduplicate on its own output changes nothing.
// Input order is preserved for records that are not merged; a merged record
// takes the position of the first cluster member.
func Deduplicate(papers []types.UnifiedPaper) Result {
	res := Result{OriginalCount: len(papers)}
	current := papers
	for {
		next, log := pass(current)
		res.MergeLog = append(res.MergeLog, log...)
		current = next
		if len(log) == 0 {
			break
		}
	}
	res.Papers = current
	res.UniqueCount = len(current)
	res.DuplicatesRemoved = res.OriginalCount - res.UniqueCount
	return res
}

// FilterExisting drops records whose normalized DOI is in existing (a set of
// normalized DOIs already stored). It returns the survivors and the number
// of records dropped.
func FilterExisting(papers []types.UnifiedPaper, existing map[string]bool) ([]types.UnifiedPaper, int) {
	if len(existing) == 0 {
		return papers, 0
	}
	out := make([]types.UnifiedPaper, 0, len(papers))
	for _, p := range papers {
		if doi := NormalizeDOI(p.DOI); doi != "" && existing[doi] {
			continue
		}
		out = append(out, p)
	}
	return out, len(papers) - len(out)
}

func pass(papers []types.UnifiedPaper) ([]types.UnifiedPaper, []MergeEntry) {
	byDOI := make(map[string][]int)
	byIdentity := make(map[string][]int)
	byTitle := make(map[string][]int)
	titles := make([]string, len(papers))

	for i, p := range papers {
		if doi := NormalizeDOI(p.DOI); doi != "" {
			byDOI[doi] = append(byDOI[doi], i)
		}
		byIdentity[identity(p)] = append(byIdentity[identity(p)], i)
		titles[i] = NormalizeTitle(p.Title)
		if key := titleKey(p.Year, titles[i]); key != "" {
			byTitle[key] = append(byTitle[key], i)
		}
	}

	processed := make([]bool, len(papers))
	var out []types.UnifiedPaper
	var log []MergeEntry

	for i, p := range papers {
		if processed[i] {
			continue
		}
		processed[i] = true

		var cluster []int
		reason := ""
		add := func(j int) {
			if !processed[j] && !slices.Contains(cluster, j) {
				cluster = append(cluster, j)
			}
		}

		if doi := NormalizeDOI(p.DOI); doi != "" {
			for _, j := range byDOI[doi] {
				add(j)
			}
			if len(cluster) > 0 {
				reason = ReasonDOI
			}
		}
		before := len(cluster)
		for _, j := range byIdentity[identity(p)] {
			add(j)
		}
		if reason == "" && len(cluster) > before {
			reason = ReasonIdentity
		}

		if len(cluster) == 0 {
			for _, j := range byTitle[titleKey(p.Year, titles[i])] {
				if j == i || processed[j] {
					continue
				}
				if Ratio(titles[i], titles[j]) >= TitleMatchThreshold &&
					firstAuthorsMatch(p.Authors, papers[j].Authors) {
					add(j)
				}
			}
			if len(cluster) > 0 {
				reason = ReasonTitle
			}
		}

		if len(cluster) == 0 {
			out = append(out, p)
			continue
		}

		members := make([]types.UnifiedPaper, 0, len(cluster)+1)
		members = append(members, p)
		refs := make([]Ref, 0, len(cluster))
		for _, j := range cluster {
			processed[j] = true
			members = append(members, papers[j])
		}
		merged, keptIdx := merge(members)
		for k, m := range members {
			if k != keptIdx {
				refs = append(refs, Ref{Source: m.Source, ExternalID: m.ExternalID})
			}
		}
		out = append(out, merged)
		log = append(log, MergeEntry{
			KeptSource: merged.Source,
			KeptID:     merged.ExternalID,
			Merged:     refs,
			Reason:     reason,
		})
	}
	return out, log
}

func identity(p types.UnifiedPaper) string {
	return p.Source + "\x00" + p.ExternalID
}

func titleKey(year int, normTitle string) string {
	if year <= 0 || normTitle == "" {
		return ""
	}
	r := []rune(normTitle)
	if len(r) > titleKeyRunes {
		r = r[:titleKeyRunes]
	}
	return strconv.Itoa(year) + ":" + string(r)
}

// Completeness scores a record for merge selection.
func Completeness(p types.UnifiedPaper) float64 {
	score := 0.0
	if p.DOI != "" {
		score += 10
	}
	score += min(float64(len(p.Abstract))/100, 5)
	score += float64(min(len(p.Authors), 3))
	score += min(float64(p.CitationCount)/100, 2)
	if p.PDFURL != "" {
		score++
	}
	return score
}

// merge folds members into the most complete one and returns it together
// with its index in members. Ties keep input order.
func merge(members []types.UnifiedPaper) (types.UnifiedPaper, int) {
	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return Completeness(members[order[a]]) > Completeness(members[order[b]])
	})

	best := members[order[0]]
	best.Authors = slices.Clone(best.Authors)
	best.Topics = slices.Clone(best.Topics)
	best.FieldsOfStudy = slices.Clone(best.FieldsOfStudy)

	for _, idx := range order[1:] {
		other := members[idx]
		if best.DOI == "" && other.DOI != "" {
			best.DOI = other.DOI
		}
		if best.PDFURL == "" && other.PDFURL != "" {
			best.PDFURL = other.PDFURL
		}
		if len(other.Abstract) > len(best.Abstract) {
			best.Abstract = other.Abstract
		}
		best.Topics = union(best.Topics, other.Topics)
		best.FieldsOfStudy = union(best.FieldsOfStudy, other.FieldsOfStudy)
		if other.CitationCount > best.CitationCount {
			best.CitationCount = other.CitationCount
		}
	}
	return best, order[0]
}

func union(base, extra []string) []string {
	for _, v := range extra {
		if !slices.Contains(base, v) {
			base = append(base, v)
		}
	}
	return base
}
