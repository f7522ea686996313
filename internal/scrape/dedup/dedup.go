package dedup

import (
	"strings"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

// DefaultThreshold is the Dice similarity above which two titles count as
// the same posting. Strictly above: 0.9 exactly is not a duplicate.
const DefaultThreshold = 0.9

type MatchReason string

const (
	MatchExternalID MatchReason = "external_id"
	MatchURL        MatchReason = "url"
	MatchTitle      MatchReason = "title_similarity"
)

// Duplicate pairs a scraped job with the stored job it collided with.
// Synthetic marks collisions against another job from the same batch; those
// carry ExistingJobID 0 and must never drive description updates.
type Duplicate struct {
	Job           types.ScrapedJob
	ExistingJobID int64
	Similarity    float64
	Reason        MatchReason
	Synthetic     bool
}

type Result struct {
	NewJobs    []types.ScrapedJob
	Duplicates []Duplicate
}

type candidate struct {
	id        int64
	title     string
	synthetic bool
}

// BatchDeduplicate splits scraped jobs into genuinely new ones and
// duplicates of stored (or earlier-in-batch) jobs. Match order: external id,
// then canonical URL, then title similarity. Every input lands in exactly
// one of the two output sets. threshold <= 0 means DefaultThreshold.
func BatchDeduplicate(scraped []types.ScrapedJob, existing []domain.ExistingJob, threshold float64) Result {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	byExternalID := make(map[string]candidate, len(existing))
	byURL := make(map[string]candidate, len(existing))
	titles := make([]candidate, 0, len(existing))

	for _, e := range existing {
		c := candidate{id: e.ID, title: strings.ToLower(util.CleanText(e.Title))}
		if id := strings.TrimSpace(e.ExternalID); id != "" {
			byExternalID[id] = c
		}
		if u := util.CanonicalizeURL(e.URL); u != "" {
			byURL[u] = c
		}
		if c.title != "" {
			titles = append(titles, c)
		}
	}

	var res Result
	for _, j := range scraped {
		if dup, ok := findMatch(j, byExternalID, byURL, titles, threshold); ok {
			res.Duplicates = append(res.Duplicates, dup)
			continue
		}

		res.NewJobs = append(res.NewJobs, j)

		// new jobs join the comparison pool so in-batch twins dedupe too
		c := candidate{title: strings.ToLower(util.CleanText(j.Title)), synthetic: true}
		if id := strings.TrimSpace(j.ExternalID); id != "" {
			byExternalID[id] = c
		}
		if u := util.CanonicalizeURL(j.URL); u != "" {
			byURL[u] = c
		}
		if c.title != "" {
			titles = append(titles, c)
		}
	}
	return res
}

func findMatch(j types.ScrapedJob, byExternalID, byURL map[string]candidate, titles []candidate, threshold float64) (Duplicate, bool) {
	if id := strings.TrimSpace(j.ExternalID); id != "" {
		if c, ok := byExternalID[id]; ok {
			return Duplicate{Job: j, ExistingJobID: c.id, Similarity: 1, Reason: MatchExternalID, Synthetic: c.synthetic}, true
		}
	}
	if u := util.CanonicalizeURL(j.URL); u != "" {
		if c, ok := byURL[u]; ok {
			return Duplicate{Job: j, ExistingJobID: c.id, Similarity: 1, Reason: MatchURL, Synthetic: c.synthetic}, true
		}
	}

	title := strings.ToLower(util.CleanText(j.Title))
	if title == "" {
		return Duplicate{}, false
	}
	best := Duplicate{}
	bestSim := 0.0
	for _, c := range titles {
		sim := DiceCoefficient(title, c.title)
		if sim > bestSim {
			bestSim = sim
			best = Duplicate{Job: j, ExistingJobID: c.id, Similarity: sim, Reason: MatchTitle, Synthetic: c.synthetic}
		}
	}
	if bestSim > threshold {
		return best, true
	}
	return Duplicate{}, false
}

// DiceCoefficient is Sørensen–Dice over character bigrams: twice the shared
// bigram count over the total. 1 for identical strings, 0 for disjoint.
func DiceCoefficient(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	counts := make(map[string]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		counts[string(ra[i:i+2])]++
	}

	shared := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := string(rb[i : i+2])
		if counts[bg] > 0 {
			counts[bg]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ra)-1+len(rb)-1)
}
