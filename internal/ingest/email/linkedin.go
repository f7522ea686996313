package email

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobscout-engine/internal/scrape/util"
)

var (
	jobViewRe = regexp.MustCompile(`/jobs/view/(\d+)`)
	salaryRe  = regexp.MustCompile(`\$\s?\d[\d,]*(?:K|M)?\s*(?:-\s*\$\s?\d[\d,]*(?:K|M)?)?\s*/\s*(?:year|yr|hour|hr)`)
)

// alertJob is one job card pulled out of a LinkedIn alert email.
type alertJob struct {
	Title    string
	Company  string
	Location string
	Salary   string
	URL      string
	JobID    string // digits from /jobs/view/<id>, empty when the link hides it
}

// isAlert reports whether a message looks like a LinkedIn job alert. The
// sender check is the reliable one; the subject fallback needs a job-view
// link in the body to avoid catching ordinary LinkedIn mail.
func isAlert(from, subject, body string) bool {
	if strings.Contains(strings.ToLower(from), "jobalerts-noreply") {
		return true
	}
	s := strings.ToLower(subject)
	if !strings.Contains(s, "job alert") && !strings.Contains(s, "linkedin") {
		return false
	}
	return strings.Contains(strings.ToLower(body), "linkedin.com/jobs/view") ||
		strings.Contains(strings.ToLower(body), "linkedin.com/comm/jobs/view")
}

// parseAlert pulls job cards out of alert HTML. The templates scatter
// several anchors per posting (logo, title, footer CTA), so anchors are
// merged by job id before any field is trusted; cards come back in the
// order the email lists them.
func parseAlert(htmlBody string) ([]alertJob, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil, err
	}

	byKey := map[string]*alertJob{}
	var order []string

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		jobURL := unwrapRedirect(strings.TrimSpace(href))
		if !isJobViewURL(jobURL) {
			return
		}

		id := jobViewID(jobURL)
		key := id
		if key == "" {
			key = util.CanonicalizeURL(jobURL)
		}

		j := byKey[key]
		if j == nil {
			j = &alertJob{URL: jobURL, JobID: id}
			byKey[key] = j
			order = append(order, key)
		}

		if t := tidyTitle(a.Text()); betterTitle(t, j.Title) {
			j.Title = t
		}

		card := cardFor(a)

		// "Company · Location" rides in a <p> near the anchor; so does the
		// title in some template variants
		card.Find("p").Each(func(_ int, p *goquery.Selection) {
			text := util.CleanText(p.Text())
			if text == "" {
				return
			}
			if j.Company == "" && j.Location == "" && strings.Contains(text, " · ") {
				parts := strings.SplitN(text, " · ", 2)
				j.Company = strings.TrimSpace(parts[0])
				j.Location = strings.TrimSpace(parts[1])
				return
			}
			if strings.Contains(text, " · ") {
				return
			}
			if t := tidyTitle(text); betterTitle(t, j.Title) {
				j.Title = t
			}
		})

		if j.Salary == "" {
			if m := salaryRe.FindString(util.CleanText(card.Text())); m != "" {
				j.Salary = strings.TrimSpace(m)
			}
		}
	})

	out := make([]alertJob, 0, len(order))
	for _, key := range order {
		j := byKey[key]
		if j.Title == "" || j.URL == "" {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func isJobViewURL(u string) bool {
	l := strings.ToLower(u)
	return strings.Contains(l, "linkedin.com") && strings.Contains(l, "/jobs/view/")
}

func jobViewID(u string) string {
	if m := jobViewRe.FindStringSubmatch(u); len(m) == 2 {
		return m[1]
	}
	return ""
}

// unwrapRedirect resolves the tracking wrappers alert links hide behind:
// a url= query param, or a google /url?q= hop.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if raw := u.Query().Get("url"); raw != "" {
		if inner, err := url.Parse(raw); err == nil && inner.Host != "" {
			return inner.String()
		}
	}
	if strings.Contains(strings.ToLower(u.Host), "google.") && strings.HasPrefix(u.Path, "/url") {
		if q := u.Query().Get("q"); q != "" {
			if inner, err := url.Parse(q); err == nil && inner.Host != "" {
				return inner.String()
			}
		}
	}
	return href
}

// cardFor finds the enclosing card markup for an anchor. Alert emails are
// table soup; the nearest table (or row, or parent) is as close to a card
// boundary as the markup gets.
func cardFor(a *goquery.Selection) *goquery.Selection {
	if card := a.Closest("table"); card.Length() > 0 {
		return card
	}
	if card := a.Closest("tr"); card.Length() > 0 {
		return card
	}
	return a.Parent()
}

// tidyTitle strips the badge text LinkedIn appends to title anchors and
// rejects strings that are clearly navigation, not titles.
func tidyTitle(s string) string {
	s = util.CleanText(s)
	if s == "" {
		return ""
	}
	for _, badge := range []string{"Actively recruiting", "Easy Apply", "Promoted"} {
		s = strings.TrimSpace(strings.ReplaceAll(s, badge, ""))
	}
	l := strings.ToLower(s)
	if strings.Contains(l, "alumni") || strings.Contains(l, "connections") ||
		strings.Contains(l, "applicants") || strings.Contains(l, "school") {
		return ""
	}
	return util.CleanText(s)
}

// betterTitle decides whether candidate should replace the current title.
// Anchor text ranges from the real title to "See job" and salary blobs, so
// candidates are scored and a replacement needs a clear win over the
// incumbent to stop later anchors from flip-flopping the field.
func betterTitle(candidate, current string) bool {
	if candidate == "" {
		return false
	}
	if current == "" {
		return titleScore(candidate) >= 5
	}
	return titleScore(candidate) >= titleScore(current)+3
}

var roleWords = []string{
	"engineer", "developer", "software", "backend", "frontend", "full stack", "full-stack",
	"platform", "cloud", "devops", "sre", "security", "embedded", "firmware",
	"data", "scientist", "analyst", "architect", "designer",
	"manager", "director", "lead", "principal", "staff", "intern", "technician",
}

func titleScore(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return -100
	}
	l := strings.ToLower(s)

	if strings.Contains(l, "unsubscribe") ||
		strings.Contains(l, "http://") || strings.Contains(l, "https://") || strings.Contains(l, "www.") {
		return -50
	}

	score := 0
	if strings.ContainsAny(s, "$€£") {
		score -= 8
	}
	if strings.Contains(l, "/hour") || strings.Contains(l, "/hr") ||
		strings.Contains(l, "/year") || strings.Contains(l, "/yr") ||
		strings.Contains(l, "per hour") || strings.Contains(l, "per year") {
		score -= 6
	}
	for _, cta := range []string{"apply", "view job", "see job", "see details", "learn more", "sign in"} {
		if strings.Contains(l, cta) {
			score -= 6
		}
	}
	for _, loc := range []string{"remote", "hybrid", "on-site", "onsite"} {
		if strings.Contains(l, loc) {
			score -= 3
		}
	}
	for _, w := range roleWords {
		if strings.Contains(l, w) {
			score += 4
			break
		}
	}

	// shape: plausible titles are short phrases, not sentences or id soup
	if n := len([]rune(s)); n >= 6 && n <= 80 {
		score += 2
	} else if n < 4 || n > 140 {
		score -= 6
	}
	if strings.HasSuffix(s, ".") || strings.Contains(l, "you will") || strings.Contains(l, "we are") {
		score -= 4
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits >= 6 {
		score -= 4
	}
	return score
}
