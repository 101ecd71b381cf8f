package ingestion

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Platform represents a known applicant tracking system.
type Platform string

const (
	PlatformGreenhouse Platform = "greenhouse"
	PlatformLever      Platform = "lever"
	PlatformWorkday    Platform = "workday"
	PlatformAshby      Platform = "ashby"
	PlatformUnknown    Platform = "unknown"
)

// MinContentLength is the minimum extracted text length to consider an HTTP
// fetch successful. Shorter pages are likely client-side rendered.
const MinContentLength = 500

// ShouldUseBrowser reports whether extracted text is too short to be a posting
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// DetectPlatform identifies the job board platform from a URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(parsed.Hostname())

	switch {
	case strings.HasSuffix(host, "greenhouse.io"):
		return PlatformGreenhouse
	case strings.HasSuffix(host, "lever.co"):
		return PlatformLever
	case strings.HasSuffix(host, "myworkdayjobs.com"), strings.HasSuffix(host, "workday.com"):
		return PlatformWorkday
	case strings.HasSuffix(host, "ashbyhq.com"):
		return PlatformAshby
	default:
		return PlatformUnknown
	}
}

var platformSelectors = map[Platform][]string{
	PlatformGreenhouse: {".job__description.body", ".job__description", "#content", ".job-post-container"},
	PlatformLever:      {".posting-page", ".section-wrapper.page-full-width", ".posting-description"},
	PlatformWorkday:    {"[data-automation-id='jobPostingDescription']", "[data-automation-id='jobDescription']"},
	PlatformAshby:      {".ashby-job-posting-brief-description"},
}

// genericSelectors apply after the platform ones
var genericSelectors = []string{
	".job-description", "#job-description", ".job-details", ".posting-content",
	"[data-testid='job-description']", "main", "article", ".content", "#content",
}

// noiseSelectors are removed before text extraction
var noiseSelectors = []string{
	"nav", "footer", "header", "script", "style", "noscript", "iframe", "svg",
	"form", ".application-form", "#application-form", ".apply-button-container",
	".eeo-statement", ".voluntary-self-id", "#usa_self_id_section", ".legal-disclosure",
	".social-share", ".share-buttons", ".cookie-banner", ".cookie-consent",
	"[data-automation-id='applyButton']", ".posting-apply", ".sidebar",
}

// ContentSelectors returns the content selectors for a platform, most specific first
func ContentSelectors(platform Platform) []string {
	return append(append([]string(nil), platformSelectors[platform]...), genericSelectors...)
}

type page struct {
	title   string
	company string
	text    string
}

// extractPage parses HTML and returns the posting text and what metadata the
// page exposes through OpenGraph tags or headings.
func extractPage(html string, platform Platform) (page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return page{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	p := page{
		title:   metaContent(doc, "og:title"),
		company: metaContent(doc, "og:site_name"),
	}
	if p.title == "" {
		p.title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if p.title == "" {
		p.title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	doc.Find(strings.Join(noiseSelectors, ", ")).Remove()

	content := doc.Find("body")
	for _, selector := range ContentSelectors(platform) {
		if sel := doc.Find(selector); sel.Length() > 0 && strings.TrimSpace(sel.First().Text()) != "" {
			content = sel.First()
			break
		}
	}
	p.text = blockText(content)
	return p, nil
}

func metaContent(doc *goquery.Document, property string) string {
	v, _ := doc.Find(fmt.Sprintf("meta[property='%s']", property)).Attr("content")
	return strings.TrimSpace(v)
}

// blockText renders a selection as text, keeping block elements on their own
// lines and list items as bullets.
func blockText(sel *goquery.Selection) string {
	sel.Find("li").Each(func(_ int, li *goquery.Selection) {
		li.PrependHtml("- ")
	})
	sel.Find("br").ReplaceWithHtml("\n")
	sel.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr, section, ul, ol").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(sel.Text(), "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
