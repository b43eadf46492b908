// Package webscraper fetches a web page and returns its main content as markdown
package webscraper

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/clipperhouse/uax29/sentences"
	"github.com/gabriel-vasile/mimetype"

	"github.com/bububa/atomic-orchestrator/tools"
)

const (
	DefaultTitle       = "fetch_page"
	DefaultDescription = "Fetch a web page by URL and return its main content as markdown together with page metadata. Use it to read a search result in full."
)

var blankLinesRegex = regexp.MustCompile(`\r?\n{2,}`)

// Input schema for the page fetch tool.
type Input struct {
	// URL of the webpage to fetch.
	URL string `json:"url" jsonschema:"title=url,description=URL of the webpage to fetch." validate:"required,url"`
	// IncludeLinks Whether to preserve hyperlinks in the markdown output.
	IncludeLinks bool `json:"include_links,omitempty" jsonschema:"title=include_links,description=Whether to preserve hyperlinks in the markdown output."`
}

func NewInput(link string, includeLinks bool) *Input {
	return &Input{
		URL:          link,
		IncludeLinks: includeLinks,
	}
}

// Metadata Schema for webpage metadata
type Metadata struct {
	// Title is the title of the webpage.
	Title string `json:"title,omitempty" jsonschema:"title=title,description=The title of the webpage."`
	// Author is the author of the webpage content.
	Author string `json:"author,omitempty" jsonschema:"title=author,description=The Author of the webpage."`
	// Description is the meta description of the webpage.
	Description string `json:"description,omitempty" jsonschema:"title=description,description=The meta description of the webpage."`
	// Keywords is the meta keywords of the webpage.
	Keywords string `json:"keywords,omitempty" jsonschema:"title=keywords,description=The meta keywords of the webpage."`
	// SiteName is the name of the website.
	SiteName string `json:"sitename,omitempty" jsonschema:"title=sitename,description=The name of the website."`
	// Domain is the domain name of the website.
	Domain string `json:"domain,omitempty" jsonschema:"title=domain,description=The domain name of the website."`
}

// Output Schema for the output of the page fetch tool.
type Output struct {
	// Content The page content in markdown format.
	Content string `json:"content" jsonschema:"title=content,description=The page content in markdown format."`
	// Truncated reports whether Content was cut to the size limit
	Truncated bool `json:"truncated,omitempty" jsonschema:"title=truncated,description=Whether the content was truncated."`
	// Metadata is metadata about the webpage.
	Metadata *Metadata `json:"metadata,omitempty" jsonschema:"title=metadata,description=Metadata about the webpage."`
}

type Config struct {
	tools.Config
	// userAgent User agent string to use for requests.
	userAgent string
	// timeout for HTTP requests when no client is given
	timeout time.Duration
	// maxContentLength Maximum content length in bytes to process.
	maxContentLength int64
	// maxMarkdownLength bounds the markdown output in counter units
	maxMarkdownLength int
	counter           Counter
	httpClient        *http.Client
}

type Webscraper struct {
	Config
}

var _ tools.Tool[Input, Output] = (*Webscraper)(nil)

func New(opts ...Option) *Webscraper {
	ret := new(Webscraper)
	for _, opt := range opts {
		opt(&ret.Config)
	}
	if ret.Title() == "" {
		ret.SetTitle(DefaultTitle)
	}
	if ret.Description() == "" {
		ret.SetDescription(DefaultDescription)
	}
	if ret.userAgent == "" {
		ret.userAgent = DefaultUserAgent
	}
	if ret.timeout == 0 {
		ret.timeout = 30 * time.Second
	}
	if ret.maxContentLength == 0 {
		ret.maxContentLength = 1_000_000
	}
	if ret.maxMarkdownLength == 0 {
		ret.maxMarkdownLength = 8_000
	}
	if ret.counter == nil {
		ret.counter = RuneCounter{}
	}
	if ret.httpClient == nil {
		ret.httpClient = &http.Client{Timeout: ret.timeout}
	}
	return ret
}

func (t *Webscraper) Run(ctx context.Context, input *Input) (*Output, error) {
	parsedURL, err := url.ParseRequestURI(input.URL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme: %s", parsedURL.Scheme)
	}
	doc, err := t.fetch(ctx, input.URL)
	if err != nil {
		return nil, err
	}
	meta := &Metadata{Domain: parsedURL.Host}
	t.extractMetadata(doc, meta)
	if !input.IncludeLinks {
		doc.Find("a").Each(func(_ int, s *goquery.Selection) {
			s.ReplaceWithHtml(html.EscapeString(s.Text()))
		})
	}
	mainContent := t.extractMainContent(doc)
	markdown, err := htmltomarkdown.ConvertString(
		mainContent,
		converter.WithDomain(fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)),
	)
	if err != nil {
		return nil, err
	}
	markdown = t.cleanMarkdownContent(markdown)
	ret := &Output{Metadata: meta}
	ret.Content, ret.Truncated = truncate(markdown, t.maxMarkdownLength, t.counter)
	return ret, nil
}

func (t *Webscraper) fetch(ctx context.Context, link string) (*goquery.Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", t.userAgent)
	httpReq.Header.Set("Accept", DefaultAccept)
	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-200 response from %s: %d", link, httpResp.StatusCode)
	}
	if httpResp.ContentLength > t.maxContentLength {
		return nil, fmt.Errorf("content length exceeds maximum of %d bytes", t.maxContentLength)
	}
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, t.maxContentLength))
	if err != nil {
		return nil, err
	}
	// servers mislabel content types, sniff the body instead
	if mime := mimetype.Detect(body); !isText(mime) {
		return nil, fmt.Errorf("unsupported content type %s from %s", mime.String(), link)
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// isText reports whether mime is text/plain or one of its descendants such as text/html
func isText(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// Extracts metadata from the webpage
func (t *Webscraper) extractMetadata(doc *goquery.Document, meta *Metadata) {
	meta.Title = strings.TrimSpace(doc.Find("head title").First().Text())
	meta.Author, _ = doc.Find("meta[name='author']").Attr("content")
	meta.Description, _ = doc.Find("meta[name='description']").Attr("content")
	meta.Keywords, _ = doc.Find("meta[name='keywords']").Attr("content")
	meta.SiteName, _ = doc.Find("meta[property='og:site_name']").Attr("content")
}

// extractMainContent extracts the main content from the webpage using custom heuristics
func (t *Webscraper) extractMainContent(doc *goquery.Document) string {
	for _, tag := range []string{"script", "style", "nav", "header", "footer", "noscript", "iframe"} {
		doc.Find(tag).Remove()
	}
	contentCandidates := []string{
		"main",
		"#content, #main",
		".content, .main",
		"article",
		"body",
	}
	var mainContent string
	for _, selector := range contentCandidates {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 {
			if txt, err := sel.Html(); err == nil && strings.TrimSpace(txt) != "" {
				mainContent = txt
				break
			}
		}
	}
	if mainContent == "" {
		mainContent, _ = doc.Html()
	}
	return mainContent
}

// Cleans up the markdown content by removing excessive whitespace and normalizing formatting
func (t *Webscraper) cleanMarkdownContent(content string) string {
	content = blankLinesRegex.ReplaceAllString(content, "\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")
	return strings.TrimSpace(content) + "\n"
}

// truncate keeps the leading sentences of s that fit in limit counter units. A first
// sentence longer than limit is cut mid-sentence.
func truncate(s string, limit int, counter Counter) (string, bool) {
	if limit <= 0 || counter.Count(s) <= limit {
		return s, false
	}
	var (
		b     strings.Builder
		count int
	)
	scanner := sentences.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		n := counter.Count(string(scanner.Bytes()))
		if count+n > limit {
			break
		}
		b.Write(scanner.Bytes())
		count += n
	}
	if count == 0 {
		return counter.Cut(s, limit), true
	}
	return strings.TrimRight(b.String(), " \t\n") + "\n", true
}
