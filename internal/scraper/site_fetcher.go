package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/shelfwise/shelfwise-api/internal/models"
	"github.com/shelfwise/shelfwise-api/internal/protection"
)

// Selectors configures the CSS selectors used to extract records from the
// source site. The zero value is unusable; start from DefaultSelectors.
type Selectors struct {
	// Navigation and category pages
	NavigationLinks string
	CategoryLinks   string

	// Product listing pages
	ProductCard         string
	ProductTitle        string
	ProductLink         string
	ProductPrice        string
	ProductAvailability string
	ProductRating       string
	ProductImage        string
	NextPage            string

	// Product detail pages
	DetailTitle        string
	DetailPrice        string
	DetailAvailability string
	DetailRating       string
	DetailDescription  string
	DetailSpecRow      string
	DetailGenres       string

	// Review blocks on detail pages
	ReviewBlock  string
	ReviewAuthor string
	ReviewRating string
	ReviewDate   string
	ReviewText   string
}

// DefaultSelectors returns selectors matching the bookstore-style catalog
// markup the pipeline was built against.
func DefaultSelectors() Selectors {
	return Selectors{
		NavigationLinks: "div.side_categories > ul > li > a",
		CategoryLinks:   "div.side_categories ul li ul li a",

		ProductCard:         "article.product_pod",
		ProductTitle:        "h3 a",
		ProductLink:         "h3 a",
		ProductPrice:        "p.price_color",
		ProductAvailability: "p.availability",
		ProductRating:       "p.star-rating",
		ProductImage:        "div.image_container img",
		NextPage:            "li.next a",

		DetailTitle:        "div.product_main h1",
		DetailPrice:        "div.product_main p.price_color",
		DetailAvailability: "div.product_main p.availability",
		DetailRating:       "div.product_main p.star-rating",
		DetailDescription:  "div#product_description + p",
		DetailSpecRow:      "table.table tr",
		DetailGenres:       "ul.breadcrumb li a",

		ReviewBlock:  "div.review",
		ReviewAuthor: "span.review_author",
		ReviewRating: "p.review_rating",
		ReviewDate:   "span.review_date",
		ReviewText:   "p.review_text",
	}
}

// SiteFetcherConfig configures a SiteFetcher.
type SiteFetcherConfig struct {
	Selectors Selectors
	Timeout   time.Duration
	UserAgent string
}

// SiteFetcher implements Fetcher with colly against a live site.
type SiteFetcher struct {
	cfg      SiteFetcherConfig
	detector *protection.Detector
	logger   *slog.Logger
}

// NewSiteFetcher creates a colly-backed fetcher.
func NewSiteFetcher(cfg SiteFetcherConfig, logger *slog.Logger) *SiteFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "shelfwise/1.0"
	}
	return &SiteFetcher{cfg: cfg, detector: protection.NewDetector(), logger: logger}
}

// Fetch retrieves targetURL and extracts records for targetType.
func (f *SiteFetcher) Fetch(ctx context.Context, targetURL string, targetType models.TargetType) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !targetType.Valid() {
		return nil, NewFetchError(FetchParse, targetURL, fmt.Errorf("unknown target type %q", targetType))
	}

	// Collectors are not safe for reuse across concurrent fetches, so build
	// one per call.
	c := colly.NewCollector(colly.UserAgent(f.cfg.UserAgent))
	c.SetRequestTimeout(f.cfg.Timeout)

	var fetchErr *FetchError
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = f.classify(targetURL, r, err)
	})

	// Challenge pages often come back as 200s, so inspect successful
	// responses before parsing them as catalog data.
	c.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = *r.Headers
		}
		if det := f.detector.Detect(r.StatusCode, headers, r.Body); det.Detected && fetchErr == nil {
			fetchErr = NewFetchError(FetchBlocked, targetURL, fmt.Errorf("%s (%s)", det.Description, det.Signal))
		}
	})

	result := &Result{}
	sel := f.cfg.Selectors

	switch targetType {
	case models.TargetNavigation:
		c.OnHTML(sel.NavigationLinks, func(e *colly.HTMLElement) {
			title := strings.TrimSpace(e.Text)
			if title == "" {
				return
			}
			result.Navigations = append(result.Navigations, NavigationRecord{
				Slug:     Slugify(title),
				Title:    title,
				URL:      e.Request.AbsoluteURL(e.Attr("href")),
				Position: len(result.Navigations),
			})
		})

	case models.TargetCategory:
		c.OnHTML(sel.CategoryLinks, func(e *colly.HTMLElement) {
			title := strings.TrimSpace(e.Text)
			if title == "" {
				return
			}
			result.Categories = append(result.Categories, CategoryRecord{
				Slug:  Slugify(title),
				Title: title,
				URL:   e.Request.AbsoluteURL(e.Attr("href")),
			})
		})

	case models.TargetProductList:
		c.OnHTML(sel.ProductCard, func(e *colly.HTMLElement) {
			rec, err := f.extractProductCard(e)
			if err != nil {
				if fetchErr == nil {
					fetchErr = NewFetchError(FetchParse, targetURL, err)
				}
				return
			}
			result.Products = append(result.Products, rec)
		})
		c.OnHTML(sel.NextPage, func(e *colly.HTMLElement) {
			result.NextPageURL = e.Request.AbsoluteURL(e.Attr("href"))
		})

	case models.TargetProductDetail:
		c.OnHTML("body", func(e *colly.HTMLElement) {
			detail, err := f.extractDetail(e, targetURL)
			if err != nil {
				if fetchErr == nil {
					fetchErr = NewFetchError(FetchParse, targetURL, err)
				}
				return
			}
			result.Detail = detail
		})
	}

	if err := c.Visit(targetURL); err != nil && fetchErr == nil {
		fetchErr = f.classify(targetURL, nil, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if f.logger != nil {
		f.logger.Debug("page fetched",
			"url", targetURL,
			"target_type", targetType,
			"items", result.ItemCount(),
			"next_page", result.NextPageURL != "")
	}
	return result, nil
}

func (f *SiteFetcher) classify(targetURL string, r *colly.Response, err error) *FetchError {
	if r != nil && r.StatusCode != 0 {
		switch r.StatusCode {
		case 404, 410:
			return NewFetchError(FetchNotFound, targetURL, err)
		case 403, 429:
			return NewFetchError(FetchBlocked, targetURL, err)
		}
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return NewFetchError(FetchTimeout, targetURL, err)
	}
	if strings.Contains(strings.ToLower(fmt.Sprint(err)), "not found") {
		return NewFetchError(FetchNotFound, targetURL, err)
	}
	// Remaining transport and 5xx failures are worth retrying.
	return NewFetchError(FetchTimeout, targetURL, err)
}

func (f *SiteFetcher) extractProductCard(e *colly.HTMLElement) (ProductRecord, error) {
	sel := f.cfg.Selectors

	title := e.ChildAttr(sel.ProductTitle, "title")
	if title == "" {
		title = strings.TrimSpace(e.ChildText(sel.ProductTitle))
	}
	link := e.Request.AbsoluteURL(e.ChildAttr(sel.ProductLink, "href"))
	if title == "" || link == "" {
		return ProductRecord{}, fmt.Errorf("product card missing title or link")
	}

	price, currency := ParsePrice(e.ChildText(sel.ProductPrice))

	return ProductRecord{
		SourceID:     SourceIDFromURL(link),
		Title:        title,
		Price:        price,
		Currency:     currency,
		Availability: NormalizeAvailability(e.ChildText(sel.ProductAvailability)),
		Rating:       ParseStarRating(e.ChildAttr(sel.ProductRating, "class")),
		ImageURL:     e.Request.AbsoluteURL(e.ChildAttr(sel.ProductImage, "src")),
		ProductURL:   link,
	}, nil
}

func (f *SiteFetcher) extractDetail(e *colly.HTMLElement, pageURL string) (*DetailRecord, error) {
	sel := f.cfg.Selectors

	title := strings.TrimSpace(e.ChildText(sel.DetailTitle))
	if title == "" {
		return nil, fmt.Errorf("detail page missing title")
	}

	price, currency := ParsePrice(e.ChildText(sel.DetailPrice))

	detail := &DetailRecord{
		Product: ProductRecord{
			SourceID:     SourceIDFromURL(pageURL),
			Title:        title,
			Price:        price,
			Currency:     currency,
			Availability: NormalizeAvailability(e.ChildText(sel.DetailAvailability)),
			Rating:       ParseStarRating(e.ChildAttr(sel.DetailRating, "class")),
			ProductURL:   pageURL,
		},
		Description: strings.TrimSpace(e.ChildText(sel.DetailDescription)),
		Specs:       map[string]string{},
	}

	e.ForEach(sel.DetailSpecRow, func(_ int, row *colly.HTMLElement) {
		key := strings.TrimSpace(row.ChildText("th"))
		value := strings.TrimSpace(row.ChildText("td"))
		if key != "" {
			detail.Specs[key] = value
		}
	})
	detail.Publisher = detail.Specs["Publisher"]
	detail.ISBN = firstNonEmpty(detail.Specs["ISBN"], detail.Specs["UPC"])
	if pages := detail.Specs["Number of Pages"]; pages != "" {
		detail.PageCount, _ = strconv.Atoi(pages)
	}

	e.ForEach(sel.DetailGenres, func(_ int, a *colly.HTMLElement) {
		genre := strings.TrimSpace(a.Text)
		if genre != "" && !strings.EqualFold(genre, "home") {
			detail.Genres = append(detail.Genres, genre)
		}
	})

	e.ForEach(sel.ReviewBlock, func(_ int, block *colly.HTMLElement) {
		text := strings.TrimSpace(block.ChildText(sel.ReviewText))
		if text == "" {
			return
		}
		detail.Reviews = append(detail.Reviews, ReviewRecord{
			Author: strings.TrimSpace(block.ChildText(sel.ReviewAuthor)),
			Rating: ParseStarRating(block.ChildAttr(sel.ReviewRating, "class")),
			Date:   strings.TrimSpace(block.ChildText(sel.ReviewDate)),
			Text:   text,
		})
	})

	return detail, nil
}

var slugCleanup = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses runs of non-alphanumerics into hyphens.
func Slugify(s string) string {
	s = slugCleanup.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// SourceIDFromURL derives the natural product key from a product page URL:
// the last meaningful path segment, e.g.
// /catalogue/a-light-in-the-attic_1000/index.html -> a-light-in-the-attic_1000.
func SourceIDFromURL(u string) string {
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "/index.html")
	if i := strings.Index(u, "?"); i >= 0 {
		u = u[:i]
	}
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	return u
}

var priceNumber = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

// ParsePrice extracts the numeric amount and a currency code from a price
// label like "£51.77".
func ParsePrice(s string) (float64, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ""
	}
	var currency string
	switch {
	case strings.Contains(s, "£"):
		currency = "GBP"
	case strings.Contains(s, "€"):
		currency = "EUR"
	case strings.Contains(s, "$"):
		currency = "USD"
	}
	m := priceNumber.FindString(s)
	if m == "" {
		return 0, currency
	}
	price, _ := strconv.ParseFloat(m, 64)
	return price, currency
}

var starWords = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
}

// ParseStarRating reads a star rating from a class attribute like
// "star-rating Three".
func ParseStarRating(classAttr string) float64 {
	for _, word := range strings.Fields(classAttr) {
		if v, ok := starWords[strings.ToLower(word)]; ok {
			return v
		}
	}
	return 0
}

// NormalizeAvailability collapses the whitespace-heavy availability label.
func NormalizeAvailability(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
