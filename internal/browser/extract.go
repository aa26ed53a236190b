package browser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"stockrecs/internal/fetcher"
	"stockrecs/internal/stock"
)

var digits = regexp.MustCompile(`\d+`)

// Extract reads the observation from a rendered quote page.
func Extract(html string, sel Selectors) (stock.Observation, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return stock.ErrorObservation(), fmt.Errorf("parse quote page: %w", err)
	}

	countPattern, err := regexp.Compile(sel.AnalystCount)
	if err != nil {
		return stock.ErrorObservation(), fmt.Errorf("analyst count pattern: %w", err)
	}

	card := doc.Find(sel.AnalystCard).First()
	label := cleanText(card.Find(sel.Recommendation).First().Text())
	price := cleanText(doc.Find(sel.Price).First().Text())

	if price == "" {
		return stock.ErrorObservation(), fetcher.NewMissingElementError("price")
	}
	if label == "" {
		return stock.ErrorObservation(), fetcher.NewMissingElementError("recommendation")
	}

	return stock.Observation{
		Price:               price,
		RecommendationLabel: label,
		AnalystCount:        analystCount(card, countPattern),
	}, nil
}

// analystCount returns the count from the innermost element of card whose
// text matches pattern, or 0.
func analystCount(card *goquery.Selection, pattern *regexp.Regexp) int {
	text := ""
	card.Find("*").Each(func(_ int, s *goquery.Selection) {
		t := cleanText(s.Text())
		if pattern.MatchString(t) && (text == "" || len(t) < len(text)) {
			text = t
		}
	})
	if text == "" {
		return 0
	}

	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	raw := m[0]
	if len(m) > 1 && m[1] != "" {
		raw = m[1]
	}
	n, err := strconv.Atoi(digits.FindString(raw))
	if err != nil {
		return 0
	}
	return n
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
