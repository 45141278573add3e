// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"fmt"
	"io"
	"strings"

	"github.com/medmatch/medmatch/utils/htmlutils"
	"golang.org/x/net/html"
)

// Markup of the insurer provider directory result pages.
const (
	cardAttr          = "data-test"
	cardValue         = "provider-card"
	cardNameValue     = "provider-r-card-header-name"
	cardSpecialtyAttr = "specialties"
	cardAddressValue  = "provider-address"
	telPrefix         = "tel:"
)

func hasDataTest(tag, value string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		v, ok := htmlutils.Attr(n, cardAttr)

		return ok && v == value && htmlutils.IsElement(n, tag)
	}
}

func isTelLink(n *html.Node) bool {
	href, ok := htmlutils.Attr(n, "href")

	return htmlutils.IsElement(n, "a") && ok && strings.HasPrefix(strings.TrimSpace(href), telPrefix)
}

// textOf returns the text of the first node matched by match under n, or nil.
func textOf(n *html.Node, match func(*html.Node) bool) (*string, error) {
	found := htmlutils.FindFirst(n, match)
	if found == nil {
		return nil, nil
	}

	s, err := htmlutils.Text(found)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// ParseCards extracts the provider cards of a directory result page. The
// records carry no coordinates; callers geocode the address. Cards without
// a name are skipped.
func ParseCards(r io.Reader, source string) ([]RawRecord, error) {
	doc, err := htmlutils.AsNode(r)
	if err != nil {
		return nil, err
	}

	cards := htmlutils.Find(doc, hasDataTest("div", cardValue))
	ret := make([]RawRecord, 0, len(cards))

	for i, card := range cards {
		name, err := textOf(card, hasDataTest("", cardNameValue))
		if err != nil {
			return nil, fmt.Errorf("extracting name for card %d: %w", i, err)
		}

		if name == nil || *name == "" {
			continue
		}

		specialty, err := textOf(card, hasDataTest("div", cardSpecialtyAttr))
		if err != nil {
			return nil, fmt.Errorf("extracting specialty for card %d: %w", i, err)
		}

		address, err := textOf(card, hasDataTest("address", cardAddressValue))
		if err != nil {
			return nil, fmt.Errorf("extracting address for card %d: %w", i, err)
		}

		phone, err := textOf(card, isTelLink)
		if err != nil {
			return nil, fmt.Errorf("extracting phone for card %d: %w", i, err)
		}

		record := RawRecord{
			Name:      *name,
			Specialty: specialty,
			Phone:     phone,
			Source:    source,
		}

		if address != nil {
			record.Address = CleanAddress(*address)
		}

		ret = append(ret, record)
	}

	return ret, nil
}
