package linkedin

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

var (
	orgPath     = regexp.MustCompile(`/(company|school)/([\w%-]+)`)
	profilePath = regexp.MustCompile(`/in/([\w%-]+)`)
	degreeTerms = []string{"bachelor", "master", "phd", "ph.d", "certificate", "diploma", "associate", "mba", "bsc", "msc"}
)

// affiliation is one experience or education entry.
type affiliation struct {
	Kind      string
	ID        string
	URL       string
	Role      string
	DateRange string
}

// ContactInfo is what a profile's contact overlay exposes.
type ContactInfo struct {
	Email    *string
	GitHub   *string
	Websites []string
}

func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// text returns the visible text of the first match. LinkedIn duplicates
// labels for screen readers, so an aria-hidden copy wins when present.
func text(sel *goquery.Selection) string {
	sel = sel.First()
	if sel.Length() == 0 {
		return ""
	}
	if hidden := sel.Find(`span[aria-hidden="true"]`).First(); hidden.Length() > 0 {
		return squash(hidden.Text())
	}
	return squash(sel.Text())
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.First().Attr(name)
	return strings.TrimSpace(v)
}

// orgFromURL extracts the organization kind and id from a company or school link.
func orgFromURL(raw string) (kind, id string, ok bool) {
	m := orgPath.FindStringSubmatch(raw)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// profileIDFromURL extracts the public id from a /in/ link.
func profileIDFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		raw = u.Path
	}
	m := profilePath.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}

// parseAffiliations reads a details/experience or details/education page.
// Items without an organization link are dropped one by one.
func parseAffiliations(html, baseURL string) ([]affiliation, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	main := doc.Find("main.scaffold-layout__main")
	if main.Length() == 0 {
		main = doc.Selection
	}
	var out []affiliation
	main.Find("li.artdeco-list__item").Each(func(_ int, item *goquery.Selection) {
		href := attr(item.Find("a.optional-action-target-wrapper"), "href")
		kind, id, ok := orgFromURL(href)
		if !ok {
			return
		}
		roleOrDegree := text(item.Find("span.t-14.t-normal:not(.t-black--light)"))
		role := roleOrDegree
		if !isDegree(roleOrDegree) {
			if title := text(item.Find(`div.t-bold, span.t-bold`)); title != "" {
				role = title
			}
		}
		out = append(out, affiliation{
			Kind:      kind,
			ID:        id,
			URL:       orgURL(baseURL, kind, id),
			Role:      role,
			DateRange: text(item.Find("span.t-14.t-normal.t-black--light")),
		})
	})
	return out, nil
}

func isDegree(s string) bool {
	lower := strings.ToLower(s)
	for _, term := range degreeTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func orgURL(baseURL, kind, id string) string {
	return strings.TrimRight(baseURL, "/") + "/" + kind + "/" + id + "/"
}

// parseOrganization reads an organization's about page.
func parseOrganization(html string) (crawler.Collection, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return crawler.Collection{}, err
	}
	col := crawler.Collection{
		Platform: crawler.PlatformLinkedIn,
		Name:     crawler.StrPtr(text(doc.Find("h1.org-top-card-summary__title, h1"))),
		Logo:     crawler.StrPtr(attr(doc.Find("div.org-top-card-primary-content__logo-container img"), "src")),
	}
	about := doc.Find("section.org-about-module__margin-bottom")
	if about.Length() == 0 {
		about = doc.Selection
	}
	col.Description = crawler.StrPtr(squash(about.Find("p.break-words").First().Text()))

	about.Find("dl dt").Each(func(_ int, dt *goquery.Selection) {
		heading := strings.ToLower(squash(dt.Find("h3").Text()))
		if heading == "" {
			heading = strings.ToLower(squash(dt.Text()))
		}
		dd := dt.NextAllFiltered("dd").First()
		switch heading {
		case "website":
			website := attr(dd.Find("a"), "href")
			if website == "" {
				website = squash(dd.Text())
			}
			col.Website = crawler.StrPtr(website)
		case "company size":
			size := squash(dd.Contents().First().Text())
			if size == "" {
				size = squash(dd.Text())
			}
			col.CompanySize = crawler.StrPtr(size)
		case "industry":
			col.Industry = crawler.StrPtr(squash(dd.Text()))
		case "headquarters":
			col.Headquarters = crawler.StrPtr(squash(dd.Text()))
		case "specialties":
			col.Specialties = crawler.StrPtr(squash(dd.Text()))
		}
	})
	return col, nil
}

func organizationEmpty(col crawler.Collection) bool {
	return col.Name == nil && col.Description == nil && col.Logo == nil &&
		col.Website == nil && col.Industry == nil && col.CompanySize == nil
}

// parsePeopleCards reads the member cards currently rendered on a people page.
// Cards without a profile link (private members) are dropped.
func parsePeopleCards(html string) ([]crawler.Individual, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	var out []crawler.Individual
	doc.Find("li.org-people-profile-card__profile-card-spacing").Each(func(_ int, card *goquery.Selection) {
		id := profileIDFromURL(attr(card.Find(`a[href*="/in/"]`), "href"))
		if id == "" {
			return
		}
		out = append(out, crawler.Individual{
			Platform:       crawler.PlatformLinkedIn,
			Key:            id,
			Name:           crawler.StrPtr(text(card.Find("div.org-people-profile-card__profile-title"))),
			Header:         crawler.StrPtr(text(card.Find("div.artdeco-entity-lockup__subtitle"))),
			ProfilePicture: crawler.StrPtr(attr(card.Find("div.artdeco-entity-lockup__image img"), "src")),
		})
	})
	return out, nil
}

// parseProfile reads the top card of a profile page.
func parseProfile(html, id string) (crawler.Individual, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return crawler.Individual{}, err
	}
	top := doc.Find("section.artdeco-card").First()
	if top.Length() == 0 {
		top = doc.Selection
	}
	return crawler.Individual{
		Platform:       crawler.PlatformLinkedIn,
		Key:            id,
		Name:           crawler.StrPtr(text(top.Find("h1"))),
		Header:         crawler.StrPtr(text(top.Find("div.text-body-medium"))),
		ProfilePicture: crawler.StrPtr(attr(top.Find("img.pv-top-card-profile-picture__image, img.pv-top-card-profile-picture__image--show"), "src")),
	}, nil
}

// parseOwnProfileID finds the signed-in member's profile link in the feed sidebar.
func parseOwnProfileID(html string) (string, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return "", err
	}
	return profileIDFromURL(attr(doc.Find(`div.scaffold-layout__sidebar a[href*="/in/"]`), "href")), nil
}

// parseContactInfo reads the contact-info overlay.
func parseContactInfo(html string) (ContactInfo, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return ContactInfo{}, err
	}
	modal := doc.Find("div.artdeco-modal__content")
	if modal.Length() == 0 {
		modal = doc.Selection
	}
	var info ContactInfo
	if mail := attr(modal.Find(`a[href^="mailto:"]`), "href"); mail != "" {
		info.Email = crawler.StrPtr(strings.TrimPrefix(mail, "mailto:"))
	}
	modal.Find("section").Each(func(_ int, section *goquery.Selection) {
		if !strings.HasPrefix(strings.ToLower(squash(section.Find("h3").Text())), "website") {
			return
		}
		section.Find("ul a").Each(func(_ int, a *goquery.Selection) {
			href := attr(a, "href")
			if href == "" {
				return
			}
			if info.GitHub == nil && strings.Contains(strings.ToLower(href), "github.com") {
				info.GitHub = crawler.StrPtr(href)
				return
			}
			info.Websites = append(info.Websites, href)
		})
	})
	return info, nil
}

// AllWebsites lists the GitHub link first, then the other sites.
func (c ContactInfo) AllWebsites() []string {
	var out []string
	if c.GitHub != nil {
		out = append(out, *c.GitHub)
	}
	return append(out, c.Websites...)
}
