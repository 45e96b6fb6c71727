package linkedin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestParseAffiliationsExperience(t *testing.T) {
	t.Parallel()

	affs, err := parseAffiliations(fixture(t, "experience.html"), defaultBaseURL)
	require.NoError(t, err)
	require.Len(t, affs, 3, "the entry without an organization link is dropped")

	require.Equal(t, affiliation{
		Kind:      "company",
		ID:        "acme-corp",
		URL:       "https://www.linkedin.com/company/acme-corp/",
		Role:      "Staff Engineer",
		DateRange: "Jan 2020 - Present · 4 yrs",
	}, affs[0])
	require.Equal(t, "12345", affs[1].ID)
	require.Equal(t, "Engineer", affs[1].Role)
	require.Equal(t, "Mar 2017 - Dec 2019", affs[1].DateRange)
	require.Equal(t, "acme-corp", affs[2].ID)
	require.Empty(t, affs[2].DateRange)
}

func TestParseAffiliationsEducationKeepsDegree(t *testing.T) {
	t.Parallel()

	affs, err := parseAffiliations(fixture(t, "education.html"), defaultBaseURL)
	require.NoError(t, err)
	require.Len(t, affs, 1)
	require.Equal(t, "school", affs[0].Kind)
	require.Equal(t, "state-university", affs[0].ID)
	require.Equal(t, "Bachelor of Science, Computer Science", affs[0].Role)
}

func TestParseOrganization(t *testing.T) {
	t.Parallel()

	col, err := parseOrganization(fixture(t, "about.html"))
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", *col.Name)
	require.Equal(t, "https://media.example/acme.png", *col.Logo)
	require.Equal(t, "Acme builds everything.", *col.Description)
	require.Equal(t, "https://acme.example", *col.Website)
	require.Equal(t, "Software Development", *col.Industry)
	require.Equal(t, "1,001-5,000 employees", *col.CompanySize)
	require.Equal(t, "Springfield, USA", *col.Headquarters)
	require.Equal(t, "rockets, anvils", *col.Specialties)
	require.False(t, organizationEmpty(col))
}

func TestParseOrganizationMissingFieldsAreNil(t *testing.T) {
	t.Parallel()

	col, err := parseOrganization(`<html><body><p>nothing here</p></body></html>`)
	require.NoError(t, err)
	require.True(t, organizationEmpty(col))
	require.Nil(t, col.Industry)
}

func TestParsePeopleCards(t *testing.T) {
	t.Parallel()

	people, err := parsePeopleCards(fixture(t, "people_1.html"))
	require.NoError(t, err)
	require.Len(t, people, 2, "private members without a profile link are dropped")
	require.Equal(t, "alice-example", people[0].Key)
	require.Equal(t, "Alice Example", *people[0].Name)
	require.Equal(t, "Staff Engineer at Acme", *people[0].Header)
	require.Equal(t, "https://media.example/alice.jpg", *people[0].ProfilePicture)
	require.Equal(t, "bob-builder", people[1].Key)
	require.Nil(t, people[1].Header)
}

func TestParseProfileAndFeed(t *testing.T) {
	t.Parallel()

	id, err := parseOwnProfileID(fixture(t, "feed.html"))
	require.NoError(t, err)
	require.Equal(t, "alice-example", id)

	ind, err := parseProfile(fixture(t, "profile.html"), id)
	require.NoError(t, err)
	require.Equal(t, "alice-example", ind.Key)
	require.Equal(t, "Alice Example", *ind.Name)
	require.Equal(t, "Staff Engineer at Acme", *ind.Header)
	require.Equal(t, "https://media.example/alice.jpg", *ind.ProfilePicture)
}

func TestParseContactInfo(t *testing.T) {
	t.Parallel()

	info, err := parseContactInfo(fixture(t, "contact.html"))
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", *info.Email)
	require.Equal(t, "https://github.com/bob-builder", *info.GitHub)
	require.Equal(t, []string{"https://bob.example"}, info.Websites)
	require.Equal(t, []string{"https://github.com/bob-builder", "https://bob.example"}, info.AllWebsites())
}

func TestOrgAndProfileIDs(t *testing.T) {
	t.Parallel()

	kind, id, ok := orgFromURL("https://www.linkedin.com/school/state-university/people/")
	require.True(t, ok)
	require.Equal(t, "school", kind)
	require.Equal(t, "state-university", id)

	_, _, ok = orgFromURL("https://www.linkedin.com/in/alice/")
	require.False(t, ok)

	require.Equal(t, "bob", profileIDFromURL("/in/bob?trk=x"))
	require.Empty(t, profileIDFromURL("https://www.linkedin.com/company/acme/"))
}
