package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ghlexport/pkg/clients"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
)

func names(es []Extractor) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Name()
	}
	return out
}

func TestRegistryDefaults(t *testing.T) {
	r := newTestRegistry(t, newRouteFetcher())

	assert.Len(t, r.Names(), 20)
	assert.Equal(t, []string{
		DomainLocations, DomainContacts, DomainConversations, DomainCalendars, DomainOpportunities,
		DomainWorkflows, DomainCampaigns, DomainForms, DomainPayments, DomainUsers,
	}, r.Defaults())
	assert.True(t, r.IsDefault(DomainUsers))
	assert.False(t, r.IsDefault(DomainTags))

	es, unknown := r.Resolve(nil)
	assert.Empty(t, unknown)
	assert.Equal(t, r.Defaults(), names(es))
}

func TestRegistryResolve(t *testing.T) {
	r := newTestRegistry(t, newRouteFetcher())

	es, unknown := r.Resolve([]string{"Users", " contacts ", "bogus", "contacts", "", "tags"})
	assert.Equal(t, []string{DomainContacts, DomainUsers, DomainTags}, names(es))
	assert.Equal(t, []string{"bogus"}, unknown)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r, err := NewRegistry(newRouteFetcher(), nil, nil, WithoutDefaults())
	require.NoError(t, err)

	d := Deps{Fetch: newRouteFetcher()}
	require.NoError(t, r.Register(NewListExtractor(d, "users", "", byLocation("/users/", "users")), true))
	err = r.Register(NewListExtractor(d, "users", "", byLocation("/users/", "users")), false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestFilterOptionsPipelines(t *testing.T) {
	f := newRouteFetcher()
	opportunityFixture(f)
	r := newTestRegistry(t, f)

	c, err := r.FilterOptions(context.Background(), DomainOpportunities, "loc-1")
	require.NoError(t, err)
	assert.False(t, c.SelectAll)
	assert.Equal(t, []FilterOption{
		{ID: "pipeline:p1", Label: "Sales", Group: "Pipelines"},
		{ID: "stage:p1:s1", Label: "New", Group: "Sales Stages"},
		{ID: "stage:p1:s2", Label: "Won", Group: "Sales Stages"},
		{ID: "pipeline:p2", Label: "Renewals", Group: "Pipelines"},
	}, c.Items)
}

func TestFilterOptionsSelectAllAndGroups(t *testing.T) {
	f := newRouteFetcher()
	f.respond("/locations/loc-1/tags", clients.Response{"tags": list(obj("name", "vip"), obj("id", "t2", "name", "lead"))})
	f.respond("/locations/loc-1/customFields", clients.Response{"customFields": list(
		obj("id", "cf1", "name", "Budget", "dataType", "NUMERICAL"),
		obj("id", "cf2", "name", "Notes"),
	)})
	r := newTestRegistry(t, f)

	tags, err := r.FilterOptions(context.Background(), DomainTags, "loc-1")
	require.NoError(t, err)
	assert.True(t, tags.SelectAll)
	assert.Equal(t, "vip", tags.Items[0].ID)
	assert.Equal(t, "t2", tags.Items[1].ID)

	fields, err := r.FilterOptions(context.Background(), DomainCustomFields, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, "NUMERICAL", fields.Items[0].Group)
	assert.Equal(t, "General", fields.Items[1].Group)
}

func TestFilterOptionsFallbacks(t *testing.T) {
	r := newTestRegistry(t, newRouteFetcher())

	c, err := r.FilterOptions(context.Background(), DomainEmailTemplates, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, []FilterOption{{ID: "all", Label: "All Templates"}}, c.Items)

	c, err = r.FilterOptions(context.Background(), DomainSurveys, "loc-1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = r.FilterOptions(context.Background(), DomainWorkflows, "loc-1")
	require.Error(t, err)
}

func TestFilterOptionsStaticAndMissing(t *testing.T) {
	r := newTestRegistry(t, newRouteFetcher())

	c, err := r.FilterOptions(context.Background(), DomainTasks, "loc-1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)

	c, err = r.FilterOptions(context.Background(), DomainContacts, "loc-1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = r.FilterOptions(context.Background(), "nope", "loc-1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestCacheKeyIgnoresParamOrderAndEmpties(t *testing.T) {
	a := cacheKey(clients.Request{Path: "/calendars/", Params: clients.Params{"locationId": "l", "x": "1", "empty": ""}})
	b := cacheKey(clients.Request{Path: "/calendars/", Params: clients.Params{"x": "1", "locationId": "l"}})
	assert.Equal(t, a, b)
	assert.Equal(t, "/calendars/?locationId=l&x=1", a)
}

func TestCachingFetcherSkipsErrorsAndPosts(t *testing.T) {
	f := newRouteFetcher()
	f.respond("/users/", clients.Response{"users": list()})
	c, err := NewCachingFetcher(f, 4)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Do(ctx, clients.Request{Path: "/missing"})
	require.Error(t, err)
	_, err = c.Do(ctx, clients.Request{Path: "/missing"})
	require.Error(t, err)
	assert.Equal(t, 2, f.count("/missing"))

	_, _ = c.Do(ctx, clients.Request{Method: "POST", Path: "/users/"})
	_, _ = c.Do(ctx, clients.Request{Method: "POST", Path: "/users/"})
	assert.Equal(t, 2, f.count("/users/"))
	assert.Equal(t, 0, c.Len())
}
