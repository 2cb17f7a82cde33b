package extract

import (
	"github.com/ajitpratap0/ghlexport/pkg/models"
)

// Domain names.
const (
	DomainLocations      = "locations"
	DomainContacts       = "contacts"
	DomainConversations  = "conversations"
	DomainCalendars      = "calendars"
	DomainOpportunities  = "opportunities"
	DomainWorkflows      = "workflows"
	DomainCampaigns      = "campaigns"
	DomainForms          = "forms"
	DomainPayments       = "payments"
	DomainUsers          = "users"
	DomainPipelines      = "pipelines"
	DomainTasks          = "tasks"
	DomainTags           = "tags"
	DomainCustomFields   = "custom_fields"
	DomainCustomValues   = "custom_values"
	DomainEmailTemplates = "email_templates"
	DomainAppointments   = "appointments"
	DomainSurveys        = "surveys"
	DomainMedia          = "media"
	DomainReporting      = "reporting"
)

// Shared upstream listings.
var (
	srcLocation     = Source{Path: "/locations/{locationId}"}
	srcCustomFields = underLocation("/customFields", "customFields")
	srcCustomValues = underLocation("/customValues", "customValues")
	srcTags         = underLocation("/tags", "tags")
	srcCalendars    = byLocation("/calendars/", "calendars")
	srcEvents       = byLocation("/calendars/events", "events")
	srcPipelines    = byLocation("/opportunities/pipelines", "pipelines")
	srcForms        = byLocation("/forms/", "forms")
	srcSurveys      = byLocation("/surveys/", "surveys")
	srcWorkflows    = byLocation("/workflows/", "workflows")
	srcTemplates    = byLocation("/emails/templates", "templates")
	srcDashboards   = byLocation("/reporting/", "dashboards")

	srcOpportunities = Source{Path: "/opportunities/search", LocationParam: "location_id", DataKey: "opportunities"}
)

// registration is one entry of the domain table.
type registration struct {
	extractor Extractor
	catalog   CatalogFunc
	isDefault bool
}

// domainTable builds every known domain in run order: the default set
// first, then domains runnable by name only.
func domainTable(d Deps) []registration {
	return []registration{
		{extractor: locations(d), isDefault: true},
		{extractor: NewPagedExtractor(d, DomainContacts, "All contacts", byLocation("/contacts/", "contacts")), isDefault: true},
		{extractor: conversations(d), catalog: staticCatalog(
			FilterOption{ID: "TYPE_EMAIL", Label: "Email"},
			FilterOption{ID: "TYPE_SMS", Label: "SMS"},
		), isDefault: true},
		{extractor: calendars(d), catalog: listCatalog{src: srcCalendars}.build, isDefault: true},
		{extractor: opportunities(d), catalog: pipelineCatalog(srcPipelines), isDefault: true},
		{extractor: filtered(NewPagedExtractor(d, DomainWorkflows, "Automation workflows", srcWorkflows)),
			catalog: listCatalog{src: srcWorkflows, groupField: "folder", defaultGroup: "Default"}.build, isDefault: true},
		{extractor: NewPagedExtractor(d, DomainCampaigns, "Marketing campaigns", byLocation("/campaigns/", "campaigns")), isDefault: true},
		{extractor: forms(d), catalog: listCatalog{src: srcForms, groupField: "folder", defaultGroup: "Default"}.build, isDefault: true},
		{extractor: payments(d), isDefault: true},
		{extractor: NewListExtractor(d, DomainUsers, "Team members", byLocation("/users/", "users")), isDefault: true},

		{extractor: filteredList(NewListExtractor(d, DomainPipelines, "Opportunity pipelines and stages", srcPipelines)),
			catalog: listCatalog{src: srcPipelines}.build},
		{extractor: tasks(d), catalog: staticCatalog(
			FilterOption{ID: "completed", Label: "Completed"},
			FilterOption{ID: "pending", Label: "Pending"},
		)},
		{extractor: filteredList(NewListExtractor(d, DomainTags, "Contact tags", srcTags)),
			catalog: listCatalog{src: srcTags, idFields: []string{"id", "name"}, selectAll: true}.build},
		{extractor: filteredList(NewListExtractor(d, DomainCustomFields, "Custom field definitions", srcCustomFields)),
			catalog: listCatalog{src: srcCustomFields, groupField: "dataType", defaultGroup: "General", selectAll: true}.build},
		{extractor: filteredList(NewListExtractor(d, DomainCustomValues, "Custom values", srcCustomValues)),
			catalog: listCatalog{src: srcCustomValues, selectAll: true}.build},
		{extractor: optionalList(filteredList(NewListExtractor(d, DomainEmailTemplates, "Email templates", srcTemplates))),
			catalog: listCatalog{src: srcTemplates, groupField: "folder", defaultGroup: "Default",
				fallback: []FilterOption{{ID: "all", Label: "All Templates"}}}.build},
		{extractor: appointments(d), catalog: listCatalog{src: srcCalendars}.build},
		{extractor: optionalList(filteredList(NewListExtractor(d, DomainSurveys, "Surveys", srcSurveys))),
			catalog: listCatalog{src: srcSurveys, groupField: "folder", defaultGroup: "Default", fallback: []FilterOption{}}.build},
		{extractor: optionalList(NewListExtractor(d, DomainMedia, "Media library files", byLocation("/medias/", "medias")))},
		{extractor: reporting(d), catalog: listCatalog{src: srcDashboards,
			fallback: []FilterOption{{ID: "default", Label: "Default Dashboard"}}}.build},
	}
}

func filtered(e *PagedExtractor) *PagedExtractor {
	e.Filter = FilterByID
	return e
}

func filteredList(e *ListExtractor) *ListExtractor {
	e.Filter = FilterByID
	return e
}

func optionalList(e *ListExtractor) *ListExtractor {
	e.Optional = true
	return e
}

// locations is the location record with its custom fields, custom values
// and tags; only the location itself is required.
func locations(d Deps) Extractor {
	return NewCompositeExtractor(d, DomainLocations, "Location details with custom fields, values and tags", CountFixed(1),
		Section{Key: "location", Source: NewObjectExtractor(d, "location", "", srcLocation, "location")},
		Section{Key: "customFields", Source: NewListExtractor(d, "customFields", "", srcCustomFields), Optional: true},
		Section{Key: "customValues", Source: NewListExtractor(d, "customValues", "", srcCustomValues), Optional: true},
		Section{Key: "tags", Source: NewListExtractor(d, "tags", "", srcTags), Optional: true},
	)
}

func conversations(d Deps) Extractor {
	e := NewPagedExtractor(d, DomainConversations, "Conversations across channels", byLocation("/conversations/search", "conversations"))
	e.Filter = FilterByField("type")
	return e
}

// calendars nests each calendar's events on the calendar.
func calendars(d Deps) Extractor {
	e := NewFanOutExtractor(d, DomainCalendars, "Calendars with their events", srcCalendars, srcEvents, "calendarId")
	e.Mode = AttachNest
	e.NestKey = "events"
	e.CountKey = "eventCount"
	e.ChildCountKey = models.DerivedTotalEvents
	e.SelectParents = FilterByID
	return e
}

// appointments flattens every calendar's events, labelled with the calendar.
func appointments(d Deps) Extractor {
	e := NewFanOutExtractor(d, DomainAppointments, "Calendar events across all calendars", srcCalendars, srcEvents, "calendarId")
	e.Mode = AttachFlatten
	e.LabelKey = "calendarName"
	e.CountChildren = true
	e.SelectParents = FilterByID
	return e
}

// opportunities searches each pipeline and reports both lists.
func opportunities(d Deps) Extractor {
	e := NewFanOutExtractor(d, DomainOpportunities, "Pipelines and their opportunities", srcPipelines, srcOpportunities, "pipeline_id")
	e.Mode = AttachFlatten
	e.LabelKey = "pipelineName"
	e.ParentSection = "pipelines"
	e.ChildSection = "opportunities"
	e.CountChildren = true
	e.ParentCountKey = models.DerivedPipelineCount
	e.SelectParents = selectPipelines
	e.FilterChildren = filterStages
	return e
}

// forms nests submissions on forms and on surveys; surveys are optional.
func forms(d Deps) Extractor {
	formSubs := NewFanOutExtractor(d, "forms", "", srcForms, byLocation("/forms/submissions", "submissions"), "formId")
	formSubs.Mode = AttachNest
	formSubs.NestKey = "submissions"
	formSubs.CountKey = "submissionCount"
	formSubs.SelectParents = FilterByID

	surveySubs := NewFanOutExtractor(d, "surveys", "", srcSurveys, byLocation("/surveys/submissions", "submissions"), "surveyId")
	surveySubs.Mode = AttachNest
	surveySubs.NestKey = "submissions"
	surveySubs.CountKey = "submissionCount"

	return NewCompositeExtractor(d, DomainForms, "Forms and surveys with their submissions", CountOf("forms"),
		Section{Key: "forms", Source: formSubs, Filtered: true},
		Section{Key: "surveys", Source: surveySubs, Optional: true, DerivedKey: models.DerivedSurveyCount},
	)
}

// payments gathers the four commerce listings, each best effort.
func payments(d Deps) Extractor {
	paged := func(key, path string) Section {
		return Section{Key: key, Source: NewPagedExtractor(d, key, "", byLocation(path, key)), Optional: true}
	}
	return NewCompositeExtractor(d, DomainPayments, "Orders, subscriptions, transactions and invoices", CountSum,
		paged("orders", "/payments/orders"),
		paged("subscriptions", "/payments/subscriptions"),
		paged("transactions", "/payments/transactions"),
		paged("invoices", "/invoices/"),
	)
}

func tasks(d Deps) Extractor {
	e := NewPagedExtractor(d, DomainTasks, "Contact tasks", byLocation("/contacts/tasks", "tasks"))
	e.Optional = true
	e.Filter = FilterTaskStatus
	return e
}

// reporting summarizes the location; it is empty when unavailable.
func reporting(d Deps) Extractor {
	return NewCompositeExtractor(d, DomainReporting, "Location summary for reporting", CountOf("locationSummary"),
		Section{Key: "locationSummary", Source: NewObjectExtractor(d, "locationSummary", "", srcLocation, "location"), Optional: true, Omit: true},
	)
}
