package service

import (
	"context"
	"testing"
	"time"

	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/events"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

func newVisitFixture(accounts ...domain.Account) (*VisitService, *memEventRepo, *memTicketRepo, *recordingDispatcher) {
	visits := newMemEventRepo()
	tickets := newMemTicketRepo()
	dispatcher := &recordingDispatcher{}
	svc := NewVisitService(VisitDependencies{
		EventRepo:   visits,
		TicketRepo:  tickets,
		AccountRepo: newMemAccountRepo(accounts...),
		Dispatcher:  dispatcher,
	})
	svc.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc, visits, tickets, dispatcher
}

func TestPlanContractVisitsAdminOnly(t *testing.T) {
	svc, _, _, _ := newVisitFixture()
	_, err := svc.PlanContractVisits(context.Background(), engineer("eng-1"), ContractPlanInput{ClientCompany: "Acme"})
	assertCode(t, err, "UNAUTHORIZED")
}

func TestPlanContractVisitsValidation(t *testing.T) {
	svc, _, _, _ := newVisitFixture()

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.PlanContractVisits(context.Background(), admin(), ContractPlanInput{
		ClientCompany: "Acme", ContractStart: start, ContractEnd: end, NumberOfVisits: 2,
	})
	assertCode(t, err, "INVALID_RANGE")

	_, err = svc.PlanContractVisits(context.Background(), admin(), ContractPlanInput{
		ClientCompany: "Acme", ContractStart: end, ContractEnd: start, NumberOfVisits: 0,
	})
	assertCode(t, err, "INVALID_COUNT")
}

func TestPlanContractVisitsDistributesAcrossWindow(t *testing.T) {
	eng := engineer("eng-1")
	svc, visits, _, dispatcher := newVisitFixture(*eng)

	created, err := svc.PlanContractVisits(context.Background(), admin(), ContractPlanInput{
		ClientCompany:       "Acme",
		TeamName:            "North",
		ResponsibleEngineer: strPtr("eng-1"),
		ContractStart:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ContractEnd:         time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		NumberOfVisits:      3,
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created %d visits, want 3", len(created))
	}
	if created[0].Title != "Maintenance Visit 1/3 - Acme" {
		t.Fatalf("title = %q", created[0].Title)
	}
	for i, v := range created {
		if v.EventType != domain.EventTypeSingle {
			t.Fatalf("visit %d type = %s, want SINGLE", i, v.EventType)
		}
		if v.StartDate.Hour() != 9 || v.EndDate.Hour() != 17 {
			t.Fatalf("visit %d window %d-%d, want 9-17", i, v.StartDate.Hour(), v.EndDate.Hour())
		}
		if v.StartDate.Weekday() == time.Friday {
			t.Fatalf("visit %d scheduled on a Friday", i)
		}
		if v.ResponsibleEngineer == nil || *v.ResponsibleEngineer != "eng-1" {
			t.Fatalf("visit %d engineer = %v", i, v.ResponsibleEngineer)
		}
		if i > 0 && !created[i].StartDate.After(created[i-1].StartDate) {
			t.Fatalf("visit dates not ascending at %d", i)
		}
	}
	if len(visits.visits) != 3 {
		t.Fatalf("persisted %d visits", len(visits.visits))
	}
	for _, typ := range dispatcher.types() {
		if typ != events.EventVisitCreated {
			t.Fatalf("unexpected event %s", typ)
		}
	}
}

func TestPlanContractVisitsPartialFailureNamesCreatedVisits(t *testing.T) {
	svc, visits, _, dispatcher := newVisitFixture()
	visits.failCreateAt = 3

	created, err := svc.PlanContractVisits(context.Background(), admin(), ContractPlanInput{
		ClientCompany:  "Acme",
		ContractStart:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ContractEnd:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		NumberOfVisits: 3,
	})
	assertCode(t, err, "PARTIAL_FAILURE")
	if len(created) != 2 {
		t.Fatalf("returned %d created visits, want the 2 that persisted", len(created))
	}
	de := apperrors.ToDomainError(err)
	ids, ok := de.Details["created_visit_ids"].([]string)
	if !ok || len(ids) != 2 || ids[0] != created[0].ID || ids[1] != created[1].ID {
		t.Fatalf("created_visit_ids = %v, want ids of the persisted visits", de.Details["created_visit_ids"])
	}
	if len(visits.visits) != 2 {
		t.Fatalf("persisted %d visits, want 2", len(visits.visits))
	}
	// no event for the visit that never existed
	if got := dispatcher.types(); len(got) != 2 {
		t.Fatalf("published %d events, want 2: %v", len(got), got)
	}
}

func TestCrossServiceWritesSerializePerTicket(t *testing.T) {
	tickets := newMemTicketRepo()
	locker := NewEntityLocker()
	dispatcher := &recordingDispatcher{}
	ticketSvc := NewTicketService(TicketDependencies{
		TicketRepo:    tickets,
		MessageRepo:   &memMessageRepo{},
		ViewStateRepo: newMemViewStateRepo(),
		AccountRepo:   newMemAccountRepo(),
		Sequence:      &fakeSequence{},
		Dispatcher:    dispatcher,
		Locker:        locker,
	})
	visitSvc := NewVisitService(VisitDependencies{
		EventRepo:   newMemEventRepo(),
		TicketRepo:  tickets,
		AccountRepo: newMemAccountRepo(),
		Dispatcher:  dispatcher,
		Locker:      locker,
	})
	id := tickets.add(domain.Ticket{Title: "Shared", Status: domain.TicketStatusOpen})

	// Hold the ticket's lock so both writers queue behind it.
	locker.Lock(id)
	done := make(chan error, 2)
	go func() {
		_, err := ticketSvc.ChangeStatus(context.Background(), admin(), id, domain.TicketStatusInProgress)
		done <- err
	}()
	go func() {
		_, err := visitSvc.ComposeGroupEvent(context.Background(), admin(), GroupEventInput{
			TicketIDs: []string{id},
			VisitDate: time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC),
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if n := tickets.updateCount(); n != 0 {
		t.Fatalf("a ticket write slipped past the held entity lock: %d updates", n)
	}

	locker.Unlock(id)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent writer: %v", err)
		}
	}

	// Both read-modify-writes ran in sequence, so neither is lost.
	final := tickets.tickets[id]
	if final.Status != domain.TicketStatusInProgress {
		t.Fatalf("status write lost, status = %s", final.Status)
	}
	if !final.IsDateSet || final.ScheduledDate == nil {
		t.Fatal("visit date write lost")
	}
}

func TestComposeGroupEventValidation(t *testing.T) {
	svc, _, _, _ := newVisitFixture()

	_, err := svc.ComposeGroupEvent(context.Background(), admin(), GroupEventInput{
		VisitDate: time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC),
	})
	assertCode(t, err, "EMPTY_SELECTION")

	_, err = svc.ComposeGroupEvent(context.Background(), admin(), GroupEventInput{
		TicketIDs: []string{"missing"},
		VisitDate: time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC),
	})
	assertCode(t, err, "NOT_FOUND")

	_, err = svc.ComposeGroupEvent(context.Background(), client("Acme"), GroupEventInput{
		TicketIDs: []string{"t"},
		VisitDate: time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC),
	})
	assertCode(t, err, "FORBIDDEN")
}

func TestComposeGroupEventSingleTicketKeepsTitle(t *testing.T) {
	svc, _, tickets, _ := newVisitFixture()
	id := tickets.add(domain.Ticket{Title: "Boiler leak", Company: "Acme", Location: "Plant 4"})

	visit, err := svc.ComposeGroupEvent(context.Background(), admin(), GroupEventInput{
		TicketIDs: []string{id},
		VisitDate: time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC), // Monday
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if visit.Title != "Boiler leak" {
		t.Fatalf("title = %q, want the ticket title", visit.Title)
	}
	if visit.EventType != domain.EventTypeSingle {
		t.Fatalf("type = %s, want SINGLE", visit.EventType)
	}
	if visit.Location != "Plant 4" || visit.ProjectName != "Acme" {
		t.Fatalf("location/project = %q/%q", visit.Location, visit.ProjectName)
	}
}

func TestComposeGroupEventMergesFieldsAndSkipsFriday(t *testing.T) {
	svc, _, tickets, _ := newVisitFixture()
	a := tickets.add(domain.Ticket{Title: "One", Company: "Acme", Location: "North"})
	b := tickets.add(domain.Ticket{Title: "Two", Company: "Globex", Location: "South"})
	c := tickets.add(domain.Ticket{Title: "Three", Company: "Acme", Location: "North"})

	friday := time.Date(2026, 4, 17, 0, 0, 0, 0, time.UTC)
	visit, err := svc.ComposeGroupEvent(context.Background(), admin(), GroupEventInput{
		TicketIDs: []string{a, b, c},
		TeamName:  "North Crew",
		VisitDate: friday,
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if visit.Title != "Group Event - 3 Tickets" {
		t.Fatalf("title = %q", visit.Title)
	}
	if visit.EventType != domain.EventTypeGroup {
		t.Fatalf("type = %s, want GROUP", visit.EventType)
	}
	// duplicates collapse, first-seen order is kept
	if visit.Location != "North, South" {
		t.Fatalf("merged location = %q", visit.Location)
	}
	if visit.ProjectName != "Acme, Globex" {
		t.Fatalf("merged project = %q", visit.ProjectName)
	}
	if wd := visit.StartDate.Weekday(); wd == time.Friday {
		t.Fatal("visit landed on a Friday")
	}
	if visit.StartDate.Day() != 20 {
		t.Fatalf("Friday input should move to Monday the 20th, got day %d", visit.StartDate.Day())
	}

	for _, id := range []string{a, b, c} {
		ticket := tickets.tickets[id]
		if !ticket.IsDateSet || ticket.ScheduledDate == nil {
			t.Fatalf("member ticket %s date not set", id)
		}
		if ticket.ScheduledDate.Day() != 20 {
			t.Fatalf("member ticket %s scheduled on day %d", id, ticket.ScheduledDate.Day())
		}
	}
}

func TestComposeGroupEventUnknownDefaults(t *testing.T) {
	svc, _, tickets, _ := newVisitFixture()
	id := tickets.add(domain.Ticket{Title: "Bare"})

	visit, err := svc.ComposeGroupEvent(context.Background(), admin(), GroupEventInput{
		TicketIDs: []string{id},
		VisitDate: time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if visit.Location != "Unknown Location" {
		t.Fatalf("location = %q", visit.Location)
	}
	if visit.ProjectName != "Unknown Project" {
		t.Fatalf("project = %q", visit.ProjectName)
	}
}

func TestComposeGroupEventEngineerTakesResponsibility(t *testing.T) {
	eng := engineer("eng-1")
	svc, _, tickets, _ := newVisitFixture(*eng)
	plain := tickets.add(domain.Ticket{Title: "Plain", ResponsibleEngineer: strPtr("eng-1")})
	pending := tickets.add(domain.Ticket{Title: "Pending", ResponsibleEngineer: strPtr("eng-1"), TransferEngineer: strPtr("eng-2")})

	visit, err := svc.ComposeGroupEvent(context.Background(), eng, GroupEventInput{
		TicketIDs: []string{plain, pending},
		VisitDate: time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if visit.ResponsibleEngineer == nil || *visit.ResponsibleEngineer != "eng-1" {
		t.Fatalf("visit engineer = %v", visit.ResponsibleEngineer)
	}
	if got := tickets.tickets[plain].ResponsibleEngineer; got == nil || *got != "eng-1" {
		t.Fatalf("plain ticket engineer = %v", got)
	}
	// a pending transfer is never silently overridden by grouping
	if got := tickets.tickets[pending].TransferEngineer; got == nil || *got != "eng-2" {
		t.Fatalf("pending transfer lost: %v", got)
	}
}

func TestComposeGroupEventPartialFailureNamesTickets(t *testing.T) {
	svc, _, tickets, _ := newVisitFixture()
	good := tickets.add(domain.Ticket{Title: "Good"})
	bad := tickets.add(domain.Ticket{Title: "Bad"})
	tickets.failUpdate = map[string]bool{bad: true}

	visit, err := svc.ComposeGroupEvent(context.Background(), admin(), GroupEventInput{
		TicketIDs: []string{good, bad},
		VisitDate: time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC),
	})
	assertCode(t, err, "PARTIAL_FAILURE")
	if visit == nil || visit.ID == "" {
		t.Fatal("the event itself must survive a member-ticket failure")
	}
	de := apperrors.ToDomainError(err)
	failed, ok := de.Details["failed_ticket_ids"].([]string)
	if !ok || len(failed) != 1 || failed[0] != bad {
		t.Fatalf("failed_ticket_ids = %v, want [%s]", de.Details["failed_ticket_ids"], bad)
	}
	if !tickets.tickets[good].IsDateSet {
		t.Fatal("successful member ticket should keep its date")
	}
}

func TestResolveVisitAuthorityAndIdempotence(t *testing.T) {
	svc, visits, tickets, dispatcher := newVisitFixture()
	memberID := tickets.add(domain.Ticket{Title: "Member", Status: domain.TicketStatusOpen})

	visit := domain.Event{
		Title:               "Group Event - 1 Tickets",
		ResponsibleEngineer: strPtr("eng-1"),
		TicketIDs:           []string{memberID},
	}
	if err := visits.Create(context.Background(), &visit); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := svc.ResolveVisit(context.Background(), engineer("eng-9"), visit.ID, nil)
	assertCode(t, err, "UNAUTHORIZED")

	url := "https://reports.example.com/v1.pdf"
	resolved, err := svc.ResolveVisit(context.Background(), engineer("eng-1"), visit.ID, &url)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.Resolved || resolved.ReportURL == nil || *resolved.ReportURL != url {
		t.Fatalf("resolved = %+v", resolved)
	}

	// member tickets resolve through their own state machine
	if got := tickets.tickets[memberID].Status; got != domain.TicketStatusOpen {
		t.Fatalf("resolve mutated member ticket status to %s", got)
	}

	before := visits.updates
	if _, err := svc.ResolveVisit(context.Background(), engineer("eng-1"), visit.ID, &url); err != nil {
		t.Fatalf("repeat resolve: %v", err)
	}
	if visits.updates != before {
		t.Fatal("repeat resolve with same url must not rewrite")
	}
	published := dispatcher.types()
	resolvedEvents := 0
	for _, typ := range published {
		if typ == events.EventVisitResolved {
			resolvedEvents++
		}
	}
	if resolvedEvents != 1 {
		t.Fatalf("visit_resolved published %d times, want 1", resolvedEvents)
	}
}

func TestListVisitsScopesEngineers(t *testing.T) {
	svc, visits, _, _ := newVisitFixture()
	mine := domain.Event{Title: "Mine", ResponsibleEngineer: strPtr("eng-1")}
	other := domain.Event{Title: "Other", ResponsibleEngineer: strPtr("eng-2")}
	_ = visits.Create(context.Background(), &mine)
	_ = visits.Create(context.Background(), &other)

	rows, err := svc.ListVisits(context.Background(), engineer("eng-1"), VisitListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].Title != "Mine" {
		t.Fatalf("engineer sees %d visits", len(rows))
	}

	all, err := svc.ListVisits(context.Background(), admin(), VisitListFilter{})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin sees %d visits, want 2", len(all))
	}
}
