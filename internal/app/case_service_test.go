package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"perm_tracker/internal/app"
	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/notification"
	"perm_tracker/internal/infra/identity"
	"perm_tracker/internal/infra/logger"
	"perm_tracker/internal/infra/memory"
)

type CaseServiceSuite struct {
	suite.Suite
	alice    context.Context
	bob      context.Context
	clock    *fixedClock
	cases    *memory.CaseRepository
	notifs   *memory.NotificationRepository
	mailer   *recordingMailer
	deferrer *inlineDeferrer
	svc      *app.CaseService
}

func TestCaseServiceSuite(t *testing.T) {
	suite.Run(t, new(CaseServiceSuite))
}

func (s *CaseServiceSuite) SetupTest() {
	s.alice = identity.WithUser(context.Background(), "alice")
	s.bob = identity.WithUser(context.Background(), "bob")
	s.clock = newClock(sweepTime)
	s.cases = memory.NewCaseRepository()
	s.notifs = memory.NewNotificationRepository()
	users := memory.NewUserRepository()
	prefs := memory.NewPreferencesRepository(users)
	s.mailer = &recordingMailer{}
	s.deferrer = &inlineDeferrer{}

	notifications := app.NewNotificationService(s.cases, s.notifs, prefs, s.mailer, s.clock, nil, logger.Discard(), app.DefaultNotificationConfig())
	s.svc = app.NewCaseService(s.cases, notifications, identity.ContextProvider{}, s.deferrer, s.clock, logger.Discard())
}

func validInput() cases.Case {
	return cases.Case{
		EmployerName:          "Acme Corp",
		BeneficiaryIdentifier: "J. Doe",
		JobOrderStartDate:     date("2025-01-05"),
		JobOrderEndDate:       date("2025-02-05"),
		PWDExpirationDate:     date("2025-04-30"),
	}
}

func (s *CaseServiceSuite) TestCreateCase() {
	s.Run("requires authentication", func() {
		_, err := s.svc.CreateCase(context.Background(), validInput())
		s.ErrorIs(err, app.ErrUnauthenticated)
	})

	s.Run("validates required fields", func() {
		in := validInput()
		in.EmployerName = " "
		_, err := s.svc.CreateCase(s.alice, in)
		var verr *app.ValidationError
		s.Require().ErrorAs(err, &verr)
		s.Equal("employerName", verr.Field)

		in = validInput()
		in.CaseStatus = "abandoned"
		_, err = s.svc.CreateCase(s.alice, in)
		s.Require().ErrorAs(err, &verr)
		s.Equal("caseStatus", verr.Field)
	})

	s.Run("stores derived fields and ignores caller-supplied ones", func() {
		in := validInput()
		in.UserID = "mallory"
		in.FilingWindowCloses = date("2030-01-01")

		c, err := s.svc.CreateCase(s.alice, in)
		s.Require().NoError(err)
		s.NotEmpty(c.ID)
		s.Equal("alice", c.UserID)
		s.Equal(cases.StatusPWD, c.CaseStatus)
		s.Equal("2025-04-30", c.FilingWindowCloses.String())
		s.Equal("2025-03-31", c.RecruitmentWindowCloses.String())
		s.Equal("2025-03-07", c.FilingWindowOpens.String())

		stored, err := s.cases.GetByID(context.Background(), c.ID)
		s.Require().NoError(err)
		s.Equal(c.FilingWindowCloses, stored.FilingWindowCloses)
	})
}

func (s *CaseServiceSuite) TestRFIEntriesAreNormalizedAndAlerted() {
	in := validInput()
	in.RFIEntries = cases.RFIEntries{{ReceivedDate: date("2025-06-01"), ResponseDueDate: date("2025-12-31")}}

	c, err := s.svc.CreateCase(s.alice, in)
	s.Require().NoError(err)
	s.Require().Len(c.RFIEntries, 1)
	s.NotEmpty(c.RFIEntries[0].ID)
	s.Equal("2025-07-01", c.RFIEntries[0].ResponseDueDate.String())

	all := s.notifs.All()
	s.Require().Len(all, 1)
	s.Equal(notification.TypeRFIAlert, all[0].Type)
	s.Equal(cases.DeadlineRFIDue, all[0].DeadlineType)
	s.Nil(all[0].DaysUntilDeadline, "write-time alerts stay outside the reminder key")
	s.Equal(notification.PriorityHigh, all[0].Priority)
	s.Empty(s.deferrer.errs)

	s.Run("unchanged entries are not alerted again", func() {
		update := *c
		update.PositionTitle = "Engineer"
		_, err := s.svc.UpdateCase(s.alice, c.ID, update)
		s.Require().NoError(err)
		s.Len(s.notifs.All(), 1)
	})

	s.Run("entries resent without ids keep their ids", func() {
		update := *c
		update.RFIEntries = cases.RFIEntries{{ReceivedDate: date("2025-06-01")}}
		updated, err := s.svc.UpdateCase(s.alice, c.ID, update)
		s.Require().NoError(err)
		s.Require().Len(updated.RFIEntries, 1)
		s.Equal(c.RFIEntries[0].ID, updated.RFIEntries[0].ID)
		s.Len(s.notifs.All(), 1)
	})

	s.Run("a genuinely new entry is alerted", func() {
		update := *c
		update.RFIEntries = cases.RFIEntries{
			{ReceivedDate: date("2025-06-01")},
			{ReceivedDate: date("2025-06-02")},
		}
		updated, err := s.svc.UpdateCase(s.alice, c.ID, update)
		s.Require().NoError(err)
		s.Require().Len(updated.RFIEntries, 2)
		s.Equal(c.RFIEntries[0].ID, updated.RFIEntries[0].ID)
		s.NotEqual(c.RFIEntries[0].ID, updated.RFIEntries[1].ID)
		s.Len(s.notifs.All(), 2)
	})
}

func (s *CaseServiceSuite) TestRFEEntriesResentWithoutIDs() {
	in := validInput()
	in.RFEEntries = cases.RFEEntries{{ReceivedDate: date("2025-06-01"), ResponseDueDate: date("2025-08-15")}}
	c, err := s.svc.CreateCase(s.alice, in)
	s.Require().NoError(err)
	s.Require().Len(s.notifs.All(), 1)

	update := *c
	update.RFEEntries = cases.RFEEntries{{ReceivedDate: date("2025-06-01"), ResponseDueDate: date("2025-08-15")}}
	updated, err := s.svc.UpdateCase(s.alice, c.ID, update)
	s.Require().NoError(err)
	s.Equal(c.RFEEntries[0].ID, updated.RFEEntries[0].ID)
	s.Len(s.notifs.All(), 1)

	s.Run("a moved due date counts as a new entry", func() {
		update := *updated
		update.RFEEntries = cases.RFEEntries{{ReceivedDate: date("2025-06-01"), ResponseDueDate: date("2025-09-01")}}
		moved, err := s.svc.UpdateCase(s.alice, c.ID, update)
		s.Require().NoError(err)
		s.NotEqual(c.RFEEntries[0].ID, moved.RFEEntries[0].ID)
		s.Len(s.notifs.All(), 2)
	})
}

func (s *CaseServiceSuite) TestUpdateCase() {
	c, err := s.svc.CreateCase(s.alice, validInput())
	s.Require().NoError(err)

	s.Run("other users are denied", func() {
		_, err := s.svc.UpdateCase(s.bob, c.ID, validInput())
		s.ErrorIs(err, app.ErrCaseAccessDenied)
	})

	s.Run("missing cases are denied", func() {
		_, err := s.svc.UpdateCase(s.alice, "missing", validInput())
		s.ErrorIs(err, app.ErrCaseAccessDenied)
	})

	s.Run("status change is notified", func() {
		s.clock.Set(sweepTime.Add(time.Hour))
		in := validInput()
		in.CaseStatus = cases.StatusRecruitment

		updated, err := s.svc.UpdateCase(s.alice, c.ID, in)
		s.Require().NoError(err)
		s.Equal(c.CreatedAt, updated.CreatedAt)
		s.Equal(sweepTime.Add(time.Hour), updated.UpdatedAt)

		all := s.notifs.All()
		s.Require().Len(all, 1)
		s.Equal(notification.TypeStatusChange, all[0].Type)
		s.Equal("Case Status Updated to Recruitment", all[0].Title)
		s.Len(s.mailer.Sent(), 1)
	})
}

func (s *CaseServiceSuite) TestGetAndListCases() {
	mine, err := s.svc.CreateCase(s.alice, validInput())
	s.Require().NoError(err)
	_, err = s.svc.CreateCase(s.bob, validInput())
	s.Require().NoError(err)

	got, err := s.svc.GetCase(s.alice, mine.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(mine.ID, got.ID)

	got, err = s.svc.GetCase(s.bob, mine.ID)
	s.Require().NoError(err)
	s.Nil(got)

	got, err = s.svc.GetCase(context.Background(), mine.ID)
	s.Require().NoError(err)
	s.Nil(got)

	list, err := s.svc.ListCases(s.alice)
	s.Require().NoError(err)
	s.Len(list, 1)

	list, err = s.svc.ListCases(context.Background())
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *CaseServiceSuite) TestDeleteCases() {
	a, err := s.svc.CreateCase(s.alice, validInput())
	s.Require().NoError(err)
	b, err := s.svc.CreateCase(s.alice, validInput())
	s.Require().NoError(err)
	foreign, err := s.svc.CreateCase(s.bob, validInput())
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteCase(s.alice, a.ID))
	s.ErrorIs(s.svc.DeleteCase(s.alice, a.ID), app.ErrCaseAccessDenied, "already deleted")

	got, err := s.svc.GetCase(s.alice, a.ID)
	s.Require().NoError(err)
	s.Nil(got)

	res, err := s.svc.BulkDeleteCases(s.alice, []string{b.ID, foreign.ID})
	s.Require().NoError(err)
	s.Equal(1, res.Succeeded)
	s.Equal(1, res.Failed)
	s.Contains(res.Errors, foreign.ID)

	list, err := s.svc.ListCases(s.alice)
	s.Require().NoError(err)
	s.Empty(list)

	_, err = s.svc.BulkDeleteCases(context.Background(), []string{b.ID})
	s.ErrorIs(err, app.ErrUnauthenticated)
}

func (s *CaseServiceSuite) TestDeadlineSummary() {
	in := validInput()
	in.JobOrderStartDate = date("2025-05-01")
	in.JobOrderEndDate = date("2025-05-31")
	in.PWDExpirationDate = date("2025-06-05")
	in.ETA9089ExpirationDate = date("2025-06-01")
	in.RFEEntries = cases.RFEEntries{{ReceivedDate: date("2025-05-20"), ResponseDueDate: date("2025-06-20")}}
	c, err := s.svc.CreateCase(s.alice, in)
	s.Require().NoError(err)

	closed := validInput()
	closed.CaseStatus = cases.StatusClosed
	closed.PWDExpirationDate = date("2025-06-03")
	_, err = s.svc.CreateCase(s.alice, closed)
	s.Require().NoError(err)

	sum, err := s.svc.DeadlineSummary(s.alice)
	s.Require().NoError(err)
	// Today is 2025-06-02. The recruitment window closed on 2025-05-06.
	s.Equal(2, sum.Overdue)
	s.Equal(2, sum.DueThisWeek)
	s.Equal(1, sum.DueThisMonth)
	s.Equal(0, sum.Upcoming)
	s.Require().NotNil(sum.Next)
	s.Equal(cases.DeadlinePWDExpiration, sum.Next.Type)
	s.Equal(c.ID, sum.NextCaseID)
}
