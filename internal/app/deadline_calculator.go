// internal/app/deadline_calculator.go
package app

import (
	"sort"

	"perm_tracker/internal/domain/caldate"
	"perm_tracker/internal/domain/cases"
)

const (
	rfiResponseDays          = 30
	filingWindowOpensAfter   = 30
	filingWindowClosesAfter  = 180
	recruitmentWindowDays    = 150
	recruitmentPWDBufferDays = 30
)

// DerivedFields are the persisted fields computed from a case's raw dates.
type DerivedFields struct {
	RecruitmentStartDate    caldate.Date
	RecruitmentEndDate      caldate.Date
	FilingWindowOpens       caldate.Date
	FilingWindowCloses      caldate.Date
	RecruitmentWindowCloses caldate.Date
}

// DeriveCaseFields computes the recruitment and filing window bounds.
// It is pure and must run on every write that touches its inputs.
func DeriveCaseFields(c *cases.Case) DerivedFields {
	var d DerivedFields

	d.RecruitmentStartDate = caldate.Min(
		c.JobOrderStartDate,
		c.SundayAdFirstDate,
		c.SundayAdSecondDate,
		c.AdditionalRecruitmentStartDate,
	)
	d.RecruitmentEndDate = caldate.Max(
		c.JobOrderEndDate,
		c.SundayAdFirstDate,
		c.SundayAdSecondDate,
		c.AdditionalRecruitmentEndDate,
	)

	d.FilingWindowOpens = d.RecruitmentEndDate.AddDays(filingWindowOpensAfter)
	d.FilingWindowCloses = caldate.Min(
		d.RecruitmentStartDate.AddDays(filingWindowClosesAfter),
		c.PWDExpirationDate,
	)
	d.RecruitmentWindowCloses = caldate.Min(
		d.RecruitmentStartDate.AddDays(recruitmentWindowDays),
		c.PWDExpirationDate.AddDays(-recruitmentPWDBufferDays),
	)
	return d
}

// ApplyDerivedFields recomputes every derived field of c in place, including
// RFI due dates. Caller-supplied values for those fields are discarded.
func ApplyDerivedFields(c *cases.Case) {
	d := DeriveCaseFields(c)
	c.RecruitmentStartDate = d.RecruitmentStartDate
	c.RecruitmentEndDate = d.RecruitmentEndDate
	c.FilingWindowOpens = d.FilingWindowOpens
	c.FilingWindowCloses = d.FilingWindowCloses
	c.RecruitmentWindowCloses = d.RecruitmentWindowCloses
	NormalizeRFIEntries(c.RFIEntries)
}

// NormalizeRFIEntries forces every RFI due date to receivedDate + 30 days.
func NormalizeRFIEntries(entries cases.RFIEntries) {
	for i := range entries {
		entries[i].ResponseDueDate = entries[i].ReceivedDate.AddDays(rfiResponseDays)
	}
}

// I140FilingDeadline is 180 days after ETA-9089 certification while the I-140
// has not been filed.
func I140FilingDeadline(c *cases.Case) caldate.Date {
	if c.ETA9089CertificationDate.IsZero() || !c.I140FilingDate.IsZero() {
		return caldate.Date{}
	}
	return c.ETA9089CertificationDate.AddDays(cases.I140FilingWindowDays)
}

// OpenDeadlines lists every currently-open deadline of c, sorted by date.
// Filing and recruitment windows only count until ETA-9089 is filed.
func OpenDeadlines(c *cases.Case) []cases.Deadline {
	var out []cases.Deadline
	add := func(t cases.DeadlineType, d caldate.Date, entryID string) {
		if d.IsZero() {
			return
		}
		out = append(out, cases.Deadline{Type: t, Date: d, EntryID: entryID})
	}

	add(cases.DeadlinePWDExpiration, c.PWDExpirationDate, "")
	if c.ETA9089FilingDate.IsZero() {
		add(cases.DeadlineFilingWindowCloses, c.FilingWindowCloses, "")
		add(cases.DeadlineRecruitmentWindowCloses, c.RecruitmentWindowCloses, "")
	}
	add(cases.DeadlineETA9089Expiration, c.ETA9089ExpirationDate, "")
	add(cases.DeadlineI140Filing, I140FilingDeadline(c), "")
	for _, e := range c.RFIEntries {
		if e.Open() {
			add(cases.DeadlineRFIDue, e.ResponseDueDate, e.ID)
		}
	}
	for _, e := range c.RFEEntries {
		if e.Open() {
			add(cases.DeadlineRFEDue, e.ResponseDueDate, e.ID)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// NextDeadline returns the earliest open deadline dated today or later.
func NextDeadline(c *cases.Case, today caldate.Date) (cases.Deadline, bool) {
	for _, d := range OpenDeadlines(c) {
		if !d.Date.Before(today) {
			return d, true
		}
	}
	return cases.Deadline{}, false
}
