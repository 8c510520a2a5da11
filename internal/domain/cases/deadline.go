package cases

import "perm_tracker/internal/domain/caldate"

// DeadlineType identifies a canonical deadline of a case.
type DeadlineType string

const (
	DeadlinePWDExpiration           DeadlineType = "pwd_expiration"
	DeadlineFilingWindowCloses      DeadlineType = "filing_window_closes"
	DeadlineRecruitmentWindowCloses DeadlineType = "recruitment_window_closes"
	DeadlineETA9089Expiration       DeadlineType = "eta9089_expiration"
	DeadlineI140Filing              DeadlineType = "i140_filing_deadline"
	DeadlineRFIDue                  DeadlineType = "rfi_due"
	DeadlineRFEDue                  DeadlineType = "rfe_due"
)

var deadlineLabels = map[DeadlineType]string{
	DeadlinePWDExpiration:           "PWD Expiration",
	DeadlineFilingWindowCloses:      "Filing Window Closes",
	DeadlineRecruitmentWindowCloses: "Recruitment Window Closes",
	DeadlineETA9089Expiration:       "ETA-9089 Expiration",
	DeadlineI140Filing:              "I-140 Filing Deadline",
	DeadlineRFIDue:                  "RFI Response Due",
	DeadlineRFEDue:                  "RFE Response Due",
}

// Label returns the human label, e.g. "PWD Expiration".
func (t DeadlineType) Label() string {
	if l, ok := deadlineLabels[t]; ok {
		return l
	}
	return "Deadline"
}

// Deadline pairs a canonical deadline type with its date.
type Deadline struct {
	Type DeadlineType `json:"type"`
	Date caldate.Date `json:"date"`
	// EntryID is set for RFI/RFE deadlines.
	EntryID string `json:"entryId,omitempty"`
}

// I140FilingWindowDays is how long an ETA-9089 certification stays valid for I-140 filing.
const I140FilingWindowDays = 180
