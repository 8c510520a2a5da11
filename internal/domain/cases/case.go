// internal/domain/cases/case.go
package cases

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"perm_tracker/internal/domain/caldate"
)

// Status is the PERM stage a case is currently in.
type Status string

const (
	StatusPWD         Status = "pwd"
	StatusRecruitment Status = "recruitment"
	StatusETA9089     Status = "eta9089"
	StatusI140        Status = "i140"
	StatusClosed      Status = "closed"
)

// Valid reports whether s is a known case status.
func (s Status) Valid() bool {
	switch s {
	case StatusPWD, StatusRecruitment, StatusETA9089, StatusI140, StatusClosed:
		return true
	}
	return false
}

// ProgressStatus tracks work within the current stage.
type ProgressStatus string

const (
	ProgressWorking        ProgressStatus = "working"
	ProgressWaitingIntake  ProgressStatus = "waiting_intake"
	ProgressFiled          ProgressStatus = "filled"
	ProgressApproved       ProgressStatus = "approved"
	ProgressUnderReview    ProgressStatus = "under_review"
	ProgressRFIRFEReceived ProgressStatus = "rfi_rfe"
)

// RFIEntry is a DOL Request for Information. ResponseDueDate is always
// ReceivedDate + 30 days and is not user-editable.
type RFIEntry struct {
	ID                    string       `json:"id"`
	Title                 string       `json:"title,omitempty"`
	ReceivedDate          caldate.Date `json:"receivedDate"`
	ResponseDueDate       caldate.Date `json:"responseDueDate"`
	ResponseSubmittedDate caldate.Date `json:"responseSubmittedDate"`
}

// Open reports whether a response is still outstanding.
func (e RFIEntry) Open() bool { return e.ResponseSubmittedDate.IsZero() }

// RFEEntry is a USCIS Request for Evidence. ResponseDueDate is user-supplied.
type RFEEntry struct {
	ID                    string       `json:"id"`
	Title                 string       `json:"title,omitempty"`
	ReceivedDate          caldate.Date `json:"receivedDate"`
	ResponseDueDate       caldate.Date `json:"responseDueDate"`
	ResponseSubmittedDate caldate.Date `json:"responseSubmittedDate"`
}

func (e RFEEntry) Open() bool { return e.ResponseSubmittedDate.IsZero() }

// RFIEntries is stored as a JSONB column.
type RFIEntries []RFIEntry

func (r RFIEntries) Value() (driver.Value, error) { return marshalEntries(r) }
func (r *RFIEntries) Scan(src any) error          { return unmarshalEntries(src, r) }

// RFEEntries is stored as a JSONB column.
type RFEEntries []RFEEntry

func (r RFEEntries) Value() (driver.Value, error) { return marshalEntries(r) }
func (r *RFEEntries) Scan(src any) error          { return unmarshalEntries(src, r) }

func marshalEntries(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal entries: %w", err)
	}
	return b, nil
}

func unmarshalEntries(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into entries", src)
	}
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, dst)
}

// Case is one immigration matter owned by a single user.
type Case struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"userId"`
	EmployerName          string         `json:"employerName"`
	BeneficiaryIdentifier string         `json:"beneficiaryIdentifier"`
	PositionTitle         string         `json:"positionTitle"`
	CaseStatus            Status         `json:"caseStatus"`
	ProgressStatus        ProgressStatus `json:"progressStatus"`

	PWDFilingDate        caldate.Date `json:"pwdFilingDate"`
	PWDDeterminationDate caldate.Date `json:"pwdDeterminationDate"`
	PWDExpirationDate    caldate.Date `json:"pwdExpirationDate"`

	JobOrderStartDate              caldate.Date `json:"jobOrderStartDate"`
	JobOrderEndDate                caldate.Date `json:"jobOrderEndDate"`
	SundayAdFirstDate              caldate.Date `json:"sundayAdFirstDate"`
	SundayAdSecondDate             caldate.Date `json:"sundayAdSecondDate"`
	AdditionalRecruitmentStartDate caldate.Date `json:"additionalRecruitmentStartDate"`
	AdditionalRecruitmentEndDate   caldate.Date `json:"additionalRecruitmentEndDate"`

	ETA9089FilingDate        caldate.Date `json:"eta9089FilingDate"`
	ETA9089AuditDate         caldate.Date `json:"eta9089AuditDate"`
	ETA9089CertificationDate caldate.Date `json:"eta9089CertificationDate"`
	ETA9089ExpirationDate    caldate.Date `json:"eta9089ExpirationDate"`

	I140FilingDate   caldate.Date `json:"i140FilingDate"`
	I140ReceiptDate  caldate.Date `json:"i140ReceiptDate"`
	I140ApprovalDate caldate.Date `json:"i140ApprovalDate"`

	RFIEntries RFIEntries `json:"rfiEntries"`
	RFEEntries RFEEntries `json:"rfeEntries"`

	// Derived on every write; never set by callers.
	RecruitmentStartDate    caldate.Date `json:"recruitmentStartDate"`
	RecruitmentEndDate      caldate.Date `json:"recruitmentEndDate"`
	FilingWindowOpens       caldate.Date `json:"filingWindowOpens"`
	FilingWindowCloses      caldate.Date `json:"filingWindowCloses"`
	RecruitmentWindowCloses caldate.Date `json:"recruitmentWindowCloses"`

	CalendarSyncEnabled bool       `json:"calendarSyncEnabled"`
	DeletedAt           *time.Time `json:"deletedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Label is the human reference used in notifications.
func (c *Case) Label() string {
	switch {
	case c.BeneficiaryIdentifier != "" && c.EmployerName != "":
		return fmt.Sprintf("%s at %s", c.BeneficiaryIdentifier, c.EmployerName)
	case c.BeneficiaryIdentifier != "":
		return c.BeneficiaryIdentifier
	default:
		return c.EmployerName
	}
}

// IsDeleted reports whether the case is soft-deleted.
func (c *Case) IsDeleted() bool { return c.DeletedAt != nil }

// IsClosed reports whether the case is closed.
func (c *Case) IsClosed() bool { return c.CaseStatus == StatusClosed }
