package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"perm_tracker/internal/domain/cases"
)

type PostgresCaseRepository struct {
	db *sql.DB
}

func NewPostgresCaseRepository(db *sql.DB) *PostgresCaseRepository {
	return &PostgresCaseRepository{db: db}
}

const caseColumns = `id, user_id, employer_name, beneficiary_identifier, position_title, case_status, progress_status,
	pwd_filing_date, pwd_determination_date, pwd_expiration_date,
	job_order_start_date, job_order_end_date, sunday_ad_first_date, sunday_ad_second_date,
	additional_recruitment_start_date, additional_recruitment_end_date,
	eta9089_filing_date, eta9089_audit_date, eta9089_certification_date, eta9089_expiration_date,
	i140_filing_date, i140_receipt_date, i140_approval_date,
	rfi_entries, rfe_entries,
	recruitment_start_date, recruitment_end_date, filing_window_opens, filing_window_closes, recruitment_window_closes,
	calendar_sync_enabled, deleted_at, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*cases.Case, error) {
	c := &cases.Case{}
	var deletedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.UserID, &c.EmployerName, &c.BeneficiaryIdentifier, &c.PositionTitle, &c.CaseStatus, &c.ProgressStatus,
		&c.PWDFilingDate, &c.PWDDeterminationDate, &c.PWDExpirationDate,
		&c.JobOrderStartDate, &c.JobOrderEndDate, &c.SundayAdFirstDate, &c.SundayAdSecondDate,
		&c.AdditionalRecruitmentStartDate, &c.AdditionalRecruitmentEndDate,
		&c.ETA9089FilingDate, &c.ETA9089AuditDate, &c.ETA9089CertificationDate, &c.ETA9089ExpirationDate,
		&c.I140FilingDate, &c.I140ReceiptDate, &c.I140ApprovalDate,
		&c.RFIEntries, &c.RFEEntries,
		&c.RecruitmentStartDate, &c.RecruitmentEndDate, &c.FilingWindowOpens, &c.FilingWindowCloses, &c.RecruitmentWindowCloses,
		&c.CalendarSyncEnabled, &deletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		c.DeletedAt = &t
	}
	return c, nil
}

func entriesOrEmpty(c *cases.Case) (cases.RFIEntries, cases.RFEEntries) {
	rfi, rfe := c.RFIEntries, c.RFEEntries
	if rfi == nil {
		rfi = cases.RFIEntries{}
	}
	if rfe == nil {
		rfe = cases.RFEEntries{}
	}
	return rfi, rfe
}

func (r *PostgresCaseRepository) Create(ctx context.Context, c *cases.Case) error {
	query := `INSERT INTO cases (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34)`
	rfi, rfe := entriesOrEmpty(c)
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.EmployerName, c.BeneficiaryIdentifier, c.PositionTitle, c.CaseStatus, c.ProgressStatus,
		c.PWDFilingDate, c.PWDDeterminationDate, c.PWDExpirationDate,
		c.JobOrderStartDate, c.JobOrderEndDate, c.SundayAdFirstDate, c.SundayAdSecondDate,
		c.AdditionalRecruitmentStartDate, c.AdditionalRecruitmentEndDate,
		c.ETA9089FilingDate, c.ETA9089AuditDate, c.ETA9089CertificationDate, c.ETA9089ExpirationDate,
		c.I140FilingDate, c.I140ReceiptDate, c.I140ApprovalDate,
		rfi, rfe,
		c.RecruitmentStartDate, c.RecruitmentEndDate, c.FilingWindowOpens, c.FilingWindowCloses, c.RecruitmentWindowCloses,
		c.CalendarSyncEnabled, c.DeletedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating case: %w", err)
	}
	return nil
}

func (r *PostgresCaseRepository) Update(ctx context.Context, c *cases.Case) error {
	query := `UPDATE cases SET
		employer_name = $2, beneficiary_identifier = $3, position_title = $4, case_status = $5, progress_status = $6,
		pwd_filing_date = $7, pwd_determination_date = $8, pwd_expiration_date = $9,
		job_order_start_date = $10, job_order_end_date = $11, sunday_ad_first_date = $12, sunday_ad_second_date = $13,
		additional_recruitment_start_date = $14, additional_recruitment_end_date = $15,
		eta9089_filing_date = $16, eta9089_audit_date = $17, eta9089_certification_date = $18, eta9089_expiration_date = $19,
		i140_filing_date = $20, i140_receipt_date = $21, i140_approval_date = $22,
		rfi_entries = $23, rfe_entries = $24,
		recruitment_start_date = $25, recruitment_end_date = $26, filing_window_opens = $27,
		filing_window_closes = $28, recruitment_window_closes = $29,
		calendar_sync_enabled = $30, updated_at = $31
		WHERE id = $1`
	rfi, rfe := entriesOrEmpty(c)
	res, err := r.db.ExecContext(ctx, query,
		c.ID, c.EmployerName, c.BeneficiaryIdentifier, c.PositionTitle, c.CaseStatus, c.ProgressStatus,
		c.PWDFilingDate, c.PWDDeterminationDate, c.PWDExpirationDate,
		c.JobOrderStartDate, c.JobOrderEndDate, c.SundayAdFirstDate, c.SundayAdSecondDate,
		c.AdditionalRecruitmentStartDate, c.AdditionalRecruitmentEndDate,
		c.ETA9089FilingDate, c.ETA9089AuditDate, c.ETA9089CertificationDate, c.ETA9089ExpirationDate,
		c.I140FilingDate, c.I140ReceiptDate, c.I140ApprovalDate,
		rfi, rfe,
		c.RecruitmentStartDate, c.RecruitmentEndDate, c.FilingWindowOpens, c.FilingWindowCloses, c.RecruitmentWindowCloses,
		c.CalendarSyncEnabled, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error updating case: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected for case update: %w", err)
	}
	if rows == 0 {
		return cases.ErrNotFound
	}
	return nil
}

func (r *PostgresCaseRepository) GetByID(ctx context.Context, id string) (*cases.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	c, err := scanCase(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cases.ErrNotFound
		}
		return nil, fmt.Errorf("error getting case by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresCaseRepository) ListByUser(ctx context.Context, userID string) ([]*cases.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *PostgresCaseRepository) ListReminderEligible(ctx context.Context) ([]*cases.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases
		WHERE deleted_at IS NULL AND case_status <> 'closed'
		ORDER BY user_id, created_at`
	return r.list(ctx, query)
}

func (r *PostgresCaseRepository) list(ctx context.Context, query string, args ...any) ([]*cases.Case, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing cases: %w", err)
	}
	defer rows.Close()

	out := []*cases.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning case row: %w", err)
		}
		out = append(out, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case rows: %w", err)
	}
	return out, nil
}

func (r *PostgresCaseRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE cases SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("error soft-deleting case: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected for case delete: %w", err)
	}
	if rows == 0 {
		return cases.ErrNotFound
	}
	return nil
}

func (r *PostgresCaseRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cases WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("error deleting cases for user: %w", err)
	}
	return res.RowsAffected()
}
