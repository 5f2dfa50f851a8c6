package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/goldenoaks/circulation-go/circulation"
	"github.com/goldenoaks/circulation-go/circulation/postgresengine/internal/adapters"
)

const (
	logMsgBuildQueryFailed = "failed to build query"
	logMsgDBQueryFailed    = "database query execution failed"
	logMsgDBExecFailed     = "database statement execution failed"
	logMsgCloseRowsFailed  = "failed to close database rows"
	logMsgScanRowFailed    = "failed to scan database row"
	logMsgSQLExecuted      = "executed sql for: "
	logAttrError           = "error"
	logAttrQuery           = "query"
	logAttrDurationMS      = "duration_ms"
	metricQueryDuration    = "circulation_store_query_duration"
	labelTable             = "table"
	colCopyID              = "copy_id"
	colBookID              = "book_id"
	colBarcode             = "barcode"
	colStatus              = "status"
	colLocation            = "location"
	colLoanID              = "loan_id"
	colMemberID            = "member_id"
	colIssuedAt            = "issued_at"
	colDueAt               = "due_at"
	colReturnedAt          = "returned_at"
	colFineID              = "fine_id"
	colAmount              = "amount"
	colAssessedAt          = "assessed_at"
	colPaidAt              = "paid_at"
	colEntryID             = "entry_id"
	colEntryType           = "entry_type"
	colOccurredAt          = "occurred_at"
	colPayload             = "payload"
	dialectPostgres        = "postgres"
	castJsonb              = "?::jsonb"
	castText               = "text"
	pgUniqueViolationCode  = "23505"
)

// ErrNilDatabaseConnection is returned when a constructor receives a nil connection.
var ErrNilDatabaseConnection = errors.New("nil database connection supplied")

type sqlQueryString = string

// CirculationStore is the PostgreSQL implementation of circulation.Storage,
// circulation.MemberLookup, and circulation.JournalStore. It leverages a
// database adapter and supports customizable logging and table configuration.
type CirculationStore struct {
	db               adapters.DBAdapter
	tables           TableNames
	logger           circulation.Logger
	metricsCollector circulation.MetricsCollector
}

// NewCirculationStoreFromPGXPool creates a CirculationStore using a pgx pool
// with optional configuration.
func NewCirculationStoreFromPGXPool(pool *pgxpool.Pool, options ...Option) (*CirculationStore, error) {
	if pool == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newCirculationStore(adapters.NewPGXAdapter(pool), options...)
}

// NewCirculationStoreFromSQLDB creates a CirculationStore using a sql.DB with
// optional configuration.
func NewCirculationStoreFromSQLDB(db *sql.DB, options ...Option) (*CirculationStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newCirculationStore(adapters.NewSQLAdapter(db), options...)
}

// NewCirculationStoreFromSQLX creates a CirculationStore using a sqlx.DB with
// optional configuration.
func NewCirculationStoreFromSQLX(db *sqlx.DB, options ...Option) (*CirculationStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newCirculationStore(adapters.NewSQLXAdapter(db), options...)
}

func newCirculationStore(db adapters.DBAdapter, options ...Option) (*CirculationStore, error) {
	cs := &CirculationStore{
		db:     db,
		tables: DefaultTableNames(),
	}

	for _, option := range options {
		if err := option(cs); err != nil {
			return nil, err
		}
	}

	return cs, nil
}

// InTransaction implements circulation.Transactor on top of the adapter's
// transaction bracket.
func (cs *CirculationStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return cs.db.WithinTx(ctx, fn)
}

/***** circulation.MemberLookup *****/

// MemberExists reports whether the member id resolves to a row in the members table.
func (cs *CirculationStore) MemberExists(ctx context.Context, memberID uuid.UUID) (bool, error) {
	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		From(cs.tables.Members).
		Select(goqu.V(1)).
		Where(goqu.C(colMemberID).Eq(memberID.String())))
	if err != nil {
		return false, err
	}

	rows, err := cs.executeQuery(ctx, sqlQuery, cs.tables.Members)
	if err != nil {
		return false, err
	}
	defer cs.closeRows(rows)

	return rows.Next(), nil
}

/***** circulation.CopyStore *****/

// GetCopy returns the copy or nil when the id does not resolve.
func (cs *CirculationStore) GetCopy(ctx context.Context, copyID uuid.UUID) (*circulation.Copy, error) {
	return cs.queryCopy(ctx, goqu.C(colCopyID).Eq(copyID.String()))
}

// GetCopyByBarcode returns the copy or nil when the barcode does not resolve.
func (cs *CirculationStore) GetCopyByBarcode(ctx context.Context, barcode circulation.BarcodeString) (*circulation.Copy, error) {
	return cs.queryCopy(ctx, goqu.C(colBarcode).Eq(barcode))
}

func (cs *CirculationStore) queryCopy(ctx context.Context, where goqu.Expression) (*circulation.Copy, error) {
	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		From(cs.tables.Copies).
		Select(
			goqu.C(colCopyID).Cast(castText),
			goqu.C(colBookID).Cast(castText),
			goqu.C(colBarcode),
			goqu.C(colStatus),
			goqu.C(colLocation),
		).
		Where(where))
	if err != nil {
		return nil, err
	}

	rows, err := cs.executeQuery(ctx, sqlQuery, cs.tables.Copies)
	if err != nil {
		return nil, err
	}
	defer cs.closeRows(rows)

	if !rows.Next() {
		return nil, nil
	}

	var (
		copyID   string
		bookID   string
		barcode  string
		status   string
		location sql.NullString
	)

	if scanErr := rows.Scan(&copyID, &bookID, &barcode, &status, &location); scanErr != nil {
		return nil, cs.scanFailure(scanErr)
	}

	copyUUID, parseErr := uuid.Parse(copyID)
	if parseErr != nil {
		return nil, cs.scanFailure(parseErr)
	}

	bookUUID, parseErr := uuid.Parse(bookID)
	if parseErr != nil {
		return nil, cs.scanFailure(parseErr)
	}

	return &circulation.Copy{
		CopyID:   copyUUID,
		BookID:   bookUUID,
		Barcode:  barcode,
		Status:   circulation.CopyStatus(status),
		Location: location.String,
	}, nil
}

// SetCopyStatus persists a new status for the copy.
func (cs *CirculationStore) SetCopyStatus(ctx context.Context, copyID uuid.UUID, status circulation.CopyStatus) error {
	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		Update(cs.tables.Copies).
		Set(goqu.Record{colStatus: string(status)}).
		Where(goqu.C(colCopyID).Eq(copyID.String())))
	if err != nil {
		return err
	}

	rowsAffected, err := cs.executeStatement(ctx, sqlQuery, cs.tables.Copies)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return errors.Join(circulation.ErrNotFound, errors.New("copy "+copyID.String()))
	}

	return nil
}

// AddCopy inserts a copy row. Cataloguing is outside the circulation core;
// this exists for seeding and administration.
func (cs *CirculationStore) AddCopy(ctx context.Context, copy circulation.Copy) error {
	record := goqu.Record{
		colCopyID:  copy.CopyID.String(),
		colBookID:  copy.BookID.String(),
		colBarcode: copy.Barcode,
		colStatus:  string(copy.Status),
	}

	if copy.Location != "" {
		record[colLocation] = copy.Location
	}

	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		Insert(cs.tables.Copies).
		Rows(record))
	if err != nil {
		return err
	}

	_, err = cs.executeStatement(ctx, sqlQuery, cs.tables.Copies)

	return err
}

// AddMember inserts a member row. Member profiles are owned by an external
// collaborator; this exists for seeding and administration.
func (cs *CirculationStore) AddMember(ctx context.Context, memberID uuid.UUID) error {
	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		Insert(cs.tables.Members).
		Rows(goqu.Record{colMemberID: memberID.String()}))
	if err != nil {
		return err
	}

	_, err = cs.executeStatement(ctx, sqlQuery, cs.tables.Members)

	return err
}

/***** circulation.LoanStore *****/

// InsertLoan records a newly opened loan. The explicit check plus the partial
// unique index on open loans defend the one-open-loan-per-copy invariant even
// when two checkouts race past the coordinator.
func (cs *CirculationStore) InsertLoan(ctx context.Context, loan circulation.Loan) error {
	existing, err := cs.FindOpenLoanByCopy(ctx, loan.CopyID)
	if err != nil {
		return err
	}

	if existing != nil {
		return errors.Join(circulation.ErrOpenLoanExists, errors.New("copy "+loan.CopyID.String()))
	}

	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		Insert(cs.tables.Loans).
		Rows(goqu.Record{
			colLoanID:   loan.LoanID.String(),
			colMemberID: loan.MemberID.String(),
			colCopyID:   loan.CopyID.String(),
			colIssuedAt: loan.IssuedAt,
			colDueAt:    loan.DueAt,
		}))
	if err != nil {
		return err
	}

	if _, execErr := cs.executeStatement(ctx, sqlQuery, cs.tables.Loans); execErr != nil {
		if isUniqueViolation(execErr) {
			return errors.Join(circulation.ErrOpenLoanExists, errors.New("copy "+loan.CopyID.String()))
		}

		return execErr
	}

	return nil
}

// CloseLoan records the return time on an open loan. The returned_at guard in
// the WHERE clause makes closing an already closed loan a no-op at the SQL
// level, which is then reported as ErrInvalidState.
func (cs *CirculationStore) CloseLoan(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error {
	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		Update(cs.tables.Loans).
		Set(goqu.Record{colReturnedAt: circulation.ToTimestamp(returnedAt)}).
		Where(
			goqu.C(colLoanID).Eq(loanID.String()),
			goqu.C(colReturnedAt).IsNull(),
		))
	if err != nil {
		return err
	}

	rowsAffected, err := cs.executeStatement(ctx, sqlQuery, cs.tables.Loans)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		loan, getErr := cs.GetLoan(ctx, loanID)
		if getErr != nil {
			return getErr
		}

		if loan == nil {
			return errors.Join(circulation.ErrNotFound, errors.New("loan "+loanID.String()))
		}

		return errors.Join(circulation.ErrInvalidState, errors.New("loan "+loanID.String()+" is already closed"))
	}

	return nil
}

// GetLoan returns the loan or nil when the id does not resolve.
func (cs *CirculationStore) GetLoan(ctx context.Context, loanID uuid.UUID) (*circulation.Loan, error) {
	loans, err := cs.queryLoans(ctx, goqu.C(colLoanID).Eq(loanID.String()))
	if err != nil {
		return nil, err
	}

	if len(loans) == 0 {
		return nil, nil
	}

	return &loans[0], nil
}

// FindOpenLoanByCopy returns the single open loan for the copy, or nil.
func (cs *CirculationStore) FindOpenLoanByCopy(ctx context.Context, copyID uuid.UUID) (*circulation.Loan, error) {
	loans, err := cs.queryLoans(ctx,
		goqu.C(colCopyID).Eq(copyID.String()),
		goqu.C(colReturnedAt).IsNull())
	if err != nil {
		return nil, err
	}

	if len(loans) == 0 {
		return nil, nil
	}

	return &loans[0], nil
}

// FindOpenLoansByMember returns all open loans held by the member.
func (cs *CirculationStore) FindOpenLoansByMember(ctx context.Context, memberID uuid.UUID) ([]circulation.Loan, error) {
	return cs.queryLoans(ctx,
		goqu.C(colMemberID).Eq(memberID.String()),
		goqu.C(colReturnedAt).IsNull())
}

// FindOpenOverdueLoans returns all open loans with due_at before asOf.
func (cs *CirculationStore) FindOpenOverdueLoans(ctx context.Context, asOf time.Time) ([]circulation.Loan, error) {
	return cs.queryLoans(ctx,
		goqu.C(colReturnedAt).IsNull(),
		goqu.C(colDueAt).Lt(circulation.ToTimestamp(asOf)))
}

func (cs *CirculationStore) queryLoans(ctx context.Context, where ...goqu.Expression) ([]circulation.Loan, error) {
	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		From(cs.tables.Loans).
		Select(
			goqu.C(colLoanID).Cast(castText),
			goqu.C(colMemberID).Cast(castText),
			goqu.C(colCopyID).Cast(castText),
			goqu.C(colIssuedAt),
			goqu.C(colDueAt),
			goqu.C(colReturnedAt),
		).
		Where(where...).
		Order(goqu.I(colIssuedAt).Asc()))
	if err != nil {
		return nil, err
	}

	rows, err := cs.executeQuery(ctx, sqlQuery, cs.tables.Loans)
	if err != nil {
		return nil, err
	}
	defer cs.closeRows(rows)

	var loans []circulation.Loan

	for rows.Next() {
		var (
			loanID     string
			memberID   string
			copyID     string
			issuedAt   time.Time
			dueAt      time.Time
			returnedAt sql.NullTime
		)

		if scanErr := rows.Scan(&loanID, &memberID, &copyID, &issuedAt, &dueAt, &returnedAt); scanErr != nil {
			return nil, cs.scanFailure(scanErr)
		}

		loan, buildErr := buildLoanFromRow(loanID, memberID, copyID, issuedAt, dueAt, returnedAt)
		if buildErr != nil {
			return nil, cs.scanFailure(buildErr)
		}

		loans = append(loans, loan)
	}

	return loans, nil
}

func buildLoanFromRow(
	loanID string,
	memberID string,
	copyID string,
	issuedAt time.Time,
	dueAt time.Time,
	returnedAt sql.NullTime,
) (circulation.Loan, error) {

	loanUUID, err := uuid.Parse(loanID)
	if err != nil {
		return circulation.Loan{}, err
	}

	memberUUID, err := uuid.Parse(memberID)
	if err != nil {
		return circulation.Loan{}, err
	}

	copyUUID, err := uuid.Parse(copyID)
	if err != nil {
		return circulation.Loan{}, err
	}

	loan := circulation.Loan{
		LoanID:   loanUUID,
		MemberID: memberUUID,
		CopyID:   copyUUID,
		IssuedAt: circulation.ToTimestamp(issuedAt),
		DueAt:    circulation.ToTimestamp(dueAt),
	}

	if returnedAt.Valid {
		returned := circulation.ToTimestamp(returnedAt.Time)
		loan.ReturnedAt = &returned
	}

	return loan, nil
}

/***** circulation.FineStore *****/

// GetFine returns the fine or nil when the id does not resolve.
func (cs *CirculationStore) GetFine(ctx context.Context, fineID uuid.UUID) (*circulation.Fine, error) {
	fines, err := cs.queryFines(ctx, goqu.C(colFineID).Eq(fineID.String()))
	if err != nil {
		return nil, err
	}

	if len(fines) == 0 {
		return nil, nil
	}

	return &fines[0], nil
}

// GetFineByLoan returns the fine recorded for the loan, or nil.
func (cs *CirculationStore) GetFineByLoan(ctx context.Context, loanID uuid.UUID) (*circulation.Fine, error) {
	fines, err := cs.queryFines(ctx, goqu.C(colLoanID).Eq(loanID.String()))
	if err != nil {
		return nil, err
	}

	if len(fines) == 0 {
		return nil, nil
	}

	return &fines[0], nil
}

// ListFinesByMember returns all fines whose loan belongs to the member.
func (cs *CirculationStore) ListFinesByMember(ctx context.Context, memberID uuid.UUID) ([]circulation.Fine, error) {
	loanIDs := goqu.Dialect(dialectPostgres).
		From(cs.tables.Loans).
		Select(goqu.C(colLoanID)).
		Where(goqu.C(colMemberID).Eq(memberID.String()))

	return cs.queryFines(ctx, goqu.C(colLoanID).In(loanIDs))
}

// InsertFine records a newly created fine. The explicit check plus the partial
// unique index on pending fines defend the one-pending-fine-per-loan
// invariant.
func (cs *CirculationStore) InsertFine(ctx context.Context, fine circulation.Fine) error {
	existing, err := cs.GetFineByLoan(ctx, fine.LoanID)
	if err != nil {
		return err
	}

	if existing != nil && existing.Status == circulation.FinePending {
		return errors.Join(circulation.ErrPendingFineExists, errors.New("loan "+fine.LoanID.String()))
	}

	record := goqu.Record{
		colFineID:     fine.FineID.String(),
		colLoanID:     fine.LoanID.String(),
		colAmount:     fine.Amount,
		colStatus:     string(fine.Status),
		colAssessedAt: fine.AssessedAt,
	}

	if fine.PaidAt != nil {
		record[colPaidAt] = *fine.PaidAt
	}

	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		Insert(cs.tables.Fines).
		Rows(record))
	if err != nil {
		return err
	}

	if _, execErr := cs.executeStatement(ctx, sqlQuery, cs.tables.Fines); execErr != nil {
		if isUniqueViolation(execErr) {
			return errors.Join(circulation.ErrPendingFineExists, errors.New("loan "+fine.LoanID.String()))
		}

		return execErr
	}

	return nil
}

// UpdateFineStatus persists a settlement. paidAt is nil for waivers.
func (cs *CirculationStore) UpdateFineStatus(
	ctx context.Context,
	fineID uuid.UUID,
	status circulation.FineStatus,
	paidAt *time.Time,
) error {

	record := goqu.Record{colStatus: string(status)}

	if paidAt != nil {
		record[colPaidAt] = circulation.ToTimestamp(*paidAt)
	}

	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		Update(cs.tables.Fines).
		Set(record).
		Where(goqu.C(colFineID).Eq(fineID.String())))
	if err != nil {
		return err
	}

	rowsAffected, err := cs.executeStatement(ctx, sqlQuery, cs.tables.Fines)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return errors.Join(circulation.ErrNotFound, errors.New("fine "+fineID.String()))
	}

	return nil
}

// UpdateFineAmount persists a refreshed accrual on a fine.
func (cs *CirculationStore) UpdateFineAmount(
	ctx context.Context,
	fineID uuid.UUID,
	amount float64,
	assessedAt time.Time,
) error {

	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		Update(cs.tables.Fines).
		Set(goqu.Record{
			colAmount:     amount,
			colAssessedAt: circulation.ToTimestamp(assessedAt),
		}).
		Where(goqu.C(colFineID).Eq(fineID.String())))
	if err != nil {
		return err
	}

	rowsAffected, err := cs.executeStatement(ctx, sqlQuery, cs.tables.Fines)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return errors.Join(circulation.ErrNotFound, errors.New("fine "+fineID.String()))
	}

	return nil
}

func (cs *CirculationStore) queryFines(ctx context.Context, where ...goqu.Expression) ([]circulation.Fine, error) {
	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		From(cs.tables.Fines).
		Select(
			goqu.C(colFineID).Cast(castText),
			goqu.C(colLoanID).Cast(castText),
			goqu.C(colAmount),
			goqu.C(colStatus),
			goqu.C(colAssessedAt),
			goqu.C(colPaidAt),
		).
		Where(where...).
		Order(goqu.I(colAssessedAt).Asc()))
	if err != nil {
		return nil, err
	}

	rows, err := cs.executeQuery(ctx, sqlQuery, cs.tables.Fines)
	if err != nil {
		return nil, err
	}
	defer cs.closeRows(rows)

	var fines []circulation.Fine

	for rows.Next() {
		var (
			fineID     string
			loanID     string
			amount     float64
			status     string
			assessedAt time.Time
			paidAt     sql.NullTime
		)

		if scanErr := rows.Scan(&fineID, &loanID, &amount, &status, &assessedAt, &paidAt); scanErr != nil {
			return nil, cs.scanFailure(scanErr)
		}

		fineUUID, parseErr := uuid.Parse(fineID)
		if parseErr != nil {
			return nil, cs.scanFailure(parseErr)
		}

		loanUUID, parseErr := uuid.Parse(loanID)
		if parseErr != nil {
			return nil, cs.scanFailure(parseErr)
		}

		fine := circulation.Fine{
			FineID:     fineUUID,
			LoanID:     loanUUID,
			Amount:     amount,
			Status:     circulation.FineStatus(status),
			AssessedAt: circulation.ToTimestamp(assessedAt),
		}

		if paidAt.Valid {
			paid := circulation.ToTimestamp(paidAt.Time)
			fine.PaidAt = &paid
		}

		fines = append(fines, fine)
	}

	return fines, nil
}

/***** circulation.JournalStore *****/

// AppendJournalEntry appends one entry to the journal table.
func (cs *CirculationStore) AppendJournalEntry(ctx context.Context, entry circulation.JournalEntry) error {
	sqlQuery, err := cs.toSQL(goqu.Dialect(dialectPostgres).
		Insert(cs.tables.Journal).
		Rows(goqu.Record{
			colEntryID:    entry.EntryID.String(),
			colEntryType:  entry.EntryType,
			colOccurredAt: entry.OccurredAt,
			colPayload:    goqu.L(castJsonb, string(entry.Payload)),
		}))
	if err != nil {
		return err
	}

	_, err = cs.executeStatement(ctx, sqlQuery, cs.tables.Journal)

	return err
}

/***** shared plumbing *****/

func (cs *CirculationStore) toSQL(stmt interface{ ToSQL() (string, []any, error) }) (sqlQueryString, error) {
	sqlQuery, _, err := stmt.ToSQL()
	if err != nil {
		if cs.logger != nil {
			cs.logger.Error(logMsgBuildQueryFailed, logAttrError, err.Error())
		}

		return "", errors.Join(circulation.ErrStorageFailure, err)
	}

	return sqlQuery, nil
}

func (cs *CirculationStore) executeQuery(ctx context.Context, sqlQuery sqlQueryString, table string) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := cs.db.Query(ctx, sqlQuery)
	cs.observeStatement(sqlQuery, table, time.Since(start))

	if err != nil {
		if cs.logger != nil {
			cs.logger.Error(logMsgDBQueryFailed, logAttrError, err.Error(), logAttrQuery, sqlQuery)
		}

		return nil, errors.Join(circulation.ErrStorageFailure, err)
	}

	return rows, nil
}

func (cs *CirculationStore) executeStatement(ctx context.Context, sqlQuery sqlQueryString, table string) (int64, error) {
	start := time.Now()
	result, err := cs.db.Exec(ctx, sqlQuery)
	cs.observeStatement(sqlQuery, table, time.Since(start))

	if err != nil {
		if cs.logger != nil {
			cs.logger.Error(logMsgDBExecFailed, logAttrError, err.Error(), logAttrQuery, sqlQuery)
		}

		if isUniqueViolation(err) {
			return 0, err // mapped to a contract error by the caller
		}

		return 0, errors.Join(circulation.ErrStorageFailure, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Join(circulation.ErrStorageFailure, err)
	}

	return rowsAffected, nil
}

func (cs *CirculationStore) observeStatement(sqlQuery sqlQueryString, table string, duration time.Duration) {
	if cs.logger != nil {
		cs.logger.Debug(logMsgSQLExecuted+table, logAttrQuery, sqlQuery, logAttrDurationMS, duration.Milliseconds())
	}

	if cs.metricsCollector != nil {
		cs.metricsCollector.RecordDuration(metricQueryDuration, duration, map[string]string{labelTable: table})
	}
}

func (cs *CirculationStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if cs.logger != nil {
			cs.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

func (cs *CirculationStore) scanFailure(err error) error {
	if cs.logger != nil {
		cs.logger.Error(logMsgScanRowFailed, logAttrError, err.Error())
	}

	return errors.Join(circulation.ErrStorageFailure, err)
}

// isUniqueViolation detects Postgres unique constraint violations across the
// pgx and lib/pq driver stacks.
func isUniqueViolation(err error) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolationCode
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolationCode
	}

	return false
}
