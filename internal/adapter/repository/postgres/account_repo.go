package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `
id, asset_code, asset_scale, balance_id, disabled, max_packet_amount,
super_account_id, outgoing_token, outgoing_endpoint, static_ilp_address,
credit_balance_id, debt_balance_id, credit_extended_balance_id, lent_balance_id,
created_at, updated_at
`

const createAccount = `
INSERT INTO accounts (` + accountColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`

const insertAccountToken = `
INSERT INTO account_tokens (token, account_id) VALUES ($1, $2)
`

// Create inserts an account and its incoming tokens.
func (r *AccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	pgxTx := tx.(*Tx).PgxTx()

	outgoingToken, outgoingEndpoint := outgoingColumns(account.Outgoing)

	_, err := pgxTx.Exec(ctx, createAccount,
		account.ID,
		account.AssetCode,
		int32(account.AssetScale),
		account.BalanceID,
		account.Disabled,
		int8OrNil(account.MaxPacketAmount),
		textOrNil(account.SuperAccountID),
		outgoingToken,
		outgoingEndpoint,
		account.StaticILPAddress,
		textOrNil(account.CreditBalanceID),
		textOrNil(account.DebtBalanceID),
		textOrNil(account.CreditExtendedBalanceID),
		textOrNil(account.LentBalanceID),
		timeToPgTimestamptz(account.CreatedAt),
		timeToPgTimestamptz(account.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateAccountID
		}

		return err
	}

	return r.insertTokens(ctx, pgxTx, account)
}

const getAccountByID = `
SELECT ` + accountColumns + ` FROM accounts WHERE id = $1
`

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getAccount(ctx, getAccountByID, id)
}

const getAccountByIDForUpdate = getAccountByID + ` FOR UPDATE`

// GetByIDForUpdate retrieves an account within tx, locking its row until the
// transaction ends. Reads after the lock see the latest committed state, so
// checks such as the pooled-balance bootstrap cannot act on a stale row.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	pgxTx := tx.(*Tx).PgxTx()

	account, err := scanAccount(pgxTx.QueryRow(ctx, getAccountByIDForUpdate, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownAccount
		}

		return nil, err
	}

	if err := r.loadTokens(ctx, pgxTx, account); err != nil {
		return nil, err
	}

	return account, nil
}

const updateAccount = `
UPDATE accounts
SET disabled = $2,
    max_packet_amount = $3,
    outgoing_token = $4,
    outgoing_endpoint = $5,
    static_ilp_address = $6,
    credit_extended_balance_id = $7,
    lent_balance_id = $8,
    updated_at = $9
WHERE id = $1
`

const deleteAccountTokens = `
DELETE FROM account_tokens WHERE account_id = $1
`

// Update rewrites an account's mutable columns and replaces its token set.
func (r *AccountRepository) Update(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	pgxTx := tx.(*Tx).PgxTx()

	outgoingToken, outgoingEndpoint := outgoingColumns(account.Outgoing)

	tag, err := pgxTx.Exec(ctx, updateAccount,
		account.ID,
		account.Disabled,
		int8OrNil(account.MaxPacketAmount),
		outgoingToken,
		outgoingEndpoint,
		account.StaticILPAddress,
		textOrNil(account.CreditExtendedBalanceID),
		textOrNil(account.LentBalanceID),
		timeToPgTimestamptz(account.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownAccount
	}

	if _, err := pgxTx.Exec(ctx, deleteAccountTokens, account.ID); err != nil {
		return err
	}

	return r.insertTokens(ctx, pgxTx, account)
}

func (r *AccountRepository) insertTokens(ctx context.Context, pgxTx pgx.Tx, account *domain.Account) error {
	for _, token := range account.IncomingTokens {
		if _, err := pgxTx.Exec(ctx, insertAccountToken, token, account.ID); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateIncomingToken
			}

			return err
		}
	}

	return nil
}

const getAccountByToken = `
SELECT ` + accountColumns + `
FROM accounts
WHERE id = (SELECT account_id FROM account_tokens WHERE token = $1)
`

// GetByIncomingToken resolves an account from one of its incoming tokens.
func (r *AccountRepository) GetByIncomingToken(ctx context.Context, token string) (*domain.Account, error) {
	return r.getAccount(ctx, getAccountByToken, token)
}

const tokenExists = `
SELECT EXISTS (
    SELECT 1 FROM account_tokens
    WHERE token = ANY($1) AND account_id <> $2
)
`

// TokenExists reports whether any of the tokens is already registered to an
// account other than excludeAccountID.
func (r *AccountRepository) TokenExists(ctx context.Context, tokens []string, excludeAccountID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, tokenExists, tokens, excludeAccountID).Scan(&exists)

	return exists, err
}

const getAccountByStaticAddress = `
SELECT ` + accountColumns + `
FROM accounts
WHERE static_ilp_address <> ''
  AND ($1 = static_ilp_address OR $1 LIKE static_ilp_address || '.%')
ORDER BY length(static_ilp_address) DESC
LIMIT 1
`

// GetByStaticAddress finds the account whose static ILP address equals the
// destination or is an address-prefix of it, preferring the longest match.
func (r *AccountRepository) GetByStaticAddress(ctx context.Context, destination string) (*domain.Account, error) {
	return r.getAccount(ctx, getAccountByStaticAddress, destination)
}

const getAccountChain = `
WITH RECURSIVE chain AS (
    SELECT a.*, 0 AS depth FROM accounts a WHERE a.id = $1
    UNION ALL
    SELECT a.*, chain.depth + 1 FROM accounts a
    JOIN chain ON a.id = chain.super_account_id
)
SELECT ` + accountColumns + ` FROM chain ORDER BY depth
`

// GetWithSuperAccounts materializes an account together with its ancestor
// chain, nearest super-account first.
func (r *AccountRepository) GetWithSuperAccounts(ctx context.Context, id string) (*domain.AccountChain, error) {
	rows, err := r.pool.Query(ctx, getAccountChain, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, domain.ErrUnknownAccount
	}

	if err := r.loadTokens(ctx, r.pool, accounts[0]); err != nil {
		return nil, err
	}

	return &domain.AccountChain{
		Account:       *accounts[0],
		SuperAccounts: accounts[1:],
	}, nil
}

const listAccounts = `
SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id LIMIT $1 OFFSET $2
`

// List lists accounts ordered by creation time.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.pool.Query(ctx, listAccounts, int32(limit), int32(offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0, limit)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func (r *AccountRepository) getAccount(ctx context.Context, query, arg string) (*domain.Account, error) {
	account, err := scanAccount(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownAccount
		}

		return nil, err
	}

	if err := r.loadTokens(ctx, r.pool, account); err != nil {
		return nil, err
	}

	return account, nil
}

const listAccountTokens = `
SELECT token FROM account_tokens WHERE account_id = $1 ORDER BY token
`

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *AccountRepository) loadTokens(ctx context.Context, q rowQuerier, account *domain.Account) error {
	rows, err := q.Query(ctx, listAccountTokens, account.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return err
		}
		account.IncomingTokens = append(account.IncomingTokens, token)
	}

	return rows.Err()
}

func outgoingColumns(outgoing *domain.HTTPOutgoing) (pgtype.Text, pgtype.Text) {
	if outgoing == nil {
		return pgtype.Text{}, pgtype.Text{}
	}

	return pgtype.Text{String: outgoing.AuthToken, Valid: true},
		pgtype.Text{String: outgoing.Endpoint, Valid: true}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account          domain.Account
		scale            int32
		maxPacket        pgtype.Int8
		superAccount     pgtype.Text
		outgoingToken    pgtype.Text
		outgoingEndpoint pgtype.Text
		creditBalance    pgtype.Text
		debtBalance      pgtype.Text
		extendedBalance  pgtype.Text
		lentBalance      pgtype.Text
		createdAt        pgtype.Timestamptz
		updatedAt        pgtype.Timestamptz
	)

	err := row.Scan(
		&account.ID,
		&account.AssetCode,
		&scale,
		&account.BalanceID,
		&account.Disabled,
		&maxPacket,
		&superAccount,
		&outgoingToken,
		&outgoingEndpoint,
		&account.StaticILPAddress,
		&creditBalance,
		&debtBalance,
		&extendedBalance,
		&lentBalance,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.AssetScale = uint32(scale)
	account.MaxPacketAmount = uint64Ptr(maxPacket)
	account.SuperAccountID = textPtr(superAccount)
	if outgoingToken.Valid {
		account.Outgoing = &domain.HTTPOutgoing{
			AuthToken: outgoingToken.String,
			Endpoint:  outgoingEndpoint.String,
		}
	}
	account.CreditBalanceID = textPtr(creditBalance)
	account.DebtBalanceID = textPtr(debtBalance)
	account.CreditExtendedBalanceID = textPtr(extendedBalance)
	account.LentBalanceID = textPtr(lentBalance)
	account.CreatedAt = createdAt.Time
	account.UpdatedAt = updatedAt.Time

	return &account, nil
}
