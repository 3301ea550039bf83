package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/chainledger/core/pkg/crypto"
	"github.com/chainledger/core/pkg/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is the production Store adapter: backlog and bigchain as
// Postgres tables with JSONB documents and the secondary indexes required
// by §4.2, reached through database/sql and github.com/lib/pq.
type Postgres struct {
	db     *sql.DB
	logger *log.Logger
}

// PostgresOption configures a Postgres store at construction.
type PostgresOption func(*Postgres)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) PostgresOption {
	return func(p *Postgres) { p.logger = logger }
}

// NewPostgres opens a connection pool against dsn and runs pending
// migrations.
func NewPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: database dsn cannot be empty")
	}

	p := &Postgres{
		logger: log.New(log.Writer(), "[Store] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	p.db = db

	if err := p.migrateUp(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return p, nil
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Backlog returns the backlog view of this store.
func (p *Postgres) Backlog() BacklogStore { return postgresBacklog{p} }

// Bigchain returns the bigchain view of this store.
func (p *Postgres) Bigchain() BigchainStore { return postgresBigchain{p} }

// ============================================================================
// MIGRATIONS
// ============================================================================

func (p *Postgres) migrateUp(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		version := strings.TrimSuffix(name, ".sql")

		var applied bool
		err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&applied)
		// schema_migrations may not exist yet on the very first migration.
		if err != nil && !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if applied {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		p.logger.Printf("applied migration %s", version)
	}
	return nil
}

// ============================================================================
// BACKLOG
// ============================================================================

type postgresBacklog struct{ p *Postgres }

func (b postgresBacklog) InsertTransaction(ctx context.Context, tx model.Transaction, durability Durability) error {
	doc, err := jsonMarshal(tx)
	if err != nil {
		return fmt.Errorf("store: marshal transaction: %w", err)
	}

	exec := func(ctx context.Context, execer execContexter) error {
		_, err := execer.ExecContext(ctx, `
			INSERT INTO backlog (id, assignee, doc) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET assignee = EXCLUDED.assignee, doc = EXCLUDED.doc
		`, string(tx.ID), string(tx.Assignee), doc)
		return err
	}
	return withDurability(ctx, b.p.db, durability, exec)
}

func (b postgresBacklog) GetTransaction(ctx context.Context, id crypto.Hash) (model.Transaction, bool, error) {
	var doc []byte
	err := b.p.db.QueryRowContext(ctx, `SELECT doc FROM backlog WHERE id = $1`, string(id)).Scan(&doc)
	if err == sql.ErrNoRows {
		return model.Transaction{}, false, nil
	}
	if err != nil {
		return model.Transaction{}, false, fmt.Errorf("store: get transaction: %w", err)
	}
	var tx model.Transaction
	if err := jsonUnmarshal(doc, &tx); err != nil {
		return model.Transaction{}, false, fmt.Errorf("store: unmarshal transaction: %w", err)
	}
	return tx, true, nil
}

func (b postgresBacklog) TransactionsByAssignee(ctx context.Context, assignee crypto.PublicKey) ([]model.Transaction, error) {
	rows, err := b.p.db.QueryContext(ctx, `SELECT doc FROM backlog WHERE assignee = $1`, string(assignee))
	if err != nil {
		return nil, fmt.Errorf("store: query backlog by assignee: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (b postgresBacklog) DeleteTransaction(ctx context.Context, id crypto.Hash) error {
	_, err := b.p.db.ExecContext(ctx, `DELETE FROM backlog WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("store: delete transaction: %w", err)
	}
	return nil
}

func (b postgresBacklog) AllTransactions(ctx context.Context) ([]model.Transaction, error) {
	rows, err := b.p.db.QueryContext(ctx, `SELECT doc FROM backlog`)
	if err != nil {
		return nil, fmt.Errorf("store: query backlog: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var out []model.Transaction
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan transaction: %w", err)
		}
		var tx model.Transaction
		if err := jsonUnmarshal(doc, &tx); err != nil {
			return nil, fmt.Errorf("store: unmarshal transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// ============================================================================
// BIGCHAIN
// ============================================================================

type postgresBigchain struct{ p *Postgres }

func (g postgresBigchain) InsertBlock(ctx context.Context, block model.Block, durability Durability) error {
	doc, err := jsonMarshal(block)
	if err != nil {
		return fmt.Errorf("store: marshal block: %w", err)
	}

	txIDs := make([]string, 0, len(block.Block.Transactions))
	payloadHashes := make([]string, 0, len(block.Block.Transactions))
	for _, tx := range block.Block.Transactions {
		txIDs = append(txIDs, string(tx.ID))
		if h, err := crypto.HashOf(tx.Transaction.Data.Payload); err == nil {
			payloadHashes = append(payloadHashes, string(h))
		}
	}

	exec := func(ctx context.Context, execer execContexter) error {
		_, err := execer.ExecContext(ctx, `
			INSERT INTO bigchain (id, doc, transaction_ids, payload_hashes, block_timestamp)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, string(block.ID), doc, pqStringArray(txIDs), pqStringArray(payloadHashes), parseTimestamp(block.Block.Timestamp))
		return err
	}
	return withDurability(ctx, g.p.db, durability, exec)
}

func (g postgresBigchain) GetBlock(ctx context.Context, id crypto.Hash) (model.Block, bool, error) {
	var doc []byte
	err := g.p.db.QueryRowContext(ctx, `SELECT doc FROM bigchain WHERE id = $1`, string(id)).Scan(&doc)
	if err == sql.ErrNoRows {
		return model.Block{}, false, nil
	}
	if err != nil {
		return model.Block{}, false, fmt.Errorf("store: get block: %w", err)
	}
	var block model.Block
	if err := jsonUnmarshal(doc, &block); err != nil {
		return model.Block{}, false, fmt.Errorf("store: unmarshal block: %w", err)
	}
	return block, true, nil
}

func (g postgresBigchain) BlocksContainingTransaction(ctx context.Context, txid crypto.Hash) ([]model.Block, error) {
	rows, err := g.p.db.QueryContext(ctx,
		`SELECT doc FROM bigchain WHERE transaction_ids @> ARRAY[$1]::text[]`, string(txid))
	if err != nil {
		return nil, fmt.Errorf("store: query blocks by transaction id: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (g postgresBigchain) BlocksByPayloadHash(ctx context.Context, payloadHash crypto.Hash) ([]model.Block, error) {
	rows, err := g.p.db.QueryContext(ctx,
		`SELECT doc FROM bigchain WHERE payload_hashes @> ARRAY[$1]::text[]`, string(payloadHash))
	if err != nil {
		return nil, fmt.Errorf("store: query blocks by payload hash: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (g postgresBigchain) AppendVote(ctx context.Context, id crypto.Hash, vote model.Vote, blockNumber uint64) error {
	voteDoc, err := jsonMarshal(vote)
	if err != nil {
		return fmt.Errorf("store: marshal vote: %w", err)
	}

	tx, err := g.p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin append vote: %w", err)
	}
	defer tx.Rollback()

	var doc []byte
	if err := tx.QueryRowContext(ctx, `SELECT doc FROM bigchain WHERE id = $1 FOR UPDATE`, string(id)).Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return ErrBlockNotFound
		}
		return fmt.Errorf("store: lock block: %w", err)
	}
	var block model.Block
	if err := jsonUnmarshal(doc, &block); err != nil {
		return fmt.Errorf("store: unmarshal block: %w", err)
	}
	if _, already := block.VoteBy(vote.NodePubkey); already {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE bigchain SET doc = jsonb_set(doc, '{votes}', COALESCE(doc->'votes', '[]'::jsonb) || $2::jsonb)
		WHERE id = $1
	`, string(id), voteDoc); err != nil {
		return fmt.Errorf("store: append vote: %w", err)
	}

	if block.BlockNumber == nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE bigchain SET doc = jsonb_set(doc, '{block_number}', to_jsonb($2::bigint))
			WHERE id = $1 AND NOT (doc ? 'block_number')
		`, string(id), blockNumber); err != nil {
			return fmt.Errorf("store: set block number: %w", err)
		}
	}

	return tx.Commit()
}

func (g postgresBigchain) AllBlocks(ctx context.Context) ([]model.Block, error) {
	rows, err := g.p.db.QueryContext(ctx, `SELECT doc FROM bigchain`)
	if err != nil {
		return nil, fmt.Errorf("store: query bigchain: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (g postgresBigchain) BlocksOrderedByTimestamp(ctx context.Context, asc bool) ([]model.Block, error) {
	order := "ASC"
	if !asc {
		order = "DESC"
	}
	rows, err := g.p.db.QueryContext(ctx, `SELECT doc FROM bigchain ORDER BY block_timestamp `+order)
	if err != nil {
		return nil, fmt.Errorf("store: query bigchain ordered: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func (g postgresBigchain) Count(ctx context.Context) (int, error) {
	var n int
	if err := g.p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bigchain`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count bigchain: %w", err)
	}
	return n, nil
}

func scanBlocks(rows *sql.Rows) ([]model.Block, error) {
	var out []model.Block
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan block: %w", err)
		}
		var block model.Block
		if err := jsonUnmarshal(doc, &block); err != nil {
			return nil, fmt.Errorf("store: unmarshal block: %w", err)
		}
		out = append(out, block)
	}
	return out, rows.Err()
}

// ============================================================================
// DURABILITY
// ============================================================================

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// withDurability runs fn against db directly for DurabilitySoft, or inside
// a transaction with synchronous_commit forced on for DurabilityHard,
// matching the "buffered vs fsynced" distinction in §4.2.
func withDurability(ctx context.Context, db *sql.DB, durability Durability, fn func(ctx context.Context, execer execContexter) error) error {
	if durability == DurabilitySoft {
		return fn(ctx, db)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin hard write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SET LOCAL synchronous_commit = on`); err != nil {
		return fmt.Errorf("store: force synchronous commit: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
