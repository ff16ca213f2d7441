package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbTimeout = 5 * time.Second

	pgUniqueViolation = "23505"
)

// PostgresStore is a PostgreSQL-backed Store with one table per kind.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed node store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// SchemaStatements returns the DDL for every tree table, its unique indexes
// and the audit table. Statements are idempotent.
func SchemaStatements() []string {
	stmts := make([]string, 0, len(Chain)*2+2)
	for _, k := range Chain {
		cols := []string{"id UUID PRIMARY KEY"}
		for _, a := range k.Ancestors() {
			cols = append(cols, a.IDField()+" UUID NOT NULL")
		}
		cols = append(cols,
			"name TEXT NOT NULL",
			"position INTEGER NOT NULL CHECK (position >= 1)",
			"status TEXT NOT NULL",
			"created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
			"updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		)
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
			k.Collection(), strings.Join(cols, ",\n\t")))

		if k == KindExam {
			stmts = append(stmts, "CREATE UNIQUE INDEX IF NOT EXISTS exams_name_key ON exams (name)")
			continue
		}
		parent := k.Parent().IDField()
		stmts = append(stmts,
			fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_position_key ON %[1]s (%[2]s, position)", k.Collection(), parent),
			fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_name_key ON %[1]s (%[2]s, name)", k.Collection(), parent),
		)
		for _, a := range k.Ancestors() {
			if a == k.Parent() {
				continue
			}
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %[1]s_%[2]s_idx ON %[1]s (%[2]s)", k.Collection(), a.IDField()))
		}
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS exam_details (
	exam_id UUID PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	total_marks INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
	id BIGSERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	node_id UUID,
	action TEXT NOT NULL,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	)
	return stmts
}

func (s *PostgresStore) Insert(ctx context.Context, n *Node) error {
	if !n.Kind.Valid() {
		return invalidArg("invalid kind")
	}
	if n.ID == "" {
		n.ID = NewID()
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cols := []string{"id"}
	args := []any{n.ID}
	for _, a := range n.Kind.Ancestors() {
		cols = append(cols, a.IDField())
		args = append(args, n.Path.ID(a))
	}
	cols = append(cols, "name", "position", "status")
	args = append(args, n.Name, n.Position, string(n.Status))

	placeholders := make([]string, len(cols))
	for i, c := range cols {
		if c == "id" || strings.HasSuffix(c, "_id") {
			placeholders[i] = fmt.Sprintf("$%d::uuid", i+1)
		} else {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
	}

	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING created_at, updated_at`,
			n.Kind.Collection(), strings.Join(cols, ", "), strings.Join(placeholders, ", ")),
		args...,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert %s: %w", n.Kind, mapPgError(err))
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, kind Kind, id string) (*Node, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1::uuid`, selectColumns(kind), kind.Collection()),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	nodes, err := collectNodes(rows, kind)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, notFound(kind, id)
	}
	return &nodes[0], nil
}

func (s *PostgresStore) List(ctx context.Context, kind Kind, f Filter) ([]Node, error) {
	where, args, err := whereClause(kind, f, 1)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY position ASC, name ASC`, selectColumns(kind), kind.Collection(), where),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return collectNodes(rows, kind)
}

func (s *PostgresStore) Update(ctx context.Context, kind Kind, id string, p Patch) (*Node, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	if p.Name != nil {
		args = append(args, *p.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if p.Position != nil {
		args = append(args, *p.Position)
		sets = append(sets, fmt.Sprintf("position = $%d", len(args)))
	}
	if p.Status != nil {
		args = append(args, string(*p.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1::uuid RETURNING %s`,
			kind.Collection(), strings.Join(sets, ", "), selectColumns(kind)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", kind, mapPgError(err))
	}
	nodes, err := collectNodes(rows, kind)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, notFound(kind, id)
	}
	return &nodes[0], nil
}

func (s *PostgresStore) Delete(ctx context.Context, kind Kind, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1::uuid`, kind.Collection()),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", kind, err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *PostgresStore) FindIDs(ctx context.Context, kind Kind, f Filter) ([]string, error) {
	where, args, err := whereClause(kind, f, 1)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id::text FROM %s%s ORDER BY id`, kind.Collection(), where),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("find %s ids: %w", kind, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %s ids: %w", kind, err)
	}
	return ids, nil
}

func (s *PostgresStore) DeleteMany(ctx context.Context, kind Kind, f Filter) (int64, error) {
	where, args, err := whereClause(kind, f, 1)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s%s`, kind.Collection(), where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	return cmd.RowsAffected(), nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, kind Kind, f Filter, status Status) (int64, error) {
	where, args, err := whereClause(kind, f, 2)
	if err != nil {
		return 0, err
	}
	if where == "" {
		where = " WHERE status <> $1"
	} else {
		where += " AND status <> $1"
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = NOW()%s`, kind.Collection(), where),
		append([]any{string(status)}, args...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("set %s status: %w", kind, err)
	}
	return cmd.RowsAffected(), nil
}

// SetPositions sends every write in one pipelined batch. Postgres runs the
// batch as an implicit transaction, so a failing write rolls the batch back.
func (s *PostgresStore) SetPositions(ctx context.Context, kind Kind, writes []PositionWrite) (int64, error) {
	if len(writes) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := fmt.Sprintf(
		`UPDATE %s SET position = $2, updated_at = NOW() WHERE id = $1::uuid AND position <> $2`,
		kind.Collection(),
	)
	batch := &pgx.Batch{}
	for _, w := range writes {
		batch.Queue(query, w.ID, w.Position)
	}

	br := s.pool.SendBatch(ctx, batch)
	var modified int64
	for range writes {
		cmd, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("set %s positions: %w", kind, mapPgError(err))
		}
		modified += cmd.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("set %s positions: %w", kind, mapPgError(err))
	}
	return modified, nil
}

func (s *PostgresStore) MaxPosition(ctx context.Context, kind Kind, parentID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT COALESCE(MAX(position), 0) FROM %s`, kind.Collection())
	var args []any
	if parent := kind.Parent(); parent.Valid() {
		query += fmt.Sprintf(` WHERE %s = $1::uuid`, parent.IDField())
		args = append(args, parentID)
	}

	var highest int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&highest); err != nil {
		return 0, fmt.Errorf("max %s position: %w", kind, err)
	}
	return highest, nil
}

func (s *PostgresStore) GetExamDetail(ctx context.Context, examID string) (*ExamDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	d := &ExamDetail{}
	err := s.pool.QueryRow(ctx,
		`SELECT exam_id::text, description, duration_minutes, total_marks, updated_at
		 FROM exam_details
		 WHERE exam_id = $1::uuid`,
		examID,
	).Scan(&d.ExamID, &d.Description, &d.DurationMinutes, &d.TotalMarks, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: exam detail %s", ErrNotFound, examID)
		}
		return nil, fmt.Errorf("get exam detail: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) PutExamDetail(ctx context.Context, d ExamDetail) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO exam_details (exam_id, description, duration_minutes, total_marks, updated_at)
		 VALUES ($1::uuid, $2, $3, $4, NOW())
		 ON CONFLICT (exam_id) DO UPDATE
		 SET description = EXCLUDED.description,
		     duration_minutes = EXCLUDED.duration_minutes,
		     total_marks = EXCLUDED.total_marks,
		     updated_at = NOW()`,
		d.ExamID,
		d.Description,
		d.DurationMinutes,
		d.TotalMarks,
	)
	if err != nil {
		return fmt.Errorf("put exam detail: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExamDetails(ctx context.Context, examID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM exam_details WHERE exam_id = $1::uuid`, examID)
	if err != nil {
		return 0, fmt.Errorf("delete exam details: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func selectColumns(kind Kind) string {
	cols := []string{"id::text"}
	for _, a := range kind.Ancestors() {
		cols = append(cols, a.IDField()+"::text")
	}
	cols = append(cols, "name", "position", "status", "created_at", "updated_at")
	return strings.Join(cols, ", ")
}

func collectNodes(rows pgx.Rows, kind Kind) ([]Node, error) {
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		n := Node{Kind: kind, Path: make(Path, kind.Depth())}
		dest := []any{&n.ID}
		for i := range n.Path {
			dest = append(dest, &n.Path[i])
		}
		var status string
		dest = append(dest, &n.Name, &n.Position, &status, &n.CreatedAt, &n.UpdatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		n.Status = Status(status)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, mapPgError(err))
	}
	return nodes, nil
}

// whereClause renders f as a WHERE clause whose first placeholder is $argN.
func whereClause(kind Kind, f Filter, argN int) (string, []any, error) {
	if err := f.validFor(kind); err != nil {
		return "", nil, err
	}
	if f.matchesAll() {
		return "", nil, nil
	}
	ids := f.IDs
	if ids == nil {
		ids = []string{}
	}
	return fmt.Sprintf(" WHERE %s = ANY($%d::uuid[])", f.column(kind), argN), []any{ids}, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Detail)
	}
	return err
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
