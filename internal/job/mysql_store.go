package job

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"AI-Agency/internal/crew"
	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/llm"
)

// MySQLStore 使用 MySQL 记录作业状态，支持多实例共享同一个存储。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS crew_jobs (
        id VARCHAR(64) PRIMARY KEY,
        crew VARCHAR(128) NOT NULL,
        trace_id VARCHAR(64) DEFAULT '',
        input TEXT,
        meta_provider VARCHAR(32) DEFAULT '',
        meta_model VARCHAR(128) DEFAULT '',
        status VARCHAR(16) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        result_workflow VARCHAR(128) DEFAULT '',
        result_provider VARCHAR(32) DEFAULT '',
        result_model VARCHAR(128) DEFAULT '',
        result_output MEDIUMTEXT,
        result_inputs TEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_job_status (status),
        INDEX idx_job_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 crew_jobs 表失败")
	}
	return nil
}

// Create 插入新的作业记录。
func (s *MySQLStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeValidation, "job 不能为空")
	}
	if strings.TrimSpace(job.ID) == "" {
		return xerrors.New(xerrors.CodeValidation, "作业 ID 不能为空")
	}

	now := time.Now().Unix()
	job.CreatedAt = now
	job.UpdatedAt = now

	inputValue, err := marshalJSONColumn(job.Input)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeValidation, err, "编码作业输入失败")
	}

	metaProvider, metaModel := "", ""
	if job.Meta != nil {
		metaProvider = job.Meta.LLMProvider
		metaModel = job.Meta.Model
	}

	const stmt = `INSERT INTO crew_jobs
        (id, crew, trace_id, input, meta_provider, meta_model, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		job.ID,
		job.Crew,
		job.TraceID,
		inputValue,
		metaProvider,
		metaModel,
		job.Status,
		job.Attempts,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入作业失败")
	}
	return nil
}

const selectColumns = `id, crew, trace_id, input, meta_provider, meta_model, status, attempts, max_retries, last_error, error_code,
        result_workflow, result_provider, result_model, result_output, result_inputs, created_at, updated_at`

// Get 查询指定作业。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Job, error) {
	stmt := `SELECT ` + selectColumns + ` FROM crew_jobs WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	job, err := scanJob(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业失败")
	}
	return job, nil
}

// Claim 通过条件更新将作业标记为运行中，并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Job, error) {
	const updateStmt = `UPDATE crew_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status = ? AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusQueued,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新作业状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		job, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch job.Status {
		case StatusDone:
			return job, ErrJobCompleted
		case StatusFailed:
			return job, ErrJobTerminal
		case StatusRunning:
			return job, ErrJobConflict
		default:
			if job.Attempts >= job.MaxRetries {
				return job, ErrJobExhausted
			}
			return job, ErrJobConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkDone 将作业标记为成功。终态作业上的写入返回 ErrJobTerminal。
func (s *MySQLStore) MarkDone(ctx context.Context, id string, result crew.Result) error {
	inputsValue, err := marshalJSONColumn(result.InputSummary)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码作业结果失败")
	}

	const stmt = `UPDATE crew_jobs SET status = ?, result_workflow = ?, result_provider = ?, result_model = ?,
        result_output = ?, result_inputs = ?, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status NOT IN (?, ?)`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusDone,
		result.Workflow,
		result.Provider,
		result.Model,
		result.Output,
		inputsValue,
		now,
		id,
		StatusDone,
		StatusFailed,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记作业成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		job, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if job.Status.IsTerminal() {
			return ErrJobTerminal
		}
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed 将作业标记为失败。terminal 为假时作业回到排队状态等待重试，
// failed 因此始终是终态。终态作业上的改写返回 ErrJobTerminal。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	const stmt = `UPDATE crew_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ?,
        result_workflow = '', result_provider = '', result_model = '', result_output = NULL, result_inputs = NULL
        WHERE id = ? AND status NOT IN (?, ?)`

	status := StatusFailed
	if !terminal {
		status = StatusQueued
	}
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		status,
		lastError,
		string(code),
		now,
		id,
		StatusDone,
		StatusFailed,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记作业失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		job, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if job.Status.IsTerminal() {
			return ErrJobTerminal
		}
		return ErrJobNotFound
	}
	return nil
}

// List 返回符合过滤条件的作业。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	opts.applyDefaults()

	query := `SELECT ` + selectColumns + ` FROM crew_jobs`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业列表失败")
	}
	defer rows.Close()

	jobs := make([]*Job, 0, opts.Limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析作业记录失败")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历作业失败")
	}
	return jobs, nil
}

// Stats 返回符合过滤条件的作业聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (JobStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS queued,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS done,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM crew_jobs`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(StatusQueued), string(StatusRunning), string(StatusDone), string(StatusFailed)}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats JobStats
	if err := row.Scan(
		&stats.Total,
		&stats.Queued,
		&stats.Running,
		&stats.Done,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询作业统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Sweep 删除更新时间早于 olderThan 的终态作业。
func (s *MySQLStore) Sweep(ctx context.Context, olderThan int64) (int, error) {
	const stmt = `DELETE FROM crew_jobs WHERE status IN (?, ?) AND updated_at < ?`

	res, err := s.db.ExecContext(ctx, stmt, StatusDone, StatusFailed, olderThan)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "清理过期作业失败")
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取清理数量失败")
	}
	return int(removed), nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var input, resultOutput, resultInputs, lastError sql.NullString
	var metaProvider, metaModel string
	var resultWorkflow, resultProvider, resultModel string

	if err := row.Scan(
		&job.ID,
		&job.Crew,
		&job.TraceID,
		&input,
		&metaProvider,
		&metaModel,
		&job.Status,
		&job.Attempts,
		&job.MaxRetries,
		&lastError,
		&job.ErrorCode,
		&resultWorkflow,
		&resultProvider,
		&resultModel,
		&resultOutput,
		&resultInputs,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.LastError = lastError.String

	if input.Valid && strings.TrimSpace(input.String) != "" {
		decoded := make(map[string]any)
		if err := json.Unmarshal([]byte(input.String), &decoded); err != nil {
			return nil, fmt.Errorf("解析作业输入失败: %w", err)
		}
		job.Input = decoded
	}

	if metaProvider != "" || metaModel != "" {
		job.Meta = &llm.Meta{LLMProvider: metaProvider, Model: metaModel}
	}

	if resultWorkflow != "" || (resultOutput.Valid && resultOutput.String != "") {
		result := crew.Result{
			Workflow: resultWorkflow,
			Provider: resultProvider,
			Model:    resultModel,
			Output:   resultOutput.String,
		}
		if resultInputs.Valid && strings.TrimSpace(resultInputs.String) != "" {
			summary := make(map[string]string)
			if err := json.Unmarshal([]byte(resultInputs.String), &summary); err != nil {
				return nil, fmt.Errorf("解析作业结果输入失败: %w", err)
			}
			result.InputSummary = summary
		}
		job.Result = &result
	}
	return &job, nil
}

func marshalJSONColumn(value any) (sql.NullString, error) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]string:
		if len(v) == 0 {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if opts.Crew != "" {
		conditions = append(conditions, "crew = ?")
		args = append(args, opts.Crew)
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
