package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLExecutor позволяет выполнять запросы как на *sql.DB, так и на *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx — транзакция с точки зрения сервисного слоя.
type Tx interface {
	SQLExecutor
	Commit() error
	Rollback() error
}

// TxBeginner абстрагирует *sql.DB для сервисов, управляющих транзакциями,
// чтобы в тестах их можно было подменить in-memory реализацией.
type TxBeginner interface {
	SQLExecutor
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
}

// SQLDatabase адаптирует *sql.DB к TxBeginner.
type SQLDatabase struct {
	*sql.DB
}

func NewSQLDatabase(db *sql.DB) SQLDatabase {
	return SQLDatabase{DB: db}
}

func (d SQLDatabase) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	return d.DB.BeginTx(ctx, opts)
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError
	}
	return nil
}
