package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

type extContext interface {
	sqlx.ExtContext
	PreparexContext(ctx context.Context, query string) (*sqlx.Stmt, error)
}

// Conn runs instrumented statements against a pool or a transaction.
// Queries use '?' placeholders and are rebound for the active driver.
type Conn struct {
	ext     extContext
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// Rebind converts '?' placeholders to the driver's bindvar form
func (c *Conn) Rebind(query string) string {
	return c.ext.Rebind(query)
}

func (c *Conn) observe(queryType string, start time.Time) time.Duration {
	duration := time.Since(start)
	c.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
	return duration
}

// QueryRowContext executes a query expected to return at most one row
func (c *Conn) QueryRowContext(ctx context.Context, queryType, query string, args ...interface{}) *sqlx.Row {
	timer := time.Now()
	defer c.observe(queryType, timer)

	return c.ext.QueryRowxContext(ctx, c.Rebind(query), args...)
}

// ExecContext executes a command with context and metrics
func (c *Conn) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer func() {
		duration := c.observe(queryType, timer)

		c.logger.Debug(ctx, "[DB_EXEC] Command executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	result, err := c.ext.ExecContext(ctx, c.Rebind(query), args...)
	if err != nil {
		c.metrics.RecordDBError("exec_error")
		c.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}

	return result, nil
}

// GetContext executes a query that returns a single row
func (c *Conn) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer c.observe(queryType, timer)

	err := sqlx.GetContext(ctx, c.ext, dest, c.Rebind(query), args...)
	if err != nil && err != sql.ErrNoRows {
		c.metrics.RecordDBError("get_error")
		c.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}

	return err
}

// SelectContext executes a query that returns multiple rows
func (c *Conn) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer c.observe(queryType, timer)

	err := sqlx.SelectContext(ctx, c.ext, dest, c.Rebind(query), args...)
	if err != nil {
		c.metrics.RecordDBError("select_error")
		c.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}

	return nil
}

// PrepareContext prepares a statement for repeated execution
func (c *Conn) PrepareContext(ctx context.Context, queryType, query string) (*sqlx.Stmt, error) {
	stmt, err := c.ext.PreparexContext(ctx, c.Rebind(query))
	if err != nil {
		c.metrics.RecordDBError("prepare_error")
		c.logger.Error(ctx, "[DB_PREPARE_ERROR] Prepare failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}
	return stmt, nil
}
