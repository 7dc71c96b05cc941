package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	DBConnKey   contextKey = "db_conn"
	DBTxKey     contextKey = "db_tx"
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SchemaName returns the PostgreSQL schema holding a tenant's tables.
func SchemaName(tenantID string) string {
	return "tenant_" + tenantID
}

// TenantMiddleware acquires a pooled connection per request, points its
// search_path at the tenant schema and stores it on the request context.
func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := extractTenantID(c, defaultTenant)

			if !tenantIDPattern.MatchString(tenantID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			_, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(tenantID)))
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "tenant resolution failed")
			}

			ctx = context.WithValue(ctx, TenantIDKey, tenantID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)

			return next(c)
		}
	}
}

func extractTenantID(c echo.Context, defaultTenant string) string {
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}
	if tid := c.QueryParam("tenant_id"); tid != "" {
		return tid
	}
	return defaultTenant
}

// ConnFromContext retrieves the tenant-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TenantFromContext retrieves the tenant ID from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}

// CreateTenantSchema creates the schema for a tenant and, when migrator is
// non-nil, brings it up to date.
func CreateTenantSchema(ctx context.Context, pool Querier, tenantID string, migrator *Migrator) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}
	schema := SchemaName(tenantID)

	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrator != nil {
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}
	return nil
}

// TenantConns runs background work against tenant schemas outside of a
// request.
type TenantConns struct {
	pool *pgxpool.Pool
}

func NewTenantConns(pool *pgxpool.Pool) *TenantConns {
	return &TenantConns{pool: pool}
}

// Tenants lists the tenant ids that have a schema.
func (t *TenantConns) Tenants(ctx context.Context) ([]string, error) {
	return ListTenants(ctx, t.pool)
}

// WithTenant acquires a connection scoped to tenantID and passes fn a context
// carrying it, as TenantMiddleware does for requests.
func (t *TenantConns) WithTenant(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(tenantID))); err != nil {
		return fmt.Errorf("set search_path for %s: %w", tenantID, err)
	}
	ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	ctx = context.WithValue(ctx, DBConnKey, conn)
	return fn(ctx)
}

// ListTenants returns the ids of all tenant_ schemas, sorted.
func ListTenants(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT substr(schema_name, 8) FROM information_schema.schemata
		WHERE schema_name LIKE 'tenant\_%' ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list tenant schemas: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
