package pg

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type DB struct {
	conn *gorm.DB
}

// Create opens a gorm connection without probing the server. The ping is
// deliberately skipped so callers can own the connect/retry policy.
func Create(config Config, withDebug bool) (*DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn(config)),
		&gorm.Config{
			NamingStrategy: schema.NamingStrategy{
				SingularTable: true,
			},
			DisableAutomaticPing: true,
		})
	if err != nil {
		return nil, err
	}

	if withDebug {
		conn = conn.Debug()
	}
	return &DB{conn: conn}, nil
}

// NewFromGorm wraps an already-open gorm handle. Used by tests to run the
// repository against sqlite.
func NewFromGorm(conn *gorm.DB) *DB {
	return &DB{conn: conn}
}

func (d *DB) Conn(ctx context.Context) *gorm.DB {
	return d.conn.WithContext(ctx)
}

func (d *DB) SQL() (*sql.DB, error) {
	return d.conn.DB()
}

func dsn(config Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable", config.Host, config.User, config.Password, config.Database, config.Port)
}
