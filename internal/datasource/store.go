package datasource

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dbconnector "reportengine-backend"
)

// PostgresStore reads data source records from the metadata database.
// Passwords are stored encrypted and never leave the store in that form.
type PostgresStore struct {
	pool      *pgxpool.Pool
	encryptor *Encryptor
}

func NewPostgresStore(pool *pgxpool.Pool, encryptor *Encryptor) *PostgresStore {
	return &PostgresStore{pool: pool, encryptor: encryptor}
}

func (s *PostgresStore) GetDataSource(ctx context.Context, id string) (dbconnector.ConnectionConfig, error) {
	row := s.pool.QueryRow(ctx, `SELECT type, host, port, user_name, password_enc, database, ssl_mode FROM data_sources WHERE id=$1`, id)
	var connType string
	var host string
	var port int
	var user string
	var passwordEnc string
	var database string
	var sslMode string
	if err := row.Scan(&connType, &host, &port, &user, &passwordEnc, &database, &sslMode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dbconnector.ConnectionConfig{}, ErrNotFound
		}
		return dbconnector.ConnectionConfig{}, err
	}
	password, err := s.encryptor.Decrypt(passwordEnc)
	if err != nil {
		return dbconnector.ConnectionConfig{}, errors.New("failed to decrypt password")
	}
	return dbconnector.ConnectionConfig{
		Type:     connType,
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		Database: database,
		SSLMode:  sslMode,
	}, nil
}

// SaveDataSource upserts a data source record, encrypting the password.
func (s *PostgresStore) SaveDataSource(ctx context.Context, id string, cfg dbconnector.ConnectionConfig) error {
	passwordEnc, err := s.encryptor.Encrypt(cfg.Password)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO data_sources (id, type, host, port, user_name, password_enc, database, ssl_mode)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			type=EXCLUDED.type, host=EXCLUDED.host, port=EXCLUDED.port,
			user_name=EXCLUDED.user_name, password_enc=EXCLUDED.password_enc,
			database=EXCLUDED.database, ssl_mode=EXCLUDED.ssl_mode`,
		id, cfg.Type, cfg.Host, cfg.Port, cfg.User, passwordEnc, cfg.Database, cfg.SSLMode,
	)
	return err
}
