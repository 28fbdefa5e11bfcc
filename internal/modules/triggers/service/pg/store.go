package pg

import (
	"context"

	"trigger_bot/internal/models"
	"trigger_bot/internal/modules/triggers/service"
	"trigger_bot/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Store хранит триггеры и настройки в Postgres. Запись триггера —
// JSONB, ключ — его id (как в старом shelve-хранилище, только с
// транзакциями).
type Store struct {
	db *db.PgTxManager
}

func NewStore(m *db.PgTxManager) *Store {
	return &Store{db: m}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctxTx,
			`CREATE TABLE IF NOT EXISTS triggers (
				id   BIGINT PRIMARY KEY,
				data JSONB NOT NULL
			)`); err != nil {
			return err
		}
		_, err := tx.Exec(ctxTx,
			`CREATE TABLE IF NOT EXISTS bot_settings (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`)
		return err
	})
}

func (s *Store) Insert(ctx context.Context, t models.Trigger) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.Insert")
		}
	}()
	data, err := sonic.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `INSERT INTO triggers (id, data) VALUES ($1, $2)`, t.ID, data)
		return err
	})
}

func (s *Store) Delete(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil && !errors.Is(err, service.ErrNotFound) {
			err = errors.Wrap(err, "pg.Delete")
		}
	}()
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx, `DELETE FROM triggers WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return service.ErrNotFound
		}
		return nil
	})
}

func (s *Store) FindByPair(ctx context.Context, symbol string) ([]int64, error) {
	triggers, err := s.Iterate(ctx)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, t := range triggers {
		if t.Pair.Symbol() == symbol {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (s *Store) Iterate(ctx context.Context) (out []models.Trigger, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.Iterate")
		}
	}()
	rows, err := s.db.Conn().Query(ctx, `SELECT data FROM triggers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t models.Trigger
		if err := sonic.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Flush — no-op: каждая операция коммитится своей транзакцией.
func (s *Store) Flush(context.Context) error { return nil }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.Conn().QueryRow(ctx, `SELECT value FROM bot_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "pg.Get")
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO bot_settings (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
		return err
	})
}
