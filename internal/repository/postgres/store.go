package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xela07ax/approval-flow/internal/domain"
	"github.com/xela07ax/approval-flow/internal/infra"
)

// Store — транзакционное хранилище ядра поверх pgxpool.
// Оба примитива координации — uk_action_idempotency и колонка version —
// живут в самой базе: никакие in-process локи их не подменяют, иначе
// корректность ломается при нескольких репликах сервиса.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore создает пул соединений по DatabaseConfig.
func NewStore(ctx context.Context, cfg infra.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger.Named("postgres"),
	}, nil
}

// Ping проверяет доступность базы при старте.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

// WithinTx исполняет fn в одной транзакции: commit при nil, rollback при
// любой ошибке или панике. Таймаут снаружи (через ctx) откатывает
// транзакцию целиком — частичных записей не бывает.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: failed to begin tx: %w", err)
	}
	// Rollback после успешного Commit — безопасный no-op
	defer pgTx.Rollback(ctx)

	if err := fn(&approvalTx{tx: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to commit tx: %w", err)
	}
	return nil
}
