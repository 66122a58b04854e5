package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/linemk/usdt-shop/internal/config"
	"github.com/linemk/usdt-shop/internal/storage"
	"github.com/linemk/usdt-shop/internal/storage/memory"
)

// Repositories - набор хранилищ, с которыми работают сервисы
type Repositories struct {
	Users     storage.UserStorage
	Products  storage.ProductStorage
	Orders    storage.OrderStorage
	Inventory storage.InventoryStorage
}

type App struct {
	Config *config.Config
	Logger *slog.Logger
	// DB nil при драйвере memory
	DB    *sql.DB
	Repos Repositories
}

// NewApp создаёт новый экземпляр App
func NewApp(log *slog.Logger, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: log,
	}

	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		store := memory.New()
		app.Repos = Repositories{Users: store, Products: store, Orders: store, Inventory: store}
		return app, nil
	}

	db, err := openPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}
	app.DB = db
	app.Repos = Repositories{
		Users:     storage.NewUserRepository(db),
		Products:  storage.NewProductRepository(db),
		Orders:    storage.NewOrderRepository(db),
		Inventory: storage.NewInventoryRepository(db),
	}

	return app, nil
}

// DSN строка подключения к postgres
func DSN(dbCfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.Name,
	)
}

func openPostgres(dbCfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", DSN(dbCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Close закрывает подключение к БД, если оно есть
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
