package database

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/errs"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/models"
)

// embeddedPassword is fixed; the embedded instance only listens on loopback
const embeddedPassword = "postgres"

// DB wraps gorm.DB and includes a reference to an embedded process if active
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// stalePID reads the postmaster pid left behind by a crashed embedded instance
func stalePID(dataPath string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(dataPath, "postmaster.pid"))
	if err != nil {
		return 0, false
	}
	first, _, _ := bytes.Cut(data, []byte("\n"))
	pid, err := strconv.Atoi(string(bytes.TrimSpace(first)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func alive(p *os.Process) bool {
	return p.Signal(syscall.Signal(0)) == nil
}

// recoverEmbedded stops an orphaned postgres from a previous run and removes
// its pid file so the embedded instance can start again.
func recoverEmbedded(dataPath string) error {
	log := logger.Component("database")
	pidFile := filepath.Join(dataPath, "postmaster.pid")

	pid, ok := stalePID(dataPath)
	if !ok {
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil || !alive(proc) {
		log.Info().Int("pid", pid).Msg("🧹 removing stale postmaster.pid")
		return os.Remove(pidFile)
	}

	log.Warn().Int("pid", pid).Msg("found orphaned PostgreSQL process, stopping it")
	_ = proc.Signal(syscall.SIGTERM)
	if waitFor(5*time.Second, func() bool { return !alive(proc) }) {
		return os.Remove(pidFile)
	}

	log.Warn().Int("pid", pid).Msg("process did not stop gracefully, sending SIGKILL")
	if err := proc.Kill(); err != nil {
		return errs.Wrapf(err, "kill orphaned postgres %d", pid)
	}
	waitFor(time.Second, func() bool { return !alive(proc) })
	return os.Remove(pidFile)
}

// waitFor polls cond until it holds or timeout elapses
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(250 * time.Millisecond)
	}
	return cond()
}

func portFree(port uint32) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

func startEmbedded(cfg config.DatabaseConfig) (*embeddedpostgres.EmbeddedPostgres, error) {
	log := logger.Component("database")
	log.Info().Str("data", cfg.EmbeddedDataPath).Msg("📦 embedded PostgreSQL mode, initializing internal database")

	if err := recoverEmbedded(cfg.EmbeddedDataPath); err != nil {
		return nil, errs.Wrap(err, "recover embedded database")
	}
	if !waitFor(3*time.Second, func() bool { return portFree(cfg.EmbeddedPort) }) {
		return nil, errs.Newf("port %d is still in use by another process", cfg.EmbeddedPort)
	}

	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		DataPath(cfg.EmbeddedDataPath).
		Port(cfg.EmbeddedPort).
		Database(cfg.Database).
		Username(cfg.Username).
		Password(embeddedPassword))
	if err := pg.Start(); err != nil {
		return nil, errs.Wrap(err, "failed to start embedded database")
	}

	log.Info().Uint32("port", cfg.EmbeddedPort).Msg("✅ embedded PostgreSQL started")
	return pg, nil
}

// Connect opens PostgreSQL, starting an embedded instance when Host=localhost
// and no password is configured.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	log := logger.Component("database")
	var embedded *embeddedpostgres.EmbeddedPostgres

	if cfg.Embedded() {
		pg, err := startEmbedded(cfg)
		if err != nil {
			return nil, err
		}
		embedded = pg
		cfg.Port = strconv.FormatUint(uint64(cfg.EmbeddedPort), 10)
		cfg.Password = embeddedPassword
	} else {
		log.Info().Str("host", cfg.Host).Str("port", cfg.Port).Msg("🌐 connecting to external PostgreSQL")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database,
	)

	logLevel := gormlogger.Warn
	if cfg.Quiet {
		logLevel = gormlogger.Silent
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, errs.Wrap(err, "failed to connect to database")
	}

	if sqlDB, err := db.DB(); err == nil {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 50
		}
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen / 5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info().Msg("✅ database connection established")

	return &DB{DB: db, embedded: embedded}, nil
}

// Migrate creates or updates the durable schema
func (db *DB) Migrate() error {
	return db.DB.AutoMigrate(
		&models.Product{},
		&models.LocationChangeRecord{},
		&models.PrintLabel{},
	)
}

// Close shuts down the connection pool and the embedded process
func (db *DB) Close() error {
	if db.embedded != nil {
		log := logger.Component("database")
		log.Info().Msg("🛑 stopping embedded PostgreSQL")
		defer func() { _ = db.embedded.Stop() }()
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
