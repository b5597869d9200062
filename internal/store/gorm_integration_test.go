//go:build integration

package store

import (
	"fmt"
	"testing"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xelth-com/colocacion/internal/models"
)

const integrationPort = 5439

func TestGormStoreContract(t *testing.T) {
	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Port(integrationPort).
		Database("colocacion_test").
		DataPath(t.TempDir()).
		RuntimePath(t.TempDir()))
	require.NoError(t, pg.Start())
	t.Cleanup(func() { _ = pg.Stop() })

	dsn := fmt.Sprintf("host=localhost port=%d user=postgres password=postgres dbname=colocacion_test sslmode=disable", integrationPort)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.LocationChangeRecord{}, &models.PrintLabel{}))

	runStoreContract(t, NewGormStore(db).Stores())
}
