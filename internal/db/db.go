package db

import (
	"fmt"
	"log"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/curaious/warden/internal/config"
)

// NewConn opens the audit store. The sqlite driver keeps the store embedded
// with no external service; postgres is for shared deployments.
func NewConn(conf *config.Config) *sqlx.DB {
	driver := conf.DB_DRIVER
	var dsn string

	switch driver {
	case "postgres":
		dsn = fmt.Sprintf("postgresql://%v:%v@%v:%v/%v", conf.DB_USERNAME, conf.DB_PASSWORD, conf.DB_HOST, conf.DB_PORT, conf.DB_NAME)
		if conf.DISABLE_TLS == "true" {
			dsn = dsn + "?sslmode=disable"
		}
	default:
		driver = "sqlite"
		dsn = conf.DB_PATH
	}

	slog.Info("Connecting to audit store", slog.String("driver", driver))

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		log.Fatal(err)
	}
	err = db.Ping()
	if err != nil {
		log.Fatalln("Unable to connect to audit store", err.Error())
	}

	slog.Info("Connected to audit store")

	return db
}
