package smsverify

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BurntSushi/migration"
	_ "github.com/lib/pq"
)

// sqlVerifyDB holds the send log, and the sessions when the session driver is postgres.
type sqlVerifyDB struct {
	db *sql.DB
}

// LogSend adds a row to the sendlog table for a single send attempt.
func (x *sqlVerifyDB) LogSend(r SendRecord) error {
	_, err := x.db.Exec(`INSERT INTO sendlog
		(senttime, agent, msisdn, queue, providerid, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		time.Now().UTC(), r.Agent, r.Mobile, r.Queue, r.MessageID, r.Status, r.Description)
	return err
}

// pendingSend is a sendlog row whose delivery has not been confirmed yet.
type pendingSend struct {
	ID        int64
	Agent     string
	MessageID string
}

// UnresolvedSends finds the sends of the last period that were accepted by an agent
// but whose delivery status has not been resolved.
func (x *sqlVerifyDB) UnresolvedSends(period time.Duration) ([]pendingSend, error) {
	rows, err := x.db.Query(`SELECT id, agent, providerid FROM sendlog
		WHERE status = $1 AND providerid <> '' AND senttime >= $2`,
		Sent, time.Now().UTC().Add(-period))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []pendingSend
	for rows.Next() {
		var p pendingSend
		if err := rows.Scan(&p.ID, &p.Agent, &p.MessageID); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// UpdateSendStatus records the delivery status retrieved from the agent.
func (x *sqlVerifyDB) UpdateSendStatus(id int64, status, description string) error {
	_, err := x.db.Exec(`UPDATE sendlog SET status = $1, description = $2, statustime = $3 WHERE id = $4`,
		status, description, time.Now().UTC(), id)
	return err
}

func (x *sqlVerifyDB) Load(sid, key string, now time.Time) ([]byte, bool, error) {
	var value []byte
	err := x.db.QueryRow(`SELECT value FROM session WHERE sid = $1 AND key = $2 AND expires >= $3`,
		sid, key, now.UTC()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (x *sqlVerifyDB) Save(sid, key string, value []byte, expires time.Time) error {
	_, err := x.db.Exec(`INSERT INTO session (sid, key, value, expires) VALUES ($1, $2, $3, $4)
		ON CONFLICT (sid, key) DO UPDATE SET value = EXCLUDED.value, expires = EXCLUDED.expires`,
		sid, key, value, expires.UTC())
	return err
}

func (x *sqlVerifyDB) Delete(sid, key string) error {
	_, err := x.db.Exec(`DELETE FROM session WHERE sid = $1 AND key = $2`, sid, key)
	return err
}

func (x *sqlVerifyDB) PurgeExpired(now time.Time) (int, error) {
	res, err := x.db.Exec(`DELETE FROM session WHERE expires < $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (x *sqlVerifyDB) Close() error {
	if x.db != nil {
		err := x.db.Close()
		x.db = nil
		return err
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////////

// Connect to the DB as defined in the dbConnection configuration.
func (x *ConfigDBConnection) open() (*sql.DB, error) {
	return sql.Open(x.Driver, x.connectionString(true))
}

// CreateDB takes care of creating a new DB for the verification service
// if the DB does not yet exist.
func (x *ConfigDBConnection) createDB() error {
	verifyDB := x.Database
	x.Database = "postgres" // Connect to the postgres DB when creating a new database
	db, err := sql.Open(x.Driver, x.connectionString(true))
	x.Database = verifyDB
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec("CREATE DATABASE " + x.Database)
	return err
}

// RunMigrations executes the migration process.
func (s *VerifyServer) runMigrations() error {
	db, err := migration.Open(s.Config.DBConnection.Driver, s.Config.DBConnection.connectionString(true), createMigrations())
	if err == nil {
		db.Close()
	}
	return err
}

// A 'sendlog' entry is created for every attempt to send a verification SMS, including the
// attempts that failed and were passed on to the next agent. The 'session' table holds the
// verification state of each client session when the session driver is postgres.
func createMigrations() []migration.Migrator {
	var migrations []migration.Migrator

	text := []string{
		`CREATE TABLE sendlog (
			id BIGSERIAL PRIMARY KEY,
			senttime TIMESTAMP,
			agent VARCHAR,
			msisdn VARCHAR,
			queue VARCHAR,
			providerid VARCHAR,
			status VARCHAR,
			description VARCHAR
		)`,

		`CREATE INDEX idx_sendlog_msisdn ON sendlog (msisdn, senttime)`,

		`CREATE TABLE session (
			sid VARCHAR NOT NULL,
			key VARCHAR NOT NULL,
			value BYTEA,
			expires TIMESTAMP NOT NULL,
			PRIMARY KEY (sid, key)
		)`,

		`ALTER TABLE sendlog ADD COLUMN statustime TIMESTAMP`,
	}

	for _, src := range text {
		srcCapture := src
		migrations = append(migrations, func(tx migration.LimitedTx) error {
			_, err := tx.Exec(srcCapture)
			return err
		})
	}
	return migrations
}

func (x *ConfigDBConnection) connectionString(addDB bool) string {
	sslmode := "disable"
	if x.SSL {
		sslmode = "require"
	}
	conStr := fmt.Sprintf("host=%v user=%v password=%v sslmode=%v", x.Host, x.User, x.Password, sslmode)
	if addDB {
		conStr += fmt.Sprintf(" dbname=%v", x.Database)
	}
	if x.Port != 0 {
		conStr += fmt.Sprintf(" port=%v", x.Port)
	}
	return conStr
}
