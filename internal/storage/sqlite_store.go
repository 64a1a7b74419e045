package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/uniride/internal/models"
)

// SQLiteStore is the embedded single-file alternative to Postgres, aimed at
// small deployments. The schema is created on open.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		gender TEXT DEFAULT '',
		enrollment_id TEXT DEFAULT '',
		gender_pref TEXT DEFAULT 'any',
		vehicle_pref TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS rides (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id TEXT NOT NULL DEFAULT '',
		from_location TEXT NOT NULL,
		to_location TEXT NOT NULL,
		departure TEXT NOT NULL DEFAULT 'now',
		mode TEXT NOT NULL DEFAULT '',
		ride_type TEXT NOT NULL,
		current_capacity INTEGER NOT NULL DEFAULT 0,
		max_capacity INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		females_only INTEGER NOT NULL DEFAULT 0,
		gender_pref TEXT NOT NULL DEFAULT 'any',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS join_requests (
		ride_id INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (ride_id, user_id),
		FOREIGN KEY (ride_id) REFERENCES rides(id)
	);

	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		area1 TEXT NOT NULL,
		area2 TEXT NOT NULL,
		distance_km REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ride_id INTEGER NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT DEFAULT '',
		text TEXT NOT NULL,
		sent_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_join_requests_user ON join_requests(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_rides_status ON rides(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) LoadAllRides() ([]*models.Ride, error) {
	rows, err := s.db.Query(`SELECT ` + rideColumns + ` FROM rides ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, r := range out {
		if err := s.attachRequests(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) LoadRide(id int64) (*models.Ride, error) {
	row := s.db.QueryRow(`SELECT `+rideColumns+` FROM rides WHERE id = ?`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf(models.ReasonRideNotFound, "ride %d", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachRequests(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) SaveRide(r *models.Ride) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO rides(owner_id, from_location, to_location, departure, mode, ride_type, current_capacity, max_capacity, status, females_only, gender_pref, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.OwnerID, r.From, r.To, r.Departure, r.Mode, string(r.Type), r.CurrentCapacity, r.MaxCapacity,
		string(r.Status), r.FemalesOnly, r.GenderPref, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return 0, err
	}
	r.ID, err = res.LastInsertId()
	return r.ID, err
}

func (s *SQLiteStore) UpdateRideCapacity(id int64, capacity int) error {
	res, err := s.db.Exec(
		`UPDATE rides SET current_capacity = ?, updated_at = ? WHERE id = ? AND ? BETWEEN 0 AND max_capacity`,
		capacity, time.Now(), id, capacity)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Conflictf(models.ReasonNotApprovable, "capacity %d rejected for ride %d", capacity, id)
	}
	return nil
}

func (s *SQLiteStore) UpdateRideStatus(id int64, status models.RideStatus) error {
	res, err := s.db.Exec(`UPDATE rides SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFoundf(models.ReasonRideNotFound, "ride %d", id)
	}
	return nil
}

func (s *SQLiteStore) HasActivePendingRequest(userID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM join_requests WHERE user_id = ? AND status = 'pending'`, userID).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) SaveJoinRequest(rideID int64, userID string) error {
	// duplicate submissions stay idempotent; a rejected row flips back to
	// pending so the user may re-request, accepted rows are never touched
	_, err := s.db.Exec(
		`INSERT INTO join_requests(ride_id, user_id, status, created_at) VALUES(?,?,'pending',?)
		 ON CONFLICT(ride_id, user_id) DO UPDATE SET status = 'pending', created_at = excluded.created_at
		 WHERE status = 'rejected'`,
		rideID, userID, time.Now())
	return err
}

func (s *SQLiteStore) UpdateJoinRequestStatus(rideID int64, userID string, status models.RequestStatus) error {
	res, err := s.db.Exec(
		`UPDATE join_requests SET status = ? WHERE ride_id = ? AND user_id = ? AND status = 'pending'`,
		string(status), rideID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFoundf(models.ReasonRequestNotFound, "no pending request for %s on ride %d", userID, rideID)
	}
	return nil
}

func (s *SQLiteStore) PendingRequests(rideID int64) ([]models.JoinRequest, error) {
	rows, err := s.db.Query(
		`SELECT ride_id, user_id, status, created_at FROM join_requests WHERE ride_id = ? AND status = 'pending' ORDER BY created_at`,
		rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *SQLiteStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO users(id, name, email, gender, enrollment_id, gender_pref, vehicle_pref) VALUES(?,?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.Gender, u.EnrollmentID, u.GenderPref, u.VehiclePref)
	return err
}

func (s *SQLiteStore) UserByID(id string) (*models.User, error) {
	return s.userBy(`id = ?`, id)
}

func (s *SQLiteStore) UserByEmail(email string) (*models.User, error) {
	return s.userBy(`email = ?`, email)
}

func (s *SQLiteStore) userBy(where string, arg any) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		`SELECT id, name, email, gender, enrollment_id, gender_pref, vehicle_pref FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Gender, &u.EnrollmentID, &u.GenderPref, &u.VehiclePref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf(models.ReasonUserNotFound, "user %v", arg)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) UpdateUserPreferences(userID, genderPref, vehiclePref string) error {
	res, err := s.db.Exec(`UPDATE users SET gender_pref = ?, vehicle_pref = ? WHERE id = ?`, genderPref, vehiclePref, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFoundf(models.ReasonUserNotFound, "user %s", userID)
	}
	return nil
}

func (s *SQLiteStore) LocationEdges() ([]models.LocationEdge, error) {
	rows, err := s.db.Query(`SELECT area1, area2, distance_km FROM edges`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.LocationEdge
	for rows.Next() {
		var e models.LocationEdge
		if err := rows.Scan(&e.Area1, &e.Area2, &e.DistanceKm); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReplaceLocationEdges(edges []models.LocationEdge) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM edges`); err != nil {
		return err
	}
	for _, e := range edges {
		if _, err := tx.Exec(`INSERT INTO edges(area1, area2, distance_km) VALUES(?,?,?)`, e.Area1, e.Area2, e.DistanceKm); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveMessage(m models.Message) error {
	_, err := s.db.Exec(
		`INSERT INTO messages(ride_id, sender, recipient, text, sent_at) VALUES(?,?,?,?,?)`,
		m.RideID, m.Sender, m.Recipient, m.Text, m.SentAt)
	return err
}

func (s *SQLiteStore) MessagesForRide(rideID int64) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT ride_id, sender, recipient, text, sent_at FROM messages WHERE ride_id = ? ORDER BY sent_at`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.RideID, &m.Sender, &m.Recipient, &m.Text, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) attachRequests(r *models.Ride) error {
	rows, err := s.db.Query(
		`SELECT ride_id, user_id, status, created_at FROM join_requests WHERE ride_id = ? ORDER BY created_at`, r.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	reqs, err := scanRequests(rows)
	if err != nil {
		return err
	}
	r.Pending = reqs
	if r.OwnerID != "" {
		r.Participants = []string{r.OwnerID}
	} else {
		r.Participants = nil
	}
	for _, jr := range reqs {
		if jr.Status == models.RequestAccepted {
			r.Participants = append(r.Participants, jr.UserID)
		}
	}
	return nil
}
