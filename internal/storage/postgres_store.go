package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/uniride/internal/models"
)

// PostgresStore persists rides, requests, users, chat and the proximity edge
// list in Postgres. Capacity writes go through a transaction with a row lock
// so concurrent approvals against one ride serialize at the database too.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

const rideColumns = `id, owner_id, from_location, to_location, departure, mode, ride_type, current_capacity, max_capacity, status, females_only, gender_pref, created_at, updated_at`

func (p *PostgresStore) LoadAllRides() ([]*models.Ride, error) {
	rows, err := p.db.Query(`SELECT ` + rideColumns + ` FROM rides ORDER BY id`)
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
		if err := p.attachRequests(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *PostgresStore) LoadRide(id int64) (*models.Ride, error) {
	row := p.db.QueryRow(`SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf(models.ReasonRideNotFound, "ride %d", id)
	}
	if err != nil {
		return nil, err
	}
	if err := p.attachRequests(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *PostgresStore) SaveRide(r *models.Ride) (int64, error) {
	err := p.db.QueryRow(
		`INSERT INTO rides(owner_id, from_location, to_location, departure, mode, ride_type, current_capacity, max_capacity, status, females_only, gender_pref, created_at, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		r.OwnerID, r.From, r.To, r.Departure, r.Mode, string(r.Type), r.CurrentCapacity, r.MaxCapacity,
		string(r.Status), r.FemalesOnly, r.GenderPref, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	return r.ID, err
}

func (p *PostgresStore) UpdateRideCapacity(id int64, capacity int) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var max int
	if err := tx.QueryRow(`SELECT max_capacity FROM rides WHERE id = $1 FOR UPDATE`, id).Scan(&max); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFoundf(models.ReasonRideNotFound, "ride %d", id)
		}
		return err
	}
	if capacity < 0 || capacity > max {
		return models.Conflictf(models.ReasonNotApprovable, "capacity %d out of range 0..%d", capacity, max)
	}
	if _, err := tx.Exec(`UPDATE rides SET current_capacity = $1, updated_at = $2 WHERE id = $3`, capacity, time.Now(), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) UpdateRideStatus(id int64, status models.RideStatus) error {
	res, err := p.db.Exec(`UPDATE rides SET status = $1, updated_at = $2 WHERE id = $3`, string(status), time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFoundf(models.ReasonRideNotFound, "ride %d", id)
	}
	return nil
}

func (p *PostgresStore) HasActivePendingRequest(userID string) (bool, error) {
	var n int
	err := p.db.QueryRow(`SELECT COUNT(1) FROM join_requests WHERE user_id = $1 AND status = 'pending'`, userID).Scan(&n)
	return n > 0, err
}

func (p *PostgresStore) SaveJoinRequest(rideID int64, userID string) error {
	// duplicate submissions stay idempotent; a rejected row flips back to
	// pending so the user may re-request, accepted rows are never touched
	_, err := p.db.Exec(
		`INSERT INTO join_requests(ride_id, user_id, status, created_at) VALUES($1,$2,'pending',$3)
		 ON CONFLICT (ride_id, user_id) DO UPDATE SET status = 'pending', created_at = EXCLUDED.created_at
		 WHERE join_requests.status = 'rejected'`,
		rideID, userID, time.Now())
	return err
}

func (p *PostgresStore) UpdateJoinRequestStatus(rideID int64, userID string, status models.RequestStatus) error {
	res, err := p.db.Exec(
		`UPDATE join_requests SET status = $1 WHERE ride_id = $2 AND user_id = $3 AND status = 'pending'`,
		string(status), rideID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFoundf(models.ReasonRequestNotFound, "no pending request for %s on ride %d", userID, rideID)
	}
	return nil
}

func (p *PostgresStore) PendingRequests(rideID int64) ([]models.JoinRequest, error) {
	rows, err := p.db.Query(
		`SELECT ride_id, user_id, status, created_at FROM join_requests WHERE ride_id = $1 AND status = 'pending' ORDER BY created_at`,
		rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (p *PostgresStore) SaveUser(u models.User) error {
	_, err := p.db.Exec(
		`INSERT INTO users(id, name, email, gender, enrollment_id, gender_pref, vehicle_pref)
		 VALUES($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO UPDATE SET name = $2, email = $3, gender = $4, enrollment_id = $5`,
		u.ID, u.Name, u.Email, u.Gender, u.EnrollmentID, u.GenderPref, u.VehiclePref)
	return err
}

func (p *PostgresStore) UserByID(id string) (*models.User, error) {
	return p.userBy(`id = $1`, id)
}

func (p *PostgresStore) UserByEmail(email string) (*models.User, error) {
	return p.userBy(`email = $1`, email)
}

func (p *PostgresStore) userBy(where string, arg any) (*models.User, error) {
	var u models.User
	err := p.db.QueryRow(
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

func (p *PostgresStore) UpdateUserPreferences(userID, genderPref, vehiclePref string) error {
	res, err := p.db.Exec(`UPDATE users SET gender_pref = $1, vehicle_pref = $2 WHERE id = $3`, genderPref, vehiclePref, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFoundf(models.ReasonUserNotFound, "user %s", userID)
	}
	return nil
}

func (p *PostgresStore) LocationEdges() ([]models.LocationEdge, error) {
	rows, err := p.db.Query(`SELECT area1, area2, distance_km FROM edges`)
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

// ReplaceLocationEdges rewrites the edge table; the graph builder calls it
// after recomputing distances.
func (p *PostgresStore) ReplaceLocationEdges(edges []models.LocationEdge) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM edges`); err != nil {
		return err
	}
	for _, e := range edges {
		if _, err := tx.Exec(`INSERT INTO edges(area1, area2, distance_km) VALUES($1,$2,$3)`, e.Area1, e.Area2, e.DistanceKm); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) SaveMessage(m models.Message) error {
	_, err := p.db.Exec(
		`INSERT INTO messages(ride_id, sender, recipient, text, sent_at) VALUES($1,$2,$3,$4,$5)`,
		m.RideID, m.Sender, m.Recipient, m.Text, m.SentAt)
	return err
}

func (p *PostgresStore) MessagesForRide(rideID int64) ([]models.Message, error) {
	rows, err := p.db.Query(
		`SELECT ride_id, sender, recipient, text, sent_at FROM messages WHERE ride_id = $1 ORDER BY sent_at`, rideID)
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

func (p *PostgresStore) attachRequests(r *models.Ride) error {
	rows, err := p.db.Query(
		`SELECT ride_id, user_id, status, created_at FROM join_requests WHERE ride_id = $1 ORDER BY created_at`, r.ID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(s rowScanner) (*models.Ride, error) {
	var r models.Ride
	var typ, status string
	if err := s.Scan(&r.ID, &r.OwnerID, &r.From, &r.To, &r.Departure, &r.Mode, &typ,
		&r.CurrentCapacity, &r.MaxCapacity, &status, &r.FemalesOnly, &r.GenderPref,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if r.Type, err = models.ParseRideType(typ); err != nil {
		return nil, err
	}
	if r.Status, err = models.ParseRideStatus(status); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRequests(rows *sql.Rows) ([]models.JoinRequest, error) {
	var out []models.JoinRequest
	for rows.Next() {
		var jr models.JoinRequest
		var status string
		if err := rows.Scan(&jr.RideID, &jr.UserID, &status, &jr.CreatedAt); err != nil {
			return nil, err
		}
		jr.Status = models.RequestStatus(status)
		out = append(out, jr)
	}
	return out, rows.Err()
}
