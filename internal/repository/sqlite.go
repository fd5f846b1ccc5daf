package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/emeraldgrove/clinic-assistant/internal/domain"
)

// dateLayout is how visit dates are stored.
const dateLayout = "2006-01-02"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and runs migrations. Seed data is
// loaded separately via Seed.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_by INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS vets (
			id INTEGER PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS specialties (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS vet_specialties (
			vet_id INTEGER NOT NULL,
			specialty_id INTEGER NOT NULL,
			PRIMARY KEY (vet_id, specialty_id),
			FOREIGN KEY (vet_id) REFERENCES vets(id),
			FOREIGN KEY (specialty_id) REFERENCES specialties(id)
		)`,
		`CREATE TABLE IF NOT EXISTS types (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS owners (
			id INTEGER PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			address TEXT,
			city TEXT,
			telephone TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS pets (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type_id INTEGER NOT NULL,
			owner_id INTEGER NOT NULL,
			FOREIGN KEY (type_id) REFERENCES types(id),
			FOREIGN KEY (owner_id) REFERENCES owners(id)
		)`,
		`CREATE TABLE IF NOT EXISTS visits (
			id INTEGER PRIMARY KEY,
			pet_id INTEGER NOT NULL,
			visit_date TEXT NOT NULL,
			description TEXT NOT NULL,
			FOREIGN KEY (pet_id) REFERENCES pets(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_date ON visits(visit_date)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			owner_id INTEGER,
			FOREIGN KEY (owner_id) REFERENCES owners(id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession returns a session by id, or nil if it does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_by, created_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.CreatedBy, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates a new one owned
// by createdBy. An existing session keeps its original owner.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID string, createdBy int) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &domain.Session{SessionID: sessionID, CreatedBy: createdBy, CreatedAt: time.Now()}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_by, created_at) VALUES (?, ?, ?)`,
		session.SessionID, session.CreatedBy, session.CreatedAt); err != nil {
		return nil, err
	}
	return session, nil
}

// AppendMessage appends a message to its session.
func (s *SQLiteStore) AppendMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, message.Role, message.Content, message.CreatedAt)
	return err
}

// DeleteMessage removes a message by id.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE message_id = ?`, messageID)
	return err
}

// GetMessages returns the most recent limit messages of a session in
// chronological order.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `SELECT message_id, session_id, role, content, created_at FROM messages
		WHERE session_id = ? ORDER BY seq DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.MessageID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListVets returns all veterinarians with their specialty names.
func (s *SQLiteStore) ListVets(ctx context.Context) ([]domain.VetSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, v.first_name, v.last_name, sp.name
		FROM vets v
		LEFT JOIN vet_specialties vs ON vs.vet_id = v.id
		LEFT JOIN specialties sp ON sp.id = vs.specialty_id
		ORDER BY v.id, sp.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vets []domain.VetSummary
	lastID := -1
	for rows.Next() {
		var id int
		var first, last string
		var specialty sql.NullString
		if err := rows.Scan(&id, &first, &last, &specialty); err != nil {
			return nil, err
		}
		if id != lastID {
			vets = append(vets, domain.VetSummary{Name: first + " " + last, Specialties: []string{}})
			lastID = id
		}
		if specialty.Valid {
			vets[len(vets)-1].Specialties = append(vets[len(vets)-1].Specialties, specialty.String)
		}
	}
	return vets, rows.Err()
}

// ListPetTypes returns the names of all pet types the clinic accepts.
func (s *SQLiteStore) ListPetTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

const upcomingVisitQuery = `SELECT o.id, o.first_name || ' ' || o.last_name, p.name, v.visit_date, v.description
	FROM visits v
	JOIN pets p ON p.id = v.pet_id
	JOIN owners o ON o.id = p.owner_id
	WHERE v.visit_date >= ? AND v.visit_date <= ?`

// FindUpcomingVisits returns all visits in the date range, ordered by date
// ascending.
func (s *SQLiteStore) FindUpcomingVisits(ctx context.Context, start, end time.Time) ([]domain.UpcomingVisit, error) {
	rows, err := s.db.QueryContext(ctx, upcomingVisitQuery+` ORDER BY v.visit_date ASC, v.id ASC`,
		start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUpcomingVisits(rows)
}

// FindUpcomingVisitsByOwner returns one owner's visits in the date range,
// ordered by date ascending.
func (s *SQLiteStore) FindUpcomingVisitsByOwner(ctx context.Context, ownerID int, start, end time.Time) ([]domain.UpcomingVisit, error) {
	rows, err := s.db.QueryContext(ctx, upcomingVisitQuery+` AND o.id = ? ORDER BY v.visit_date ASC, v.id ASC`,
		start.Format(dateLayout), end.Format(dateLayout), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUpcomingVisits(rows)
}

func scanUpcomingVisits(rows *sql.Rows) ([]domain.UpcomingVisit, error) {
	var visits []domain.UpcomingVisit
	for rows.Next() {
		var uv domain.UpcomingVisit
		var date string
		if err := rows.Scan(&uv.OwnerID, &uv.OwnerName, &uv.PetName, &date, &uv.Description); err != nil {
			return nil, err
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid visit date %q: %w", date, err)
		}
		uv.Date = d
		visits = append(visits, uv)
	}
	return visits, rows.Err()
}

// GetUserByEmail resolves a registered account by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	var ownerID sql.NullInt64
	var ownerName sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.role, u.owner_id, o.first_name || ' ' || o.last_name
		FROM users u LEFT JOIN owners o ON o.id = u.owner_id
		WHERE u.email = ?`,
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &ownerID, &ownerName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ownerID.Valid {
		id := int(ownerID.Int64)
		u.OwnerID = &id
	}
	if ownerName.Valid {
		u.OwnerName = ownerName.String
	}
	return &u, nil
}

// CreateUser registers an account, hashing the given password.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, password string, role domain.Role, ownerID *int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	var owner interface{}
	if ownerID != nil {
		owner = *ownerID
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, owner_id) VALUES (?, ?, ?, ?)`,
		email, string(hash), role, owner)
	return err
}
