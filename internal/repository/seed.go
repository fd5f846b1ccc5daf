package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/emeraldgrove/clinic-assistant/internal/domain"
)

// Seed loads clinic fixtures so the assistant answers from live data out
// of the box. Idempotent: an already seeded database is left untouched.
func (s *SQLiteStore) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vets`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	stmts := []string{
		`INSERT INTO specialties (id, name) VALUES
			(1, 'radiology'), (2, 'surgery'), (3, 'dentistry')`,
		`INSERT INTO vets (id, first_name, last_name) VALUES
			(1, 'James', 'Carter'),
			(2, 'Helen', 'Leary'),
			(3, 'Linda', 'Douglas'),
			(4, 'Rafael', 'Ortega'),
			(5, 'Henry', 'Stevens'),
			(6, 'Sharon', 'Jenkins')`,
		`INSERT INTO vet_specialties (vet_id, specialty_id) VALUES
			(2, 1), (3, 2), (3, 3), (4, 2), (5, 1)`,
		`INSERT INTO types (id, name) VALUES
			(1, 'cat'), (2, 'dog'), (3, 'lizard'), (4, 'snake'), (5, 'bird'), (6, 'hamster')`,
		`INSERT INTO owners (id, first_name, last_name, address, city, telephone) VALUES
			(1, 'George', 'Franklin', '110 W. Liberty St.', 'Madison', '6085551023'),
			(2, 'Betty', 'Davis', '638 Cardinal Ave.', 'Sun Prairie', '6085551749'),
			(3, 'Eduardo', 'Rodriquez', '2693 Commerce St.', 'McFarland', '6085558763'),
			(4, 'Jean', 'Coleman', '105 N. Lake St.', 'Monona', '6085552654'),
			(5, 'Harold', 'Davis', '563 Friendly St.', 'Windsor', '6085553198'),
			(6, 'Carlos', 'Estaban', '2335 Independence La.', 'Waunakee', '6085555487')`,
		`INSERT INTO pets (id, name, type_id, owner_id) VALUES
			(1, 'Leo', 1, 1),
			(2, 'Basil', 6, 2),
			(3, 'Rosy', 2, 3),
			(4, 'Jewel', 2, 3),
			(5, 'Max', 1, 4),
			(6, 'Samantha', 1, 4),
			(7, 'Iggy', 3, 5),
			(8, 'Lucky', 5, 6)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
	}

	// Visit dates are relative to startup so the upcoming-visit tools have
	// data in range.
	today := time.Now()
	visits := []struct {
		petID  int
		offset int // days from today
		descr  string
	}{
		{1, -14, "Ear infection"},
		{5, 2, "Annual checkup"},
		{1, 3, "Annual checkup"},
		{2, 5, "Nail trim"},
		{3, 7, "Vaccination booster"},
		{7, 9, "Appetite loss"},
		{4, 12, "Skin rash follow-up"},
		{8, 15, "Wing clipping"},
		{6, 20, "Spay consultation"},
		{1, 45, "Dental cleaning"},
		{2, 60, "Wellness exam"},
		{3, 90, "Hip x-ray"},
		{5, 120, "Rabies vaccination"},
		{8, 180, "Checkup"},
	}
	for _, v := range visits {
		date := today.AddDate(0, 0, v.offset).Format(dateLayout)
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO visits (pet_id, visit_date, description) VALUES (?, ?, ?)`,
			v.petID, date, v.descr); err != nil {
			return fmt.Errorf("seed visit failed: %w", err)
		}
	}

	users := []struct {
		email    string
		password string
		role     domain.Role
		ownerID  *int
	}{
		{"admin@emeraldgrove.example", "petclinic", domain.RoleAdmin, nil},
		{"george.franklin@emeraldgrove.example", "petclinic", domain.RoleOwner, intPtr(1)},
		{"jean.coleman@emeraldgrove.example", "petclinic", domain.RoleOwner, intPtr(4)},
	}
	for _, u := range users {
		if err := s.CreateUser(ctx, u.email, u.password, u.role, u.ownerID); err != nil {
			return fmt.Errorf("seed user failed: %w", err)
		}
	}
	return nil
}

func intPtr(v int) *int { return &v }
