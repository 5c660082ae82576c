package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// -- Person Repository --

type personRepoPG struct {
	db querier
}

func NewPersonRepoPG(pool *pgxpool.Pool) PersonRepository {
	return &personRepoPG{db: pool}
}

const personCols = `p.id, p.email, p.name_given, p.name_family, p.birth_date, p.gender, p.password_hash,
	p.telecom_system, p.telecom_value, p.active, p.user_type_id, ut.name, p.role, p.created_at`

const personFrom = ` FROM person p JOIN user_type ut ON ut.id = p.user_type_id`

func (r *personRepoPG) Create(ctx context.Context, p *Person) error {
	p.ID = uuid.New()
	err := r.db.QueryRow(ctx, `
		INSERT INTO person (id, email, name_given, name_family, birth_date, gender, password_hash,
			telecom_system, telecom_value, active, user_type_id, role)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		p.ID, p.Email, p.NameGiven, p.NameFamily, p.BirthDate, p.Gender, p.PasswordHash,
		p.TelecomSystem, p.TelecomValue, p.Active, p.UserTypeID, p.Role,
	).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (r *personRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Person, error) {
	return r.getOne(ctx, `SELECT `+personCols+personFrom+` WHERE p.id = $1`, id)
}

func (r *personRepoPG) GetByEmail(ctx context.Context, email string) (*Person, error) {
	return r.getOne(ctx, `SELECT `+personCols+personFrom+` WHERE p.email = $1`, email)
}

func (r *personRepoPG) getOne(ctx context.Context, sql string, arg interface{}) (*Person, error) {
	p, err := scanPerson(r.db.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select person: %w", err)
	}
	return p, nil
}

// SetActive only updates when the flag differs, so concurrent logins for the
// same account see exactly one winner.
func (r *personRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE person SET active = $2 WHERE id = $1 AND active <> $2`, id, active)
	if err != nil {
		return false, fmt.Errorf("update person active: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *personRepoPG) SearchPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Person, int, error) {
	where, args := patientWhere(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+personFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	n := len(args)
	sql := `SELECT ` + personCols + personFrom + where +
		fmt.Sprintf(` ORDER BY p.name_family, p.name_given, p.id LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.db.Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var people []*Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, 0, err
		}
		people = append(people, p)
	}
	return people, total, rows.Err()
}

// patientWhere builds the WHERE clause for SearchPatients. User input is
// only ever bound as a parameter.
func patientWhere(f PatientFilter) (string, []interface{}) {
	conds := []string{"ut.name = $1"}
	args := []interface{}{UserTypePatient}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Name != "" {
		ph := next("%" + escapeLike(f.Name) + "%")
		conds = append(conds, fmt.Sprintf("(p.name_given ILIKE %s OR p.name_family ILIKE %s)", ph, ph))
	}
	if f.Email != "" {
		conds = append(conds, "p.email ILIKE "+next("%"+escapeLike(f.Email)+"%"))
	}
	if f.Gender != "" {
		conds = append(conds, "LOWER(p.gender) = LOWER("+next(f.Gender)+")")
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanPerson(row pgx.Row) (*Person, error) {
	var p Person
	err := row.Scan(
		&p.ID, &p.Email, &p.NameGiven, &p.NameFamily, &p.BirthDate, &p.Gender, &p.PasswordHash,
		&p.TelecomSystem, &p.TelecomValue, &p.Active, &p.UserTypeID, &p.UserTypeName, &p.Role, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- UserType Repository --

type userTypeRepoPG struct {
	db querier
}

func NewUserTypeRepoPG(pool *pgxpool.Pool) UserTypeRepository {
	return &userTypeRepoPG{db: pool}
}

func (r *userTypeRepoPG) GetByName(ctx context.Context, name string) (*UserType, error) {
	return r.getOne(ctx, `SELECT id, snomed_code, name FROM user_type WHERE name = $1`, name)
}

func (r *userTypeRepoPG) GetBySnomedCode(ctx context.Context, code string) (*UserType, error) {
	return r.getOne(ctx, `SELECT id, snomed_code, name FROM user_type WHERE snomed_code = $1`, code)
}

func (r *userTypeRepoPG) getOne(ctx context.Context, sql, arg string) (*UserType, error) {
	var ut UserType
	err := r.db.QueryRow(ctx, sql, arg).Scan(&ut.ID, &ut.SnomedCode, &ut.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user_type: %w", err)
	}
	return &ut, nil
}
