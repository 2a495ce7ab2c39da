package patientsearch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrMissingCompanyID is returned when a search is not scoped to a company.
var ErrMissingCompanyID = errors.New("company_id is required")

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DirectoryPG searches the patients table. Rows come back in whichever
// layout they were registered with; normalization happens in the resolver.
type DirectoryPG struct {
	db querier
}

func NewDirectoryPG(db querier) *DirectoryPG {
	return &DirectoryPG{db: db}
}

const patientSearchFrom = `
	FROM patients p
	LEFT JOIN clients c ON c.id = p.client_id
	WHERE p.company_id = $1
	  AND (p.name ILIKE $2 OR p.patient_code ILIKE $2 OR p.first_name ILIKE $2
	       OR p.last_name ILIKE $2 OR c.name ILIKE $2)`

const patientSearchCols = `SELECT p.id::text, p.name, p.patient_code, p.species, p.first_name, p.last_name,
	p.client_id::text, c.name`

// SearchPatients implements Directory.
func (d *DirectoryPG) SearchPatients(ctx context.Context, term, companyID string, limit int) ([]Record, error) {
	records, _, err := d.search(ctx, term, companyID, limit, 0, false)
	return records, err
}

// Search returns one page of matches and the total match count.
func (d *DirectoryPG) Search(ctx context.Context, term, companyID string, limit, offset int) ([]Record, int, error) {
	return d.search(ctx, term, companyID, limit, offset, true)
}

func (d *DirectoryPG) search(ctx context.Context, term, companyID string, limit, offset int, withTotal bool) ([]Record, int, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, 0, ErrMissingCompanyID
	}
	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"

	var total int
	if withTotal {
		if err := d.db.QueryRow(ctx, "SELECT COUNT(*)"+patientSearchFrom, companyID, pattern).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count patients: %w", err)
		}
	}

	rows, err := d.db.Query(ctx,
		patientSearchCols+patientSearchFrom+`
	ORDER BY COALESCE(p.name, p.patient_code, p.last_name, p.id::text)
	LIMIT $3 OFFSET $4`,
		companyID, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                                           Record
			name, code, species, first, last, cid, cname *string
		)
		if err := rows.Scan(&rec.ID, &name, &code, &species, &first, &last, &cid, &cname); err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		rec.Name = deref(name)
		rec.PatientID = deref(code)
		rec.Species = deref(species)
		rec.FirstName = deref(first)
		rec.LastName = deref(last)
		switch {
		case cid != nil && cname != nil:
			rec.Client = &ClientRef{ID: *cid, Name: *cname}
		case cid != nil:
			rec.ClientID = *cid
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate patients: %w", err)
	}
	if !withTotal {
		total = len(out)
	}
	return out, total, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
