package workbook

import (
	"fmt"
	"io"
	"strings"

	"github.com/timmy/outreach/internal/domain"
	"github.com/xuri/excelize/v2"
)

var (
	firstNameColumns = []string{"firstname", "first name", "first_name", "name"}
	lastNameColumns  = []string{"lastname", "last name", "last_name"}
	emailColumns     = []string{"clientemail", "email", "emailaddress", "email address", "clientemailid"}
	companyColumns   = []string{"companyname", "company name", "company", "client"}
)

// ReadProspects parses prospect rows from the first sheet. Rows without an
// email are skipped; the first name falls back to the email's local part.
func ReadProspects(r io.Reader) ([]domain.Prospect, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyWorkbook
	}

	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	emailCol := findColumn(header, emailColumns...)
	if emailCol < 0 {
		return nil, fmt.Errorf("%w: need one of %v", ErrMissingColumns, emailColumns)
	}
	firstCol := findColumn(header, firstNameColumns...)
	lastCol := findColumn(header, lastNameColumns...)
	companyCol := findColumn(header, companyColumns...)

	var prospects []domain.Prospect
	for _, row := range rows[1:] {
		email := cell(row, emailCol)
		if email == "" {
			continue
		}
		first := cell(row, firstCol)
		if first == "" {
			first, _, _ = strings.Cut(email, "@")
		}
		prospects = append(prospects, domain.Prospect{
			FirstName:   first,
			LastName:    cell(row, lastCol),
			ClientEmail: email,
			CompanyName: cell(row, companyCol),
		})
	}
	return prospects, nil
}
