package workbook

import (
	"bytes"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/outreach/internal/domain"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", ref, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	return rows
}

func TestOpenParsesRecipients(t *testing.T) {
	buf := buildWorkbook(t,
		[]interface{}{"Client", "ClientEmailId", "SisRepresentativeName", "SisRepresentativeEmail", "EmailSent"},
		[]interface{}{"Acme", "ops@acme.test", "Ravi", "ravi@sis.test", ""},
		[]interface{}{"", "nobody@acme.test", "", "", ""},
		[]interface{}{"Legacy Co", "legacy@co.test", "", "", "Yes"},
		[]interface{}{"Globex", "it@globex.test", "", "Sales@Corp.test", ""},
	)

	sheet, units, err := Open(buf, Options{DefaultCc: []string{"sales@corp.test", "lead@corp.test"}})
	require.NoError(t, err)
	defer sheet.Close()

	require.Len(t, units, 2)
	assert.Equal(t, "Acme", units[0].Name)
	assert.Equal(t, "ops@acme.test", units[0].Email)
	assert.Equal(t, 1, units[0].Row)
	assert.Equal(t, []string{"sales@corp.test", "lead@corp.test", "ravi@sis.test"}, units[0].Cc)
	assert.Equal(t, "Ravi", units[0].Vars["representativeName"])

	assert.Equal(t, "Globex", units[1].Name)
	assert.Equal(t, 4, units[1].Row)
	assert.Equal(t, []string{"sales@corp.test", "lead@corp.test"}, units[1].Cc)
}

func TestOpenSkipsAcceptedRows(t *testing.T) {
	buf := buildWorkbook(t,
		[]interface{}{"client", "clientemailid", "EmailStatus"},
		[]interface{}{"Done", "done@x.test", "Accepted"},
		[]interface{}{"Retry", "retry@x.test", "Error"},
	)

	sheet, units, err := Open(buf, Options{})
	require.NoError(t, err)
	defer sheet.Close()

	require.Len(t, units, 1)
	assert.Equal(t, "retry@x.test", units[0].Email)
	assert.Equal(t, 2, sheet.statusCol)
	assert.Equal(t, 3, sheet.timestampCol)
	assert.Equal(t, 4, sheet.errorCol)
}

func TestOpenRejectsMissingColumns(t *testing.T) {
	buf := buildWorkbook(t, []interface{}{"Company", "Phone"}, []interface{}{"Acme", "123"})

	_, _, err := Open(buf, Options{})
	assert.ErrorIs(t, err, ErrMissingColumns)

	_, _, err = Open(bytes.NewReader([]byte("not a workbook")), Options{})
	assert.Error(t, err)
}

func TestSheetWriteback(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	buf := buildWorkbook(t,
		[]interface{}{"Client", "ClientEmailId"},
		[]interface{}{"A", "a@x.test"},
		[]interface{}{"B", "b@x.test"},
		[]interface{}{"C", "c@x.test"},
		[]interface{}{"D", "d@x.test"},
	)
	sheet, units, err := Open(buf, Options{Location: ist})
	require.NoError(t, err)
	defer sheet.Close()
	require.Len(t, units, 4)

	at := time.Date(2024, 1, 15, 6, 30, 0, 0, time.UTC)
	sheet.MarkAccepted(units[0], at)
	sheet.MarkError(units[1], at, "550 no such user")
	sheet.MarkCancelled(units[2], at)

	art, err := sheet.Materialize("job-42")
	require.NoError(t, err)
	assert.Equal(t, "updated-job-42.xlsx", art.FileName)
	assert.Equal(t, ContentType, art.ContentType)

	rows := readRows(t, art.Data)
	assert.Equal(t, []string{"Client", "ClientEmailId", "EmailStatus", "EmailTimestamp", "EmailError"}, rows[0])
	assert.Equal(t, []string{"A", "a@x.test", "Accepted", "2024-01-15 12:00:00"}, rows[1])
	assert.Equal(t, []string{"B", "b@x.test", "Error", "2024-01-15 12:00:00", "550 no such user"}, rows[2])
	assert.Equal(t, []string{"C", "c@x.test", "Cancelled", "2024-01-15 12:00:00"}, rows[3])
	assert.Equal(t, []string{"D", "d@x.test"}, rows[4])
}

func TestSheetDryRunAndUnmappedRows(t *testing.T) {
	buf := buildWorkbook(t,
		[]interface{}{"Client", "ClientEmailId"},
		[]interface{}{"A", "a@x.test"},
	)
	sheet, units, err := Open(buf, Options{DryRun: true})
	require.NoError(t, err)
	defer sheet.Close()

	sheet.MarkAccepted(units[0], time.Now())
	sheet.MarkAccepted(domain.RecipientUnit{Row: -1}, time.Now())

	art, err := sheet.Materialize("dry")
	require.NoError(t, err)
	rows := readRows(t, art.Data)
	require.Len(t, rows, 2)
	assert.Equal(t, StatusDryRun, rows[1][2])
}

func TestMergeAddresses(t *testing.T) {
	tests := []struct {
		name  string
		base  []string
		extra []string
		want  []string
	}{
		{name: "empty", want: nil},
		{name: "dedupe case-insensitive", base: []string{"A@x.test", "b@x.test"}, extra: []string{"a@X.test"}, want: []string{"A@x.test", "b@x.test"}},
		{name: "drops blanks", base: []string{" ", ""}, extra: []string{" c@x.test "}, want: []string{"c@x.test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeAddresses(tt.base, tt.extra...))
		})
	}
}

func TestReadProspects(t *testing.T) {
	buf := buildWorkbook(t,
		[]interface{}{"First Name", "LastName", "Email", "Company"},
		[]interface{}{"Asha", "Rao", "asha@acme.test", "Acme"},
		[]interface{}{"", "", "solo@globex.test", ""},
		[]interface{}{"No", "Email", "", "Initech"},
	)

	prospects, err := ReadProspects(buf)
	require.NoError(t, err)
	require.Len(t, prospects, 2)
	assert.Equal(t, domain.Prospect{FirstName: "Asha", LastName: "Rao", ClientEmail: "asha@acme.test", CompanyName: "Acme"}, prospects[0])
	assert.Equal(t, "solo", prospects[1].FirstName)
}
