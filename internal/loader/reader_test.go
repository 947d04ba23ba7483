package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRecordsCSV(t *testing.T) {
	path := writeFile(t, "feed.csv",
		"Datetime UTC,Total Pledge,Unnamed: 2,Delta Pledge\n"+
			"2023-01-01 00:00:00,$100,junk,$100\n"+
			"2023-01-01 01:00:00,$150,junk,$50\n")

	raws, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	v, ok := raws[0].Field("datetime_utc")
	require.True(t, ok)
	assert.Equal(t, "2023-01-01 00:00:00", v)

	v, ok = raws[1].Field("total_pledge")
	require.True(t, ok)
	assert.Equal(t, "$150", v)

	// spreadsheet export artifact dropped
	_, ok = raws[0].Field("unnamed:_2")
	assert.False(t, ok)
}

func TestReadRecordsRenamesFirstColumn(t *testing.T) {
	path := writeFile(t, "feed.csv",
		"Date of event,Sale Type\n2023-01-01,Anniversary\n")

	raws, err := ReadRecords(path, WithFirstColumn("datetime_utc"))
	require.NoError(t, err)
	require.Len(t, raws, 1)

	v, ok := raws[0].Field("datetime_utc")
	require.True(t, ok)
	assert.Equal(t, "2023-01-01", v)
}

func TestReadRecordsToleratesRaggedRows(t *testing.T) {
	path := writeFile(t, "feed.csv",
		"datetime_utc,total_pledge,delta_pledge\n"+
			"2023-01-01 00:00:00,$100\n")

	raws, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.False(t, raws[0].Present("delta_pledge"))
}

func TestReadRecordsXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Date Start"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Version"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "2023-01-01"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Star_Citizen_Alpha_3.17"))

	path := filepath.Join(t.TempDir(), "feed.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	raws, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, raws, 1)

	v, ok := raws[0].Field("date_start")
	require.True(t, ok)
	assert.Equal(t, "2023-01-01", v)
}

func TestReadRecordsMissingFile(t *testing.T) {
	_, err := ReadRecords(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}
