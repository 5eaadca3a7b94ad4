package util

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
)

func readAll(t *testing.T, input string) ([]Row, *RowReader) {
	t.Helper()
	rr := NewRowReader(strings.NewReader(input))
	var rows []Row
	for rr.Next() {
		rows = append(rows, rr.Row())
	}
	return rows, rr
}

func TestRowReader(t *testing.T) {
	rows, rr := readAll(t, "User Name,Login Time,Status\nalice,2023-05-01T10:00:00,ok\nbob,2023-05-01T11:00:00,fail\n")
	require.NoError(t, rr.Err())

	assert.Equal(t, []string{"User Name", "Login Time", "Status"}, rr.Header())
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"User Name": "alice", "Login Time": "2023-05-01T10:00:00", "Status": "ok"}, rows[0])
	assert.Equal(t, "bob", rows[1]["User Name"])
	assert.Equal(t, 3, rr.Line())
}

func TestRowReader_RowsAreIndependent(t *testing.T) {
	rows, rr := readAll(t, "a\n1\n2\n")
	require.NoError(t, rr.Err())
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0]["a"])
	assert.Equal(t, "2", rows[1]["a"])
}

func TestRowReader_StripsBOM(t *testing.T) {
	rows, rr := readAll(t, "\ufeffid,name\n1,x\n")
	require.NoError(t, rr.Err())
	assert.Equal(t, []string{"id", "name"}, rr.Header())
	assert.Equal(t, Row{"id": "1", "name": "x"}, rows[0])
}

func TestRowReader_RaggedRows(t *testing.T) {
	rows, rr := readAll(t, "a,b,c\n1\n1,2,3,4\n")
	require.NoError(t, rr.Err())
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"a": "1", "b": "", "c": ""}, rows[0])
	assert.Equal(t, Row{"a": "1", "b": "2", "c": "3"}, rows[1])
}

func TestRowReader_QuotedFields(t *testing.T) {
	rows, rr := readAll(t, "a,b\n\"x, y\",\"line1\nline2\"\n")
	require.NoError(t, rr.Err())
	require.Len(t, rows, 1)
	assert.Equal(t, "x, y", rows[0]["a"])
	assert.Equal(t, "line1\nline2", rows[0]["b"])
}

func TestRowReader_Empty(t *testing.T) {
	rows, rr := readAll(t, "")
	assert.NoError(t, rr.Err())
	assert.Empty(t, rows)
	assert.Nil(t, rr.Header())

	rows, rr = readAll(t, "a,b\n")
	assert.NoError(t, rr.Err())
	assert.Empty(t, rows)
	assert.Equal(t, []string{"a", "b"}, rr.Header())
}

func TestRowReader_ReadError(t *testing.T) {
	diskErr := errors.New("disk gone")
	rr := NewRowReader(io.MultiReader(strings.NewReader("a,b\n1,2\n"), iotest.ErrReader(diskErr)))
	var rows []Row
	for rr.Next() {
		rows = append(rows, rr.Row())
	}
	require.Error(t, rr.Err())
	assert.ErrorIs(t, rr.Err(), diskErr)
	assert.Contains(t, rr.Err().Error(), "read CSV near record 3")
	assert.Len(t, rows, 1)
	assert.False(t, rr.Next(), "reader stays finished after an error")
}

func TestRowReader_InvalidUTF8(t *testing.T) {
	rows, rr := readAll(t, "a,b\nok,1\nx\xff\xfe,y\nlater,2\n")
	require.Error(t, rr.Err())
	assert.True(t, errors.Is(rr.Err(), encoding.ErrInvalidUTF8), "got %v", rr.Err())
	require.Len(t, rows, 1)
	assert.Equal(t, Row{"a": "ok", "b": "1"}, rows[0])
}

func TestRowReader_BareQuoteInUnquotedField(t *testing.T) {
	rows, rr := readAll(t, "a,b\n5\" pipe,y\nok,z\n")
	require.NoError(t, rr.Err())
	require.Len(t, rows, 2)
	assert.Equal(t, "5\" pipe", rows[0]["a"])
	assert.Equal(t, "ok", rows[1]["a"])
}
