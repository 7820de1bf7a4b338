package storetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSearchPath(t *testing.T) {
	got, err := withSearchPath("postgres://u:p@localhost:5432/smartlab?sslmode=disable", "attendance_test")
	require.NoError(t, err)
	assert.Contains(t, got, "search_path=attendance_test")
	assert.Contains(t, got, "sslmode=disable")

	got, err = withSearchPath("host=localhost dbname=smartlab", "person_test")
	require.NoError(t, err)
	assert.Equal(t, "host=localhost dbname=smartlab search_path=person_test", got)
}
