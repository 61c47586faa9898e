package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareID(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"shorter is older despite digits", "99", "100", -1},
		{"longer is newer despite digits", "100", "99", 1},
		{"equal length lexicographic", "105", "103", 1},
		{"equal ids", "12345", "12345", 0},
		{"21 chars outranks 20 chars", "123456789012345678901", "12345678901234567890", 1},
		{"20 chars below 21 chars", "99999999999999999999", "100000000000000000000", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareID(tt.a, tt.b))
		})
	}
}

func TestMaxID(t *testing.T) {
	statuses := []*Status{
		{ID: "999"},
		{ID: "1001"},
		{ID: "1000"},
	}
	assert.Equal(t, "1001", MaxID(statuses))
	assert.Equal(t, "", MaxID(nil))
}

func TestSortByIDDescAndDedupe(t *testing.T) {
	statuses := []*Status{
		{ID: "99"},
		{ID: "100"},
		{ID: "100"},
		{ID: "5"},
		{ID: "101"},
	}

	SortByIDDesc(statuses)
	statuses = DedupeByID(statuses)

	ids := make([]string, len(statuses))
	for i, s := range statuses {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"101", "100", "99", "5"}, ids)
}

func TestDecodeStatus(t *testing.T) {
	raw := []byte(`{
		"id": "113546793555562360",
		"created_at": "2024-11-20T12:00:00.000Z",
		"account": {"id": "42", "acct": "painter@dice.camp"},
		"tags": [{"name": "HobbyStreak"}, {"name": "PaintingMiniatures"}],
		"replies_count": 2,
		"reblogs_count": 5,
		"favourites_count": 11,
		"content": "<p>today's progress</p>"
	}`)

	status, err := DecodeStatus(raw)
	require.NoError(t, err)

	assert.Equal(t, "113546793555562360", status.ID)
	assert.Equal(t, time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC), status.CreatedAt.UTC())
	assert.Equal(t, "painter@dice.camp", status.Account.Acct)
	assert.Len(t, status.Tags, 2)
	assert.EqualValues(t, 5, status.ReblogsCount)
	assert.JSONEq(t, string(raw), string(status.Raw))

	assert.True(t, status.HasTag("hobbystreak"))
	assert.False(t, status.HasTag("warhammer"))
}

func TestDecodeStatusRejectsMissingID(t *testing.T) {
	_, err := DecodeStatus([]byte(`{"content": "no id"}`))
	require.Error(t, err)

	_, err = DecodeStatus([]byte(`not json`))
	require.Error(t, err)
}

func TestCompareIDAgreesWithNumericOrder(t *testing.T) {
	// Numeric-string IDs must order exactly like their numeric values.
	values := []int{1, 9, 10, 99, 100, 12345, 99999, 100000}
	for i, a := range values {
		for j, b := range values {
			got := CompareID(fmt.Sprintf("%d", a), fmt.Sprintf("%d", b))
			switch {
			case i < j:
				assert.Equal(t, -1, got, "%d vs %d", a, b)
			case i > j:
				assert.Equal(t, 1, got, "%d vs %d", a, b)
			default:
				assert.Equal(t, 0, got, "%d vs %d", a, b)
			}
		}
	}
}
