package markethours

import (
	"testing"
	"time"

	"pricefeed/internal/model/enum"

	"github.com/stretchr/testify/assert"
)

func TestIsOpen(t *testing.T) {
	// 2024-06-03 is a Monday.
	monday := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	saturday := monday.AddDate(0, 0, 5)
	sunday := monday.AddDate(0, 0, 6)

	testCases := []struct {
		desc  string
		class enum.AssetClass
		now   time.Time
		want  bool
	}{
		{desc: "crypto weekday", class: enum.AssetClassCrypto, now: monday, want: true},
		{desc: "crypto saturday", class: enum.AssetClassCrypto, now: saturday, want: true},
		{desc: "crypto sunday", class: enum.AssetClassCrypto, now: sunday, want: true},
		{desc: "forex weekday", class: enum.AssetClassForex, now: monday, want: true},
		{desc: "forex saturday", class: enum.AssetClassForex, now: saturday, want: false},
		{desc: "forex sunday", class: enum.AssetClassForex, now: sunday, want: true},
		{desc: "stock weekday", class: enum.AssetClassStock, now: monday, want: true},
		{desc: "stock saturday", class: enum.AssetClassStock, now: saturday, want: false},
		{desc: "stock sunday", class: enum.AssetClassStock, now: sunday, want: false},
		{desc: "index friday", class: enum.AssetClassIndex, now: monday.AddDate(0, 0, 4), want: true},
		{desc: "index sunday", class: enum.AssetClassIndex, now: sunday, want: false},
		{desc: "unknown class", class: enum.AssetClass(0), now: monday, want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, IsOpen(tc.class, tc.now))
		})
	}
}

func TestIsOpenUsesUTC(t *testing.T) {
	// Friday 23:30 in New York is Saturday 03:30 UTC.
	ny := time.FixedZone("EDT", -4*60*60)
	fridayNight := time.Date(2024, 6, 7, 23, 30, 0, 0, ny)
	assert.False(t, IsOpen(enum.AssetClassForex, fridayNight))
	assert.Equal(t, enum.MarketStatusClosed, Status(enum.AssetClassStock, fridayNight))
}
