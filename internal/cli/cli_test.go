package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptConfirmer(t *testing.T) {
	sub := paymentdomain.Subscription{ID: "SB1", Amount: 1250, Currency: "gbp", Interval: 1, IntervalUnit: "monthly"}
	customer := paymentdomain.Customer{Email: "ada@example.org", GivenName: "Ada", FamilyName: "Lovelace"}

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "yes", input: "y\n", want: true},
		{name: "yes word", input: " YES \n", want: true},
		{name: "no", input: "n\n", want: false},
		{name: "empty line", input: "\n", want: false},
		{name: "eof", input: "", want: false},
		{name: "yes without newline", input: "y", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewPromptConfirmer(strings.NewReader(tt.input), &out)
			got, err := c.Confirm(context.Background(), sub, customer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Ada Lovelace <ada@example.org>: 12.50 GBP every 1 monthly (subscription SB1)")
		})
	}
}

func TestPromptConfirmerHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewPromptConfirmer(strings.NewReader("y\n"), &bytes.Buffer{})
	ok, err := c.Confirm(ctx, paymentdomain.Subscription{}, paymentdomain.Customer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestParseSince(t *testing.T) {
	got, err := parseSince("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseSince("2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseSince("2024-02-01T10:00:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), *got)

	_, err = parseSince("last tuesday")
	assert.Error(t, err)
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "0.05", formatMinor(5))
	assert.Equal(t, "12.50", formatMinor(1250))
	assert.Equal(t, "-3.00", formatMinor(-300))
}
