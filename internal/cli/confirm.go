package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
)

// PromptConfirmer asks the operator on the terminal before a new recurring
// contribution is created. EOF on input counts as "no".
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *PromptConfirmer) Confirm(ctx context.Context, sub paymentdomain.Subscription, customer paymentdomain.Customer) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	name := strings.TrimSpace(customer.GivenName + " " + customer.FamilyName)
	if name == "" {
		name = "(no name)"
	}
	fmt.Fprintf(p.out, "Create recurring contribution for %s <%s>: %s %s every %d %s (subscription %s)? [y/N] ",
		name,
		customer.Email,
		formatMinor(sub.Amount),
		strings.ToUpper(sub.Currency),
		max(sub.Interval, 1),
		sub.IntervalUnit,
		sub.ID,
	)

	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
