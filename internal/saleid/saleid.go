// Package saleid builds the human readable sale number
// {branch}-{register}-{YYYYMMDD}-{seq}.
//
// The sequence itself comes from an Allocator that increments and returns a
// per register, per business day counter in one atomic step. Counting the
// sales already stored and adding one is not a valid allocator.
package saleid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type Allocator interface {
	NextSaleSequence(ctx context.Context, registerID string, businessDate string) (int, error)
}

// BusinessDate returns the local calendar day of at in loc as YYYY-MM-DD.
func BusinessDate(at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return at.In(loc).Format(dateLayout)
}

func Format(branchCode string, registerCode string, businessDate string, seq int) (string, error) {
	day, err := time.Parse(dateLayout, businessDate)
	if err != nil {
		return "", fmt.Errorf("invalid business date %q: %w", businessDate, err)
	}
	if seq < 1 {
		return "", fmt.Errorf("invalid sequence %d", seq)
	}
	for _, code := range []string{branchCode, registerCode} {
		if strings.TrimSpace(code) == "" || strings.Contains(code, "-") {
			return "", fmt.Errorf("invalid branch or register code %q", code)
		}
	}
	return fmt.Sprintf("%s-%s-%s-%04d", branchCode, registerCode, day.Format("20060102"), seq), nil
}

type Number struct {
	BranchCode   string
	RegisterCode string
	BusinessDate string
	Sequence     int
}

func Parse(number string) (Number, error) {
	parts := strings.Split(number, "-")
	if len(parts) != 4 {
		return Number{}, fmt.Errorf("malformed sale number %q", number)
	}
	day, err := time.Parse("20060102", parts[2])
	if err != nil {
		return Number{}, fmt.Errorf("malformed sale number %q: %w", number, err)
	}
	seq, err := strconv.Atoi(parts[3])
	if err != nil || seq < 1 {
		return Number{}, fmt.Errorf("malformed sale number %q", number)
	}
	return Number{
		BranchCode:   parts[0],
		RegisterCode: parts[1],
		BusinessDate: day.Format(dateLayout),
		Sequence:     seq,
	}, nil
}
