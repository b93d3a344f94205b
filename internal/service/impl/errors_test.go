package impl

import (
	"errors"
	"fmt"
	"testing"

	"chatcore/internal/domain"
	"chatcore/internal/store"
)

func TestTranslateStoreErr(t *testing.T) {
	other := errors.New("connection reset")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"not found", store.ErrRecordNotFound, domain.ErrNotFound},
		{"duplicate", errors.Join(store.ErrDuplicate, errors.New("UNIQUE constraint failed")), domain.ErrConflict},
		{"wrapped duplicate", fmt.Errorf("insert: %w", store.ErrDuplicate), domain.ErrConflict},
		{"passthrough", other, other},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateStoreErr(tc.in, "conversation")
			if !errors.Is(got, tc.want) {
				t.Fatalf("translateStoreErr(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
