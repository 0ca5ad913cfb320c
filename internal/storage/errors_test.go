package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestIsNoSuchKey(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"local", fmt.Errorf("wrap: %w", ErrNotFound), true},
		{"minio code", minio.ErrorResponse{Code: "NoSuchKey"}, true},
		{"gateway text", errors.New("The specified key does not exist."), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsNoSuchKey(tc.err); got != tc.want {
				t.Fatalf("IsNoSuchKey(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
